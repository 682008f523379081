package stats

import (
	"bytes"
	"errors"
	"testing"
)

func TestCollector(t *testing.T) {
	boom := errors.New("boom")
	c := NewCollector()
	for _, evt := range []Event{
		{Stage: StageStore, Type: EventTypeScanned, Record: "a"},
		{Stage: StageStore, Type: EventTypeScanned, Record: "b"},
		{Stage: StageStore, Type: EventTypeCorrupt, Record: "c", Err: errors.New("bad json")},
		{Stage: StageStore, Type: EventTypeDuplicate, Record: "a"},
		{Stage: StageStore, Type: EventTypeEnqueued, Record: "b"},
		{Stage: StageIMAP, Type: EventTypeDryRunUpload, Record: "b"},
		{Stage: StageIMAP, Type: EventTypeError, Err: boom},
	} {
		c.Apply(evt)
	}

	got := c.Snapshot()
	want := Summary{Scanned: 2, Corrupt: 1, Duplicates: 1, Enqueued: 1, DryRunUploaded: 1, Errors: 1, LastError: boom}
	if got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestSummaryLogAttrs(t *testing.T) {
	attrs := Summary{Scanned: 3, LastError: errors.New("x")}.LogAttrs()
	if len(attrs) != 16 {
		t.Fatalf("LogAttrs() has %d items, want 16", len(attrs))
	}
	if attrs[len(attrs)-2] != "lastError" || attrs[len(attrs)-1] != "x" {
		t.Errorf("last attrs = %v", attrs[len(attrs)-2:])
	}
}

func TestTop(t *testing.T) {
	m := map[string]int{"b@example.com": 3, "a@example.com": 3, "c@example.com": 1, "d@example.com": 5}

	got := Top(m, 3)
	want := []Count{{"d@example.com", 5}, {"a@example.com", 3}, {"b@example.com", 3}}
	if len(got) != len(want) {
		t.Fatalf("Top() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Top()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if all := Top(m, 0); len(all) != 4 {
		t.Errorf("Top(m, 0) returned %d items, want 4", len(all))
	}

	var buf bytes.Buffer
	PrettyPrintTop(&buf, m, 1)
	if buf.String() != "1. d@example.com (5)\n" {
		t.Errorf("PrettyPrintTop() = %q", buf.String())
	}
}
