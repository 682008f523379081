package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/dhcgn/trapmail/stats"
)

// fakeStream runs a single subscriber over a fixed list of events.
type fakeStream struct {
	events []stats.Event
	done   chan error
}

func (f *fakeStream) SubscribeStats(_ string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, len(f.events))
	for _, evt := range f.events {
		ch <- evt
	}
	close(ch)
	f.done = make(chan error, 1)
	go func() { f.done <- fn(context.Background(), ch) }()
}

func TestReporterWithDisabledBar(t *testing.T) {
	bar := New(3, 1, "debug")
	if bar.enabled {
		t.Fatal("bar must stay disabled outside info level")
	}

	stream := &fakeStream{events: []stats.Event{
		{Type: stats.EventTypeScanned, Record: "a"},
		{Type: stats.EventTypeScanned, Record: "b"},
		{Type: stats.EventTypeDuplicate, Record: "a"},
		{Type: stats.EventTypeCorrupt, Record: "c", Err: errors.New("bad")},
		{Type: stats.EventTypeDryRunUpload, Record: "b"},
	}}
	reporter := NewReporter(stream, bar, nil)
	if err := <-stream.done; err != nil {
		t.Fatalf("consume() error = %v", err)
	}

	summary := reporter.Summary()
	if summary.Scanned != 2 || summary.Duplicates != 1 || summary.Corrupt != 1 || summary.DryRunUploaded != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if bar.Scanned() != 3 {
		t.Errorf("bar.Scanned() = %d, want 3", bar.Scanned())
	}
}

func TestEmptyStoreDisablesBar(t *testing.T) {
	if New(0, 0, "info").enabled {
		t.Error("bar must not render for an empty store")
	}
}

func TestReporterWithoutBar(t *testing.T) {
	stream := &fakeStream{events: []stats.Event{{Type: stats.EventTypeUploaded}}}
	reporter := NewReporter(stream, nil, nil)
	if err := <-stream.done; err != nil {
		t.Fatal(err)
	}
	if reporter.Summary().Uploaded != 1 {
		t.Errorf("summary = %+v", reporter.Summary())
	}
}
