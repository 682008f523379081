package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/store"
)

func record(sender string, recipients []string, raw string) model.Record {
	return model.NewRecord(
		model.Envelope{Sender: sender, Recipients: recipients},
		[]byte(raw),
		model.Invocation{},
		model.ProcessInfo{PID: 2, PPID: 1},
	)
}

func TestFilterMatches(t *testing.T) {
	welcome := record("app@example.com", []string{"new.user@example.com"}, "Subject: Welcome aboard\nFrom: app@example.com\n\nYour activation code is 4711.\n")
	reset := record("app@example.com", []string{"admin@corp.example"}, "Subject: Password reset\r\n\r\nClick the link.\r\n")
	raw := record("", []string{}, "no header at all")

	tests := []struct {
		name string
		opts Options
		want []bool
	}{
		{
			name: "no filters",
			want: []bool{true, true, true},
		},
		{
			name: "include header",
			opts: Options{IncludeHeader: []string{"(?m)^Subject: Welcome"}},
			want: []bool{true, false, false},
		},
		{
			name: "include body",
			opts: Options{IncludeBody: []string{`code is \d+`}},
			want: []bool{true, false, false},
		},
		{
			name: "header or body",
			opts: Options{IncludeHeader: []string{"reset"}, IncludeBody: []string{"activation"}},
			want: []bool{true, true, false},
		},
		{
			name: "exclude header",
			opts: Options{ExcludeHeader: []string{"Password"}},
			want: []bool{true, false, true},
		},
		{
			name: "envelope recipient",
			opts: Options{IncludeHeader: []string{`(?m)^X-Envelope-To: .*@corp\.example`}},
			want: []bool{false, true, false},
		},
		{
			name: "empty envelope sender",
			opts: Options{IncludeHeader: []string{`(?m)^X-Envelope-From: $`}},
			want: []bool{false, false, true},
		},
		{
			name: "blank patterns are ignored",
			opts: Options{IncludeHeader: []string{"  ", ""}},
			want: []bool{true, true, true},
		},
	}

	recs := []model.Record{welcome, reset, raw}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			for i, rec := range recs {
				if got := f.Matches(rec); got != tt.want[i] {
					t.Errorf("record %d: Matches() = %v, want %v", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestFilterMutuallyExclusive(t *testing.T) {
	_, err := New(Options{IncludeHeader: []string{"test"}, ExcludeBody: []string{"spam"}})
	if err == nil {
		t.Error("expected error when both include and exclude are specified")
	}
}

func TestFilterInvalidPattern(t *testing.T) {
	if _, err := New(Options{IncludeBody: []string{"("}}); err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestFilterStats(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"spam", "never-matches"}})
	if err != nil {
		t.Fatal(err)
	}

	f.Allows([]byte("Subject: spam offer"), nil)
	f.Allows([]byte("Subject: more spam"), nil)
	f.Allows([]byte("Subject: hello"), nil)

	s := f.GetStats()
	if len(s.ExcludeHeaderPatterns) != 2 {
		t.Fatalf("ExcludeHeaderPatterns = %v", s.ExcludeHeaderPatterns)
	}
	if s.ExcludeHeaderHits["spam"] != 2 || s.ExcludeHeaderHits["never-matches"] != 0 {
		t.Errorf("ExcludeHeaderHits = %v", s.ExcludeHeaderHits)
	}
	if len(s.IncludeHeaderPatterns) != 0 {
		t.Errorf("IncludeHeaderPatterns = %v", s.IncludeHeaderPatterns)
	}
}

func TestFilterAsStorePredicate(t *testing.T) {
	dir := t.TempDir()
	recs := []model.Record{
		record("a@example.com", []string{"x@example.com"}, "Subject: invoice 1\n\n"),
		record("a@example.com", []string{"y@example.com"}, "Subject: newsletter\n\n"),
		record("a@example.com", []string{"z@example.com"}, "Subject: invoice 2\n\n"),
	}
	for i, rec := range recs {
		rec.TimestampUS = int64(i + 1)
		if _, err := store.Write(dir, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "trapmail_1_2_99.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := New(Options{IncludeHeader: []string{"invoice"}})
	if err != nil {
		t.Fatal(err)
	}

	entries, errs := store.Collect(store.Open(dir).Records(f.Predicate()))
	if len(errs) != 1 {
		t.Errorf("errs = %v, want the corrupt entry reported once", errs)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		wantHeader []byte
		wantBody   []byte
	}{
		{
			name:       "CRLF separator",
			raw:        []byte("Header: value\r\n\r\nBody content"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "LF separator",
			raw:        []byte("Header: value\n\nBody content"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "No separator",
			raw:        []byte("All header content"),
			wantHeader: []byte("All header content"),
		},
		{
			name: "Empty message",
			raw:  []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHeader, gotBody := SplitRawMessage(tt.raw)
			if string(gotHeader) != string(tt.wantHeader) {
				t.Errorf("SplitRawMessage() header = %q, want %q", gotHeader, tt.wantHeader)
			}
			if string(gotBody) != string(tt.wantBody) {
				t.Errorf("SplitRawMessage() body = %q, want %q", gotBody, tt.wantBody)
			}
		})
	}
}

func TestFilterEnvelopeLineBreaks(t *testing.T) {
	rec := record("a@example.com\r\nX-Priority: 1", []string{"b@example.com\nBcc: c@example.com"}, "Subject: hi\n\nbody\n")

	tests := []struct {
		name string
		opts Options
		want bool
	}{
		{"injected field", Options{IncludeHeader: []string{`(?m)^(X-Priority|Bcc):`}}, false},
		{"folded sender", Options{IncludeHeader: []string{`(?m)^X-Envelope-From: a@example\.com X-Priority: 1$`}}, true},
		{"folded recipient", Options{IncludeHeader: []string{`(?m)^X-Envelope-To: b@example\.com Bcc: c@example\.com$`}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got := f.Matches(rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
