package inspect

import (
	"strings"
	"testing"

	"github.com/dhcgn/trapmail/model"
)

func TestAnnotate(t *testing.T) {
	rec := model.NewRecord(
		model.Envelope{Sender: "a@example.com", Recipients: []string{"b@example.com", "c@example.com"}},
		[]byte("Subject: hi\n\nhello"),
		model.Invocation{},
		model.ProcessInfo{PID: 20, PPID: 10, TimestampUS: 1},
	)

	got := string(Annotate("trapmail_10_20_1.json", rec))
	want := "X-Trapmail-Record: trapmail_10_20_1.json\n" +
		"X-Trapmail-Envelope-From: a@example.com\n" +
		"X-Trapmail-Envelope-To: b@example.com, c@example.com\n" +
		"X-Trapmail-Process: pid=20 ppid=10\n" +
		"Subject: hi\n\nhello"
	if got != want {
		t.Errorf("Annotate() =\n%s\nwant\n%s", got, want)
	}

	h, body, err := Parse([]byte(got))
	if err != nil {
		t.Fatalf("annotated message does not parse: %v", err)
	}
	if h.Get(HeaderEnvelopeTo) != "b@example.com, c@example.com" || h.Get("Subject") != "hi" {
		t.Errorf("header = %v", h)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestAnnotateLineEndings(t *testing.T) {
	rec := model.NewRecord(model.Envelope{}, []byte("Subject: x\r\n\r\nbody\r\n"), model.Invocation{}, model.ProcessInfo{})
	got := string(Annotate("", rec))
	if strings.Contains(got, HeaderRecord) {
		t.Error("empty name should not produce a record field")
	}
	if !strings.HasPrefix(got, "X-Trapmail-Envelope-From: \r\n") {
		t.Errorf("Annotate() = %q, want CRLF fields", got)
	}
}

func TestAnnotateWithoutHeader(t *testing.T) {
	rec := model.NewRecord(model.Envelope{Sender: "s@example.com"}, []byte("plain text"), model.Invocation{}, model.ProcessInfo{})
	_, body, err := Parse(Annotate("n", rec))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if string(body) != "plain text" {
		t.Errorf("body = %q, want the original message", body)
	}
}

func TestAnnotateFoldsEnvelopeLineBreaks(t *testing.T) {
	rec := model.NewRecord(
		model.Envelope{Sender: "a@example.com\r\nBcc: evil@example.com", Recipients: []string{"b@example.com\nX-Injected: 1"}},
		[]byte("Subject: hi\n\nhello"),
		model.Invocation{},
		model.ProcessInfo{PID: 20, PPID: 10},
	)

	h, body, err := Parse(Annotate("n", rec))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if h.Has("Bcc") || h.Has("X-Injected") {
		t.Errorf("envelope value added header fields: %v", h)
	}
	if got := h.Get(HeaderEnvelopeFrom); got != "a@example.com Bcc: evil@example.com" {
		t.Errorf("%s = %q", HeaderEnvelopeFrom, got)
	}
	if got := h.Get(HeaderEnvelopeTo); got != "b@example.com X-Injected: 1" {
		t.Errorf("%s = %q", HeaderEnvelopeTo, got)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestHeaderValue(t *testing.T) {
	tests := map[string]string{
		"a@example.com":      "a@example.com",
		"a\r\nb":             "a b",
		"a\nb\n":             "a b",
		"\r\n":               "",
		"x@example.com\r\r1": "x@example.com 1",
	}
	for in, want := range tests {
		if got := HeaderValue(in); got != want {
			t.Errorf("HeaderValue(%q) = %q, want %q", in, got, want)
		}
	}
}
