package inspect

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dhcgn/trapmail/model"
)

const sample = "From: Jane Doe <jane@example.com>\r\n" +
	"To: bob@example.com, \"Carol\" <carol@example.com>\r\n" +
	"Cc: dave@example.com\r\n" +
	"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?=\r\n" +
	"Date: Mon, 09 Dec 2019 17:05:47 +0000\r\n" +
	"Message-Id: <abc123@example.com>\r\n" +
	"\r\n" +
	"Hello Bob\r\n"

func TestSummarize(t *testing.T) {
	s, err := Summarize([]byte(sample))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	want := Summary{
		Subject:   "Grüße",
		From:      []string{"jane@example.com"},
		To:        []string{"bob@example.com", "carol@example.com"},
		Cc:        []string{"dave@example.com"},
		Date:      time.Date(2019, 12, 9, 17, 5, 47, 0, time.UTC),
		MessageID: "abc123@example.com",
	}
	if s.Subject != want.Subject || s.MessageID != want.MessageID {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}
	if !reflect.DeepEqual(s.From, want.From) || !reflect.DeepEqual(s.To, want.To) || !reflect.DeepEqual(s.Cc, want.Cc) {
		t.Errorf("addresses = %v / %v / %v", s.From, s.To, s.Cc)
	}
	if !s.Date.Equal(want.Date) {
		t.Errorf("Date = %v, want %v", s.Date, want.Date)
	}
}

func TestSummarizeLenient(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject string
		to      []string
	}{
		{
			name:    "plain subject with lf endings",
			raw:     "Subject: hi\n\nhello",
			subject: "hi",
		},
		{
			name:    "bare recipient without domain",
			raw:     "To: foo@bar, santa\nSubject: x\n\n",
			subject: "x",
			to:      []string{"foo@bar", "santa"},
		},
		{
			name:    "unknown charset falls back to raw value",
			raw:     "Subject: =?x-unknown?Q?abc?=\n\nbody",
			subject: "=?x-unknown?Q?abc?=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Summarize([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Summarize() error = %v", err)
			}
			if s.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", s.Subject, tt.subject)
			}
			if !reflect.DeepEqual(s.To, tt.to) {
				t.Errorf("To = %#v, want %#v", s.To, tt.to)
			}
		})
	}
}

func TestSummarizeNoHeader(t *testing.T) {
	for _, raw := range []string{"", "just some text\n", "\nbody only"} {
		if _, err := Summarize([]byte(raw)); !errors.Is(err, ErrNoHeader) {
			t.Errorf("Summarize(%q) error = %v, want ErrNoHeader", raw, err)
		}
	}
}

func TestParseBody(t *testing.T) {
	h, body, err := Parse([]byte("Subject: hi\n\nline one\nline two\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := h.Get("Subject"); got != "hi" {
		t.Errorf("Subject = %q", got)
	}
	if string(body) != "line one\nline two\n" {
		t.Errorf("body = %q", body)
	}
}

func TestRecord(t *testing.T) {
	rec := model.NewRecord(model.Envelope{}, []byte(sample), model.Invocation{}, model.ProcessInfo{})
	s, err := Record(rec)
	if err != nil {
		t.Fatal(err)
	}
	if s.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", s.MessageID)
	}
}
