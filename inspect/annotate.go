package inspect

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/dhcgn/trapmail/model"
)

// Header fields prepended by Annotate.
const (
	HeaderRecord       = "X-Trapmail-Record"
	HeaderEnvelopeFrom = "X-Trapmail-Envelope-From"
	HeaderEnvelopeTo   = "X-Trapmail-Envelope-To"
	HeaderProcess      = "X-Trapmail-Process"
)

// Annotate returns the captured message with the record's envelope and origin prepended as
// X-Trapmail-* header fields, so the data survives export to formats that only carry the
// message itself. Line endings follow the message. A message without a header block gets
// one holding only the annotations.
func Annotate(name string, rec model.Record) []byte {
	eol := "\n"
	if bytes.Contains(rec.Message, []byte("\r\n")) {
		eol = "\r\n"
	}

	var buf bytes.Buffer
	buf.Grow(len(rec.Message) + 256)

	field := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(HeaderValue(value))
		buf.WriteString(eol)
	}
	if name != "" {
		field(HeaderRecord, name)
	}
	field(HeaderEnvelopeFrom, rec.Envelope.Sender)
	field(HeaderEnvelopeTo, strings.Join(rec.Envelope.Recipients, ", "))
	field(HeaderProcess, "pid="+strconv.Itoa(rec.PID)+" ppid="+strconv.Itoa(rec.PPID))

	if _, _, err := Parse(rec.Message); errors.Is(err, ErrNoHeader) {
		buf.WriteString(eol)
	}
	buf.Write(rec.Message)
	return buf.Bytes()
}

// HeaderValue folds CR and LF runs in v into single spaces so that an argument taken from the
// command line stays within one header field.
func HeaderValue(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}
