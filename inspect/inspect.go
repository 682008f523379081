// Package inspect reads the RFC 5322 header of a captured message.
//
// Captured bodies are whatever the application piped into sendmail, so nothing here assumes a
// well-formed message: a body without a header block yields an empty summary and ErrNoHeader,
// and values in unknown charsets fall back to their raw form.
package inspect

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/trapmail/model"
)

var ErrNoHeader = errors.New("message has no header block")

// Summary is the handful of header fields people look for when checking a captured mail.
type Summary struct {
	Subject   string
	From      []string
	To        []string
	Cc        []string
	Date      time.Time
	MessageID string
}

// Parse splits a raw message into its header and body.
func Parse(raw []byte) (mail.Header, []byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return mail.Header{}, raw, fmt.Errorf("%w: %v", ErrNoHeader, err)
	}
	if h.Len() == 0 {
		body, _ := io.ReadAll(br)
		return mail.Header{}, body, ErrNoHeader
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return mail.Header{}, nil, fmt.Errorf("read body: %w", err)
	}
	var mh mail.Header
	mh.Header.Header = h
	return mh, body, nil
}

// Summarize extracts the summary fields from a raw message.
func Summarize(raw []byte) (Summary, error) {
	h, _, err := Parse(raw)
	if err != nil {
		return Summary{}, err
	}
	return summarizeHeader(h), nil
}

// Record summarizes the message held by rec.
func Record(rec model.Record) (Summary, error) {
	return Summarize(rec.Message)
}

func summarizeHeader(h mail.Header) Summary {
	var s Summary

	if subject, err := h.Subject(); err == nil {
		s.Subject = subject
	} else {
		s.Subject = h.Get("Subject")
	}

	s.From = addresses(h, "From")
	s.To = addresses(h, "To")
	s.Cc = addresses(h, "Cc")

	if date, err := h.Date(); err == nil {
		s.Date = date
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		s.MessageID = id
	} else {
		s.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}

	return s
}

// addresses returns the addresses listed under key. Lists that do not parse as RFC 5322 are
// returned split on commas so the value is still visible.
func addresses(h mail.Header, key string) []string {
	if !h.Has(key) {
		return nil
	}
	list, err := h.AddressList(key)
	if err == nil {
		out := make([]string, 0, len(list))
		for _, addr := range list {
			out = append(out, addr.Address)
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(h.Get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
