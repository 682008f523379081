// Package filter selects captured records with regular expressions over the message header,
// the message body and the envelope.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/store"
)

// Header lines synthesised from the envelope so header patterns can match it.
const (
	EnvelopeFromHeader = "X-Envelope-From"
	EnvelopeToHeader   = "X-Envelope-To"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

// Filter holds compiled regex patterns for filtering messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool

	mu   sync.Mutex
	hits map[*regexp.Regexp]int
}

// Stats reports how often each pattern matched, keyed by pattern source.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeHeaderHits     map[string]int
	IncludeBodyPatterns   []string
	IncludeBodyHits       map[string]int
	ExcludeHeaderPatterns []string
	ExcludeHeaderHits     map[string]int
	ExcludeBodyPatterns   []string
	ExcludeBodyHits       map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		hits:           make(map[*regexp.Regexp]int),
	}, nil
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	if f.includeMode {
		// Both lists are evaluated so hit counts stay accurate.
		headerHit := f.matchAny(f.includeHeader, headerText)
		bodyHit := f.matchAny(f.includeBody, bodyText)
		return headerHit || bodyHit
	}

	if f.excludeMode {
		headerHit := f.matchAny(f.excludeHeader, headerText)
		bodyHit := f.matchAny(f.excludeBody, bodyText)
		if headerHit || bodyHit {
			return false
		}
	}

	return true
}

// Matches applies the filter to a record. Header patterns see the message header followed by
// X-Envelope-From and X-Envelope-To lines carrying the captured envelope.
func (f *Filter) Matches(rec model.Record) bool {
	header, body := SplitRawMessage(rec.Message)
	if f.needHeaderText {
		header = appendEnvelope(header, rec.Envelope)
	}
	return f.Allows(header, body)
}

// Predicate exposes the filter for store enumeration.
func (f *Filter) Predicate() store.Predicate {
	return f.Matches
}

// GetStats returns a snapshot of per-pattern hit counts.
func (f *Filter) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := func(patterns []*regexp.Regexp) ([]string, map[string]int) {
		sources := make([]string, 0, len(patterns))
		hits := make(map[string]int, len(patterns))
		for _, re := range patterns {
			sources = append(sources, re.String())
			hits[re.String()] += f.hits[re]
		}
		return sources, hits
	}

	var s Stats
	s.IncludeHeaderPatterns, s.IncludeHeaderHits = snapshot(f.includeHeader)
	s.IncludeBodyPatterns, s.IncludeBodyHits = snapshot(f.includeBody)
	s.ExcludeHeaderPatterns, s.ExcludeHeaderHits = snapshot(f.excludeHeader)
	s.ExcludeBodyPatterns, s.ExcludeBodyHits = snapshot(f.excludeBody)
	return s
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func appendEnvelope(header []byte, env model.Envelope) []byte {
	var buf bytes.Buffer
	buf.Grow(len(header) + 64)
	buf.Write(header)
	if len(header) > 0 && header[len(header)-1] != '\n' {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "%s: %s\n", EnvelopeFromHeader, inspect.HeaderValue(env.Sender))
	fmt.Fprintf(&buf, "%s: %s\n", EnvelopeToHeader, inspect.HeaderValue(strings.Join(env.Recipients, ", ")))
	return buf.Bytes()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func (f *Filter) matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	matched := false
	for _, re := range patterns {
		if re.MatchString(text) {
			f.mu.Lock()
			f.hits[re]++
			f.mu.Unlock()
			matched = true
		}
	}
	return matched
}
