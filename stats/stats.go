package stats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

type Stage string

const (
	StageStore Stage = "store"
	StageIMAP  Stage = "imap"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeCorrupt      EventType = "corrupt"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeError        EventType = "error"
)

// Event is emitted by pipeline stages. Record is the store file name the event is about.
type Event struct {
	Stage  Stage
	Type   EventType
	Record string
	Err    error
	Detail string
}

type Summary struct {
	Scanned        int
	Corrupt        int
	Enqueued       int
	Uploaded       int
	DryRunUploaded int
	Duplicates     int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"corrupt", s.Corrupt,
		"enqueued", s.Enqueued,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"duplicates", s.Duplicates,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Apply folds a single event into the summary.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeCorrupt:
		c.summary.Corrupt++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// EventStream is where a reporter subscribes to pipeline events.
type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

// Count is a value and how often it was seen.
type Count struct {
	Key   string
	Value int
}

// Top returns the limit most frequent entries of m, ties broken by key. A limit <= 0 returns
// all of them.
func Top(m map[string]int, limit int) []Count {
	pairs := make([]Count, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Count{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
