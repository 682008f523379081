// Package state keeps the sync ledger: one entry per mirrored record, keyed by the record's
// natural key, so repeated syncs skip what is already in the mailbox and `sync --status` can
// report where each record went.
package state

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
)

// FileName is the ledger file kept inside the state directory.
const FileName = "synced.jsonl"

// ErrUnknownName is returned for names that do not follow the record naming convention.
var ErrUnknownName = errors.New("not a record file name")

// Entry describes one mirrored record.
type Entry struct {
	Key       naming.Key `json:"-"`
	Name      string     `json:"name"`
	Sender    string     `json:"sender,omitempty"`
	Captured  time.Time  `json:"captured"`
	MessageID string     `json:"message_id,omitempty"`
	Folder    string     `json:"folder,omitempty"`
	Mirrored  time.Time  `json:"mirrored"`
}

// NewEntry builds the ledger entry for the record stored under name.
func NewEntry(name string, rec model.Record, messageID, folder string, mirrored time.Time) (Entry, error) {
	key, ok := naming.Parse(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return Entry{
		Key:       key,
		Name:      name,
		Sender:    rec.Envelope.Sender,
		Captured:  rec.Time(),
		MessageID: messageID,
		Folder:    folder,
		Mirrored:  mirrored.UTC(),
	}, nil
}

// Tracker is the part of the ledger the sync pipeline needs.
type Tracker interface {
	Mirrored(name string) bool
	Record(Entry) error
}

// Ledger holds the mirrored entries in memory and, when opened with persist, appends each new
// entry to the ledger file as one JSON line.
type Ledger struct {
	mu      sync.RWMutex
	entries map[naming.Key]Entry

	path string
	file *os.File
	enc  *json.Encoder
}

// NewMemoryLedger returns a ledger that is never written to disk.
func NewMemoryLedger() *Ledger {
	return &Ledger{entries: make(map[naming.Key]Entry)}
}

// Open loads the ledger in stateDir. With persist false nothing is written back, which is
// what dry runs and status reports use.
func Open(stateDir string, persist bool) (*Ledger, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	l := NewMemoryLedger()
	l.path = filepath.Join(stateDir, FileName)
	if err := l.load(); err != nil {
		return nil, err
	}
	if !persist {
		return l, nil
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	l.file = file
	l.enc = json.NewEncoder(file)
	return l, nil
}

// Path returns the ledger location, empty for a memory ledger.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) load() error {
	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	for n := 1; ; n++ {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse state entry %d: %w", n, err)
		}
		key, ok := naming.Parse(e.Name)
		if !ok {
			continue
		}
		e.Key = key
		l.entries[key] = e
	}
}

// Mirrored reports whether the record stored under name is in the ledger.
func (l *Ledger) Mirrored(name string) bool {
	key, ok := naming.Parse(name)
	if !ok {
		return false
	}
	l.mu.RLock()
	_, found := l.entries[key]
	l.mu.RUnlock()
	return found
}

// Record adds e to the ledger. A key that is already present keeps its first entry.
func (l *Ledger) Record(e Entry) error {
	key, ok := naming.Parse(e.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, e.Name)
	}
	e.Key = key

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[key]; exists {
		return nil
	}
	l.entries[key] = e

	if l.enc == nil {
		return nil
	}
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("write state entry %s: %w", e.Name, err)
	}
	return nil
}

// Len returns the number of mirrored records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns the ledger ordered by capture time, then pid, then ppid.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Key.TimestampUS, b.Key.TimestampUS),
			cmp.Compare(a.Key.PID, b.Key.PID),
			cmp.Compare(a.Key.PPID, b.Key.PPID),
		)
	})
	return out
}

// Close syncs and closes the ledger file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	var firstErr error
	if err := l.file.Sync(); err != nil {
		firstErr = fmt.Errorf("sync state file: %w", err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	l.file = nil
	l.enc = nil
	return firstErr
}
