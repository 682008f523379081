package store

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
)

// Entry is a decoded record together with where it was found.
type Entry struct {
	Name   string
	Path   string
	Record model.Record
}

// Store reads records from a directory. It holds no state besides the path; every call lists
// the directory afresh.
type Store struct {
	dir string
}

// Open returns a reader for dir. It performs no I/O.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// OpenDefault opens the directory named by TRAPMAIL_STORE, falling back to the default
// store directory.
func OpenDefault() *Store {
	return Open(naming.ResolveDir())
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// Names lists the record file names currently present, sorted. Files not following the
// record naming convention are ignored.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreDirectoryMissing, s.dir)
		}
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !naming.Match(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Records returns a lazy, single-pass sequence over the records matching all predicates.
//
// A failure to list the directory is yielded once and ends the sequence. An entry that cannot
// be read or decoded yields a *CorruptError and enumeration carries on with the next entry.
// Entries removed between listing and reading are skipped.
func (s *Store) Records(preds ...Predicate) iter.Seq2[Entry, error] {
	match := All(preds...)
	return func(yield func(Entry, error) bool) {
		names, err := s.Names()
		if err != nil {
			yield(Entry{}, err)
			return
		}

		for _, name := range names {
			entry, err := s.load(name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				if !yield(Entry{Name: name, Path: filepath.Join(s.dir, name)}, err) {
					return
				}
				continue
			}
			if !match(entry.Record) {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Load reads and decodes a single record file by name.
func (s *Store) Load(name string) (Entry, error) {
	return s.load(name)
}

func (s *Store) load(name string) (Entry, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, &CorruptError{Name: name, Err: err}
	}
	rec, err := model.Decode(data)
	if err != nil {
		return Entry{}, &CorruptError{Name: name, Err: err}
	}
	return Entry{Name: name, Path: path, Record: rec}, nil
}

// LoadFile decodes a record file at an arbitrary path.
func LoadFile(path string) (model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Record{}, fmt.Errorf("read record: %w", err)
	}
	rec, err := model.Decode(data)
	if err != nil {
		return model.Record{}, &CorruptError{Name: filepath.Base(path), Err: err}
	}
	return rec, nil
}

// Collect drains a sequence into decoded entries and errors.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, []error) {
	var (
		entries []Entry
		errs    []error
	)
	for entry, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}

// SortByTime orders entries by capture time, then pid, then ppid.
func SortByTime(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Record, entries[j].Record
		if a.TimestampUS != b.TimestampUS {
			return a.TimestampUS < b.TimestampUS
		}
		if a.PID != b.PID {
			return a.PID < b.PID
		}
		return a.PPID < b.PPID
	})
}

// Clear removes the records matching all predicates and returns how many were removed.
//
// Clearing is best effort and races with concurrent writers: records published after the
// directory was listed survive, and a file already removed by someone else counts as removed.
// Entries that cannot be decoded are never matched; use ClearAll for those.
func (s *Store) Clear(preds ...Predicate) (int, []error) {
	var (
		removed int
		errs    []error
	)
	for entry, err := range s.Records(preds...) {
		if err != nil {
			if !errors.Is(err, ErrRecordCorrupt) {
				errs = append(errs, err)
			}
			continue
		}
		if err := removeRecord(entry.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}

// ClearAll removes every file following the record naming convention without decoding it.
func (s *Store) ClearAll() (int, []error) {
	names, err := s.Names()
	if err != nil {
		return 0, []error{err}
	}

	var (
		removed int
		errs    []error
	)
	for _, name := range names {
		if err := removeRecord(filepath.Join(s.dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}

func removeRecord(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove record: %w", err)
}
