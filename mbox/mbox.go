// Package mbox exports captured records to an mbox file and reads mbox files back.
package mbox

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/store"
)

// DefaultSender is written on the mbox separator line of records without an envelope sender.
const DefaultSender = "MAILER-DAEMON"

// Result counts what an export did.
type Result struct {
	Written int
	Skipped int
}

// Export writes every record yielded by entries to w, oldest first, each message annotated
// with its envelope. Corrupt entries are logged and skipped; a listing error aborts.
func Export(w io.Writer, entries iter.Seq2[store.Entry, error], logger *slog.Logger) (Result, error) {
	var (
		res     Result
		records []store.Entry
	)
	for entry, err := range entries {
		if err != nil {
			if errors.Is(err, store.ErrRecordCorrupt) {
				res.Skipped++
				if logger != nil {
					logger.Warn("skipping corrupt record", "name", entry.Name, "err", err)
				}
				continue
			}
			return res, err
		}
		records = append(records, entry)
	}
	store.SortByTime(records)

	mw := mboxlib.NewWriter(w)
	for _, entry := range records {
		from := strings.Join(strings.Fields(entry.Record.Envelope.Sender), "_")
		if from == "" {
			from = DefaultSender
		}

		msgWriter, err := mw.CreateMessage(from, entry.Record.Time())
		if err != nil {
			return res, fmt.Errorf("mbox message %s: %w", entry.Name, err)
		}
		if _, err := msgWriter.Write(inspect.Annotate(entry.Name, entry.Record)); err != nil {
			return res, fmt.Errorf("mbox message %s write: %w", entry.Name, err)
		}
		res.Written++

		if logger != nil {
			logger.Debug("exported record", "name", entry.Name, "from", from)
		}
	}

	if err := mw.Close(); err != nil {
		return res, fmt.Errorf("close mbox: %w", err)
	}
	return res, nil
}

// ExportFile writes the records to path, replacing it only once the export succeeded.
func ExportFile(path string, entries iter.Seq2[store.Entry, error], logger *slog.Logger) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, fmt.Errorf("mbox path is empty")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".trapmail-export-*.mbox")
	if err != nil {
		return Result{}, fmt.Errorf("create mbox: %w", err)
	}
	defer os.Remove(tmp.Name())

	res, err := Export(tmp, entries, logger)
	if err != nil {
		_ = tmp.Close()
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("close mbox: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return res, fmt.Errorf("publish mbox: %w", err)
	}
	return res, nil
}

// Read opens an mbox file and iterates through its messages,
// calling the provided callback with each raw message.
func Read(path string, callback func(raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return ReadFrom(file, callback)
}

// ReadFrom is Read over an arbitrary reader.
func ReadFrom(r io.Reader, callback func(raw []byte) error) error {
	reader := mboxlib.NewReader(r)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		if err := callback(raw); err != nil {
			return err
		}
	}
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		// Just consume the message without parsing
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			return 0, err
		}
		count++
	}
}
