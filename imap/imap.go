// Package imap mirrors captured records into an IMAP folder so they can be read with a normal
// mail client. Nothing is ever delivered to the envelope recipients.
package imap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/runner"
	"github.com/dhcgn/trapmail/state"
	"github.com/dhcgn/trapmail/stats"
)

const (
	// DefaultFolder receives records when no target folder is configured.
	DefaultFolder = "Trapmail"
	// UnknownSender names the per-sender folder of records without an envelope sender.
	UnknownSender = "unknown-sender"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	// FolderPerSender files each record under TargetFolder/<envelope sender>.
	FolderPerSender bool
	DryRun          bool
}

// mailbox is the connection the uploader appends to.
type mailbox interface {
	// Delimiter is the server's hierarchy separator, 0 for a flat namespace.
	Delimiter() rune
	Ensure(folder string) error
	Append(folder string, raw []byte, date time.Time) error
	Close() error
}

type Uploader struct {
	opts    Options
	runner  *runner.Runner
	ledger  state.Tracker
	uploads <-chan runner.Item
	logger  *slog.Logger

	connect func(context.Context) (mailbox, error)
	ensured map[string]bool
}

func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if !opts.DryRun {
		if opts.Host == "" {
			return nil, fmt.Errorf("imap host is empty")
		}
		if opts.Port <= 0 {
			return nil, fmt.Errorf("imap port must be positive")
		}
	}
	ledger := r.Ledger()
	if ledger == nil {
		return nil, fmt.Errorf("ledger must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	uploader := &Uploader{
		opts:    opts,
		runner:  r,
		ledger:  ledger,
		uploads: r.Uploads(),
		logger:  logger,
		ensured: make(map[string]bool),
	}
	uploader.connect = uploader.dial
	if opts.DryRun {
		uploader.connect = func(context.Context) (mailbox, error) {
			return dryRun{}, nil
		}
	}
	r.AddStage("imap", uploader.run)
	return uploader, nil
}

func (u *Uploader) run(ctx context.Context) error {
	var mb mailbox
	defer func() {
		if mb != nil {
			_ = mb.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-u.uploads:
			if !ok {
				return nil
			}

			if mb == nil {
				var err error
				if mb, err = u.connect(ctx); err != nil {
					u.emitError(item.Name, err)
					return err
				}
			}

			entry, err := u.mirror(mb, item)
			if err != nil {
				err = fmt.Errorf("upload record %s: %w", item.Name, err)
				u.emitError(item.Name, err)
				return err
			}
			if err := u.ledger.Record(entry); err != nil {
				u.emitError(item.Name, err)
				return err
			}

			evt := stats.EventTypeUploaded
			if u.opts.DryRun {
				evt = stats.EventTypeDryRunUpload
			}
			u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: evt, Record: item.Name})
			u.logger.Debug("mirrored record", "record", item.Name, "folder", entry.Folder,
				"sender", entry.Sender, "messageID", entry.MessageID, "dryRun", u.opts.DryRun)
		}
	}
}

// mirror appends the annotated record to its folder, with the capture time as internal date,
// and returns the ledger entry describing it.
func (u *Uploader) mirror(mb mailbox, item runner.Item) (state.Entry, error) {
	folder := u.folderFor(item.Record, mb.Delimiter())
	if !u.ensured[folder] {
		if err := mb.Ensure(folder); err != nil {
			return state.Entry{}, err
		}
		u.ensured[folder] = true
	}

	raw := inspect.Annotate(item.Name, item.Record)
	if err := mb.Append(folder, raw, item.Record.Time()); err != nil {
		return state.Entry{}, err
	}

	messageID := ""
	if summary, err := inspect.Record(item.Record); err == nil {
		messageID = summary.MessageID
	}
	return state.NewEntry(item.Name, item.Record, messageID, folder, time.Now())
}

func (u *Uploader) emitError(name string, err error) {
	u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, Record: name, Err: err})
}

func (u *Uploader) targetFolder() string {
	if u.opts.TargetFolder == "" {
		return DefaultFolder
	}
	return u.opts.TargetFolder
}

// folderFor returns the folder a record is filed under. Servers without a hierarchy
// delimiter keep every record in the target folder.
func (u *Uploader) folderFor(rec model.Record, delim rune) string {
	target := u.targetFolder()
	if !u.opts.FolderPerSender || delim == 0 {
		return target
	}
	return target + string(delim) + senderFolder(rec.Envelope.Sender, delim)
}

// senderFolder turns an envelope sender into a single mailbox name component. The delimiter,
// the LIST wildcards and control characters are replaced.
func senderFolder(sender string, delim rune) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return UnknownSender
	}
	return strings.Map(func(r rune) rune {
		if r == delim || r == '%' || r == '*' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, sender)
}

// dryRun accepts every append without a server.
type dryRun struct{}

func (dryRun) Delimiter() rune { return '/' }

func (dryRun) Ensure(string) error { return nil }

func (dryRun) Append(string, []byte, time.Time) error { return nil }

func (dryRun) Close() error { return nil }
