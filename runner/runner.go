// Package runner drives the sync pipeline: a store scan feeds a deduplicating bridge, which
// feeds the upload stage. Stages run as goroutines joined by channels; the first failing stage
// cancels the rest.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/trapmail/config"
	"github.com/dhcgn/trapmail/model"
	"github.com/dhcgn/trapmail/naming"
	"github.com/dhcgn/trapmail/state"
	"github.com/dhcgn/trapmail/stats"
	"github.com/dhcgn/trapmail/store"
)

var (
	ErrMissingName  = errors.New("record name is empty")
	ErrNameMismatch = errors.New("record does not match its file name")
)

// Item carries one store entry through the pipeline. Err is set when the entry could not be
// read.
type Item struct {
	Name   string
	Record model.Record
	Err    error
}

// Key returns the natural key encoded in the item's name.
func (it Item) Key() (naming.Key, bool) {
	return naming.Parse(it.Name)
}

// Validate checks that the name is a record file name whose key agrees with the process
// information inside the record. The ledger is keyed by name, so a renamed file would
// otherwise be mirrored under the wrong key.
func (it Item) Validate() error {
	if it.Name == "" {
		return ErrMissingName
	}
	key, ok := it.Key()
	if !ok {
		return fmt.Errorf("%w: %q", state.ErrUnknownName, it.Name)
	}
	want := naming.Key{PPID: it.Record.PPID, PID: it.Record.PID, TimestampUS: it.Record.TimestampUS}
	if key != want {
		return fmt.Errorf("%w: %s holds %s", ErrNameMismatch, it.Name, want.FileName())
	}
	return nil
}

type StageFunc func(context.Context) error

type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	items   chan Item
	uploads chan Item
	events  chan stats.Event

	ledger state.Tracker

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeItemsOnce   sync.Once
	closeUploadsOnce sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

// New opens the sync ledger in cfg.Sync.StateDir and starts the bridge stage. Dry runs read
// the ledger but never write it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runner, error) {
	ledger, err := state.Open(cfg.Sync.StateDir, !cfg.Sync.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state ledger: %w", err)
	}
	return NewWithLedger(ctx, cfg, ledger, logger), nil
}

// NewWithLedger is New with a caller supplied ledger.
func NewWithLedger(ctx context.Context, cfg config.Config, ledger state.Tracker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(ctx)

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		items:   make(chan Item, 32),
		uploads: make(chan Item, 32),
		events:  make(chan stats.Event, 128),
		ledger:  ledger,
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Ledger() state.Tracker {
	return r.ledger
}

// ItemWriter is where source stages send entries. Sources must call CloseItems when done.
func (r *Runner) ItemWriter() chan<- Item {
	return r.items
}

func (r *Runner) CloseItems() {
	r.closeItemsOnce.Do(func() {
		close(r.items)
	})
}

// Uploads yields the entries the ledger has not seen yet.
func (r *Runner) Uploads() <-chan Item {
	return r.uploads
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, r.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// AddStoreSource scans s for records matching preds and feeds them to the bridge.
func (r *Runner) AddStoreSource(s *store.Store, preds ...store.Predicate) {
	r.AddStage("store", func(ctx context.Context) error {
		defer r.CloseItems()
		for entry, err := range s.Records(preds...) {
			item := Item{Name: entry.Name, Record: entry.Record, Err: err}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.items <- item:
			}
		}
		return nil
	})
}

// Start waits for every stage, flushes the ledger and returns the first stage error.
func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	if closer, ok := r.ledger.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.fail(fmt.Errorf("close state: %w", err))
		}
	}

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("sync failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("sync completed", "duration", duration)
	return nil
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeUploads()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-r.items:
			if !ok {
				return nil
			}

			if item.Err != nil {
				if errors.Is(item.Err, store.ErrRecordCorrupt) {
					r.logger.Warn("skipping corrupt record", "name", item.Name, "err", item.Err)
					r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeCorrupt, Record: item.Name, Err: item.Err})
					continue
				}
				r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeError, Err: item.Err})
				r.fail(fmt.Errorf("store scan: %w", item.Err))
				continue
			}

			r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeScanned, Record: item.Name})

			if err := item.Validate(); err != nil {
				r.logger.Warn("skipping record", "name", item.Name, "err", err)
				r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeError, Record: item.Name, Err: err})
				continue
			}

			if r.ledger.Mirrored(item.Name) {
				r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeDuplicate, Record: item.Name})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.uploads <- item:
				r.EmitEvent(stats.Event{Stage: stats.StageStore, Type: stats.EventTypeEnqueued, Record: item.Name})
			}
		}
	}
}

func (r *Runner) closeUploads() {
	r.closeUploadsOnce.Do(func() {
		close(r.uploads)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
