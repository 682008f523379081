package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/trapmail/stats"
)

// Bar manages a progress bar for tracking records as the sync scans them.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	scanned     int
	mu          sync.Mutex
	enabled     bool
}

// New creates a progress bar. It only renders at log level "info"; at other levels the log
// lines already tell the story.
func New(total int, alreadyDone int, logLevel string) *Bar {
	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     logLevel == "info" && total > 0,
	}
	if !bar.enabled {
		return bar
	}

	pb, _ := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Mirroring records").
		Start()
	bar.pb = pb

	pterm.Info.Printfln("Records in store: %d", total)
	pterm.Info.Printfln("Already mirrored: %d", alreadyDone)
	pterm.Info.Printfln("Remaining: %d", total-alreadyDone)

	return bar
}

// Update advances the bar for scanned records and surfaces errors above it.
func (b *Bar) Update(evt stats.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned, stats.EventTypeCorrupt:
		b.scanned++
		if !b.enabled || b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.Record != "" {
			b.pb.UpdateTitle("Mirroring " + evt.Record)
		}
	case stats.EventTypeError:
		if b.enabled && evt.Err != nil {
			pterm.Error.Printfln("Error: %v", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
}

// Scanned returns how many records the bar has seen.
func (b *Bar) Scanned() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scanned
}

// Reporter feeds one event stream into both the bar and a stats collector and prints the
// summary once the stream ends.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes to stream. bar may be nil.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("progress", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan stats.Event) error {
	defer func() {
		if r.bar != nil {
			r.bar.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				r.printSummary()
				return nil
			}
			r.collector.Apply(evt)
			if r.bar != nil {
				r.bar.Update(evt)
			}
		}
	}
}

// Summary returns the counts seen so far.
func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}

func (r *Reporter) printSummary() {
	summary := r.collector.Snapshot()
	duration := time.Since(r.started)

	if r.bar == nil || !r.bar.enabled {
		if r.logger != nil {
			r.logger.Info("sync summary", append(summary.LogAttrs(), "duration", duration)...)
		}
		return
	}

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printfln("Duration: %v", duration)
	pterm.Info.Printfln("Scanned: %d", summary.Scanned)
	pterm.Info.Printfln("Corrupt (skipped): %d", summary.Corrupt)
	pterm.Info.Printfln("Enqueued: %d", summary.Enqueued)
	pterm.Info.Printfln("Uploaded: %d", summary.Uploaded)
	pterm.Info.Printfln("Dry-run uploaded: %d", summary.DryRunUploaded)
	pterm.Info.Printfln("Already mirrored (skipped): %d", summary.Duplicates)
	pterm.Info.Printfln("Errors: %d", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printfln("Last error: %v", summary.LastError)
	}
}
