package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-to-archive/stats"
)

// Bar manages a progress bar for tracking extracted messages.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	seen    int
	mu      sync.Mutex
	enabled bool
}

// New creates a new progress bar if logLevel is "info". total comes from a
// statistics-only pass over the source.
func New(total int, folders int, logLevel string) *Bar {
	enabled := logLevel == "info" && total > 0

	bar := &Bar{
		total:   total,
		enabled: enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Extracting messages").
			Start()

		bar.pb = pb

		pterm.Info.Printf("Messages in source: %d\n", total)
		pterm.Info.Printf("Folders in source: %d\n", folders)
		pterm.Println()
	}

	return bar
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b != nil && b.enabled
}

// Update advances the bar for every message that was counted or filtered.
func (b *Bar) Update(evt stats.Event) {
	if !b.Enabled() || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeMessage, stats.EventTypeFiltered, stats.EventTypeSkipped:
		if b.seen >= b.total {
			return
		}
		b.seen++
		b.pb.Increment()
	case stats.EventTypeFolder:
		title := evt.Folder
		if len(title) > 40 {
			title = "..." + title[len(title)-37:]
		}
		b.pb.UpdateTitle("Folder: " + title)
	case stats.EventTypeError:
		// Show error messages above the progress bar
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.Enabled() || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we reach 100%
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Extraction complete!")
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter wraps the stats collector with progress bar functionality.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter creates a new progress reporter with optional progress bar.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar.Enabled() {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

// collectStats collects statistics and prints final summary.
func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	if pr.logger != nil {
		pterm.Println()
		pterm.DefaultSection.Println("Summary Statistics")
		pterm.Info.Printf("Duration: %v\n", duration)
		pterm.Info.Printf("Folders: %d\n", summary.Folders)
		pterm.Info.Printf("Messages: %d\n", summary.Messages)
		pterm.Info.Printf("Units written: %d\n", summary.Written)
		pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
		pterm.Info.Printf("Skipped (undecodable): %d\n", summary.Skipped)
		pterm.Info.Printf("Mirrored objects: %d\n", summary.Mirrored)
		pterm.Info.Printf("Warnings: %d\n", summary.Warnings)
		pterm.Info.Printf("Errors: %d\n", summary.Errors)
		if summary.LastError != nil {
			pterm.Error.Printf("Last error: %v\n", summary.LastError)
		}
	}

	return nil
}
