package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageWalk   Stage = "walk"
	StageWrite  Stage = "write"
	StageIndex  Stage = "index"
	StageMirror Stage = "mirror"
)

type EventType string

const (
	EventTypeFolder   EventType = "folder"
	EventTypeMessage  EventType = "message"
	EventTypeSkipped  EventType = "skipped"
	EventTypeFiltered EventType = "filtered"
	EventTypeWritten  EventType = "written"
	EventTypeMirrored EventType = "mirrored"
	EventTypeWarning  EventType = "warning"
	EventTypeError    EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	Folder    string
	MessageID string
	Subject   string
	From      string
	Path      string
	Err       error
	Detail    string
}

type Summary struct {
	Folders   int
	Messages  int
	Skipped   int
	Filtered  int
	Written   int
	Mirrored  int
	Warnings  int
	Errors    int
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"folders", s.Folders,
		"messages", s.Messages,
		"skipped", s.Skipped,
		"filtered", s.Filtered,
		"written", s.Written,
		"mirrored", s.Mirrored,
		"warnings", s.Warnings,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Breakdown counts messages per folder, sender and subject.
type Breakdown struct {
	Folders  map[string]int
	Senders  map[string]int
	Subjects map[string]int
}

func newBreakdown() Breakdown {
	return Breakdown{
		Folders:  map[string]int{},
		Senders:  map[string]int{},
		Subjects: map[string]int{},
	}
}

type Collector struct {
	mu        sync.Mutex
	summary   Summary
	breakdown Breakdown
}

func NewCollector() *Collector {
	return &Collector{breakdown: newBreakdown()}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Breakdown returns a copy of the per-key counters.
func (c *Collector) Breakdown() Breakdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := newBreakdown()
	for k, v := range c.breakdown.Folders {
		out.Folders[k] = v
	}
	for k, v := range c.breakdown.Senders {
		out.Senders[k] = v
	}
	for k, v := range c.breakdown.Subjects {
		out.Subjects[k] = v
	}
	return out
}

// Apply folds one event into the summary.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeFolder:
		c.summary.Folders++
	case EventTypeMessage:
		c.summary.Messages++
		c.breakdown.Folders[evt.Folder]++
		if evt.From != "" {
			c.breakdown.Senders[evt.From]++
		}
		if evt.Subject != "" {
			c.breakdown.Subjects[evt.Subject]++
		}
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeMirrored:
		c.summary.Mirrored++
	case EventTypeWarning:
		c.summary.Warnings++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

func (r *Reporter) Breakdown() Breakdown {
	return r.collector.Breakdown()
}

// Pair is one counted key.
type Pair struct {
	Key   string
	Value int
}

// Top returns the limit most frequent keys, ties broken by key. A negative
// limit returns all keys.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && len(pairs) > limit {
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
