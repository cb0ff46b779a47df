// Package extract drives one extraction run: it opens a source, walks it and
// either materializes archive units or only counts what it sees.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhcgn/mbox-to-archive/archive"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/model"
	"github.com/dhcgn/mbox-to-archive/reconcile"
	"github.com/dhcgn/mbox-to-archive/source"
	"github.com/dhcgn/mbox-to-archive/stats"
	"github.com/dhcgn/mbox-to-archive/walker"
)

// DefaultRootName names the top unit when Options.RootName is empty.
const DefaultRootName = "archive"

var ErrNoDestination = errors.New("extract: destination is required to write units")

type Mode int

const (
	ModeMaterialize Mode = iota
	ModeStatistics
)

func (m Mode) String() string {
	if m == ModeStatistics {
		return "statistics"
	}
	return "materialize"
}

type Options struct {
	Destination string
	RootName    string
	NameLength  int
	Mode        Mode
	// Policy defaults to MaterializeAll, or StatisticsOnly in ModeStatistics.
	Policy                Policy
	ContinueOnFolderError bool
	Recorder              manifest.Recorder
	Events                func(stats.Event)

	// Counter and RootUnit are set for nested runs over embedded messages.
	Counter  *archive.Counter
	RootUnit *archive.Unit

	depth int
}

// Report summarizes a run.
type Report struct {
	Messages     int
	Folders      int
	Written      int
	Dates        model.DateRange
	Warnings     int
	Skipped      int
	Excluded     int
	FolderErrors []*walker.FolderError
}

// RunError is a failure that aborts the whole run.
type RunError struct {
	Op   string
	Path string
	Err  error
}

func (e *RunError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extract: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("extract: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Orchestrator runs extractions. Each orchestrator owns one unit counter, so
// names are unique across everything it writes, including nested runs.
type Orchestrator struct {
	opts    Options
	diag    diag.Sink
	counter *archive.Counter
	namer   *archive.Namer
}

func New(opts Options, sink diag.Sink) *Orchestrator {
	if sink == nil {
		sink = diag.Discard()
	}
	if opts.RootName == "" {
		opts.RootName = DefaultRootName
	}
	if opts.NameLength <= 0 {
		opts.NameLength = archive.DefaultNameLength
	}
	if opts.Policy == nil {
		opts.Policy = MaterializeAll
		if opts.Mode == ModeStatistics {
			opts.Policy = StatisticsOnly
		}
	}
	counter := opts.Counter
	if counter == nil {
		counter = &archive.Counter{}
	}
	return &Orchestrator{
		opts:    opts,
		diag:    sink,
		counter: counter,
		namer:   archive.NewNamer(counter, opts.NameLength),
	}
}

func (o *Orchestrator) writes() bool {
	return o.opts.Mode == ModeMaterialize
}

func (o *Orchestrator) emit(evt stats.Event) {
	if o.opts.Events != nil {
		o.opts.Events(evt)
	}
}

// Run extracts src without cancellation.
func (o *Orchestrator) Run(src source.Source) (Report, error) {
	return o.RunContext(context.Background(), src)
}

// RunContext extracts src. Cancelling ctx stops the walk before the next
// folder or message.
func (o *Orchestrator) RunContext(ctx context.Context, src source.Source) (Report, error) {
	var report Report

	root, err := src.OpenRoot()
	if err != nil {
		return report, o.fail(&RunError{Op: "open source root", Err: err})
	}

	rootUnit, err := o.rootUnit()
	if err != nil {
		return report, o.fail(err)
	}

	var d diag.Sink = o.diag
	if o.opts.depth == 0 && o.opts.Events != nil {
		d = &eventSink{next: d, emit: o.emit}
	}
	counting := diag.NewCounter(d)
	m := &materializer{
		ctx:      ctx,
		o:        o,
		diag:     counting,
		rootUnit: rootUnit,
		report:   &report,
		paths:    make(map[*archive.Unit]string),
	}
	w := walker.New(m, reconcile.New(counting), counting, walker.Options{
		ContinueOnFolderError: o.opts.ContinueOnFolderError,
		OnSkip: func(folder string, index int, err error) {
			o.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeSkipped, Folder: folder, Err: err,
				Detail: fmt.Sprintf("message %d", index)})
		},
	})

	folderStats, err := w.Walk(root, rootUnit)
	report.Messages = folderStats.Messages
	report.Dates = folderStats.Dates
	report.Skipped = w.Skipped()
	report.Excluded = w.Excluded()
	report.FolderErrors = w.FolderErrors()
	report.Warnings = counting.Warnings()
	if err != nil {
		return report, o.fail(err)
	}

	if o.writes() && o.opts.RootUnit == nil {
		if err := m.writeRoot(rootUnit, folderStats); err != nil {
			return report, o.fail(err)
		}
	}
	return report, nil
}

// rootUnit is the unit the source root is placed under. A nested run reuses
// the holder it was given; a top-level run creates the destination directory.
func (o *Orchestrator) rootUnit() (*archive.Unit, error) {
	if o.opts.RootUnit != nil {
		return o.opts.RootUnit, nil
	}
	if !o.writes() {
		return archive.NewUnit(o.opts.Destination, o.opts.RootName), nil
	}
	if strings.TrimSpace(o.opts.Destination) == "" {
		return nil, &RunError{Op: "create destination", Err: ErrNoDestination}
	}
	unit := archive.NewUnit(o.opts.Destination, o.opts.RootName)
	if err := os.MkdirAll(unit.Dir(), 0o755); err != nil {
		return nil, &RunError{Op: "create destination", Path: unit.Dir(), Err: err}
	}
	return unit, nil
}

func (o *Orchestrator) fail(err error) error {
	o.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeError, Err: err})
	return err
}

// nested runs an extraction of one embedded message below holder. It shares
// this orchestrator's counter and sinks; everything below is written.
func (o *Orchestrator) nested(ctx context.Context, holder *archive.Unit, label string, h source.MessageHandle, d diag.Sink) (Report, error) {
	opts := o.opts
	opts.Counter = o.counter
	opts.RootUnit = holder
	opts.Policy = MaterializeAll
	opts.ContinueOnFolderError = false
	opts.depth++
	child := New(opts, d)
	return child.RunContext(ctx, source.NewSingleMessage(label, h))
}

// eventSink mirrors warnings into the event stream.
type eventSink struct {
	next diag.Sink
	emit func(stats.Event)
}

func (s *eventSink) Warn(module, subject, text string) {
	s.emit(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeWarning, Folder: subject, Detail: module + ": " + text})
	s.next.Warn(module, subject, text)
}

func (s *eventSink) Fine(module, subject, text string) {
	s.next.Fine(module, subject, text)
}
