// Package diag carries warnings and fine-grained diagnostics out of the
// extraction core without tying it to a particular logger.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives diagnostics keyed by module tag and the folder or message they concern.
type Sink interface {
	Warn(module, subject, text string)
	Fine(module, subject, text string)
}

// Logger forwards diagnostics to slog. Warnings are logged at warn level,
// fine diagnostics at debug level.
type Logger struct {
	logger   *slog.Logger
	warnings atomic.Int64
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Warn(module, subject, text string) {
	l.warnings.Add(1)
	l.logger.Warn(text, "module", module, "subject", subject)
}

func (l *Logger) Fine(module, subject, text string) {
	l.logger.Debug(text, "module", module, "subject", subject)
}

// Warnings returns the number of warnings seen so far.
func (l *Logger) Warnings() int {
	return int(l.warnings.Load())
}

// Warnf formats text before handing it to s.Warn. A nil sink discards.
func Warnf(s Sink, module, subject, format string, args ...any) {
	if s == nil {
		return
	}
	s.Warn(module, subject, fmt.Sprintf(format, args...))
}

// Finef formats text before handing it to s.Fine. A nil sink discards.
func Finef(s Sink, module, subject, format string, args ...any) {
	if s == nil {
		return
	}
	s.Fine(module, subject, fmt.Sprintf(format, args...))
}

// Level tags a recorded entry.
type Level string

const (
	LevelWarn Level = "warn"
	LevelFine Level = "fine"
)

// Entry is one recorded diagnostic.
type Entry struct {
	Level   Level
	Module  string
	Subject string
	Text    string
}

// Recorder keeps every diagnostic in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Warn(module, subject, text string) {
	r.add(Entry{Level: LevelWarn, Module: module, Subject: subject, Text: text})
}

func (r *Recorder) Fine(module, subject, text string) {
	r.add(Entry{Level: LevelFine, Module: module, Subject: subject, Text: text})
}

func (r *Recorder) add(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries filtered by level. An empty level returns all.
func (r *Recorder) Entries(level Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Counter wraps another sink and counts warnings passing through it.
type Counter struct {
	next     Sink
	warnings atomic.Int64
}

func NewCounter(next Sink) *Counter {
	return &Counter{next: next}
}

func (c *Counter) Warn(module, subject, text string) {
	c.warnings.Add(1)
	if c.next != nil {
		c.next.Warn(module, subject, text)
	}
}

func (c *Counter) Fine(module, subject, text string) {
	if c.next != nil {
		c.next.Fine(module, subject, text)
	}
}

func (c *Counter) Warnings() int {
	return int(c.warnings.Load())
}

type discard struct{}

func (discard) Warn(string, string, string) {}
func (discard) Fine(string, string, string) {}

// Discard returns a sink that drops everything.
func Discard() Sink {
	return discard{}
}
