// Package manifest journals every archive unit written during a run.
package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the journal written into the manifest directory.
const FileName = "manifest.jsonl"

type Kind string

const (
	KindFolder     Kind = "folder"
	KindMessage    Kind = "message"
	KindAttachment Kind = "attachment"
)

// Object is one file written into a unit directory.
type Object struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Entry describes one written unit.
type Entry struct {
	Kind      Kind      `json:"kind"`
	Unit      string    `json:"unit"`
	Path      string    `json:"path"`
	Folder    string    `json:"folder,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	From      string    `json:"from,omitempty"`
	Date      time.Time `json:"date,omitzero"`
	Objects   []Object  `json:"objects,omitempty"`
}

// Recorder receives entries as units are written.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Snapshot struct {
	Recorded int
	Messages int
}

type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byID: make(map[string]int)}
}

func (m *MemoryRecorder) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	if e.MessageID != "" {
		m.byID[e.MessageID]++
	}
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *MemoryRecorder) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Seen reports how often a message id was recorded.
func (m *MemoryRecorder) Seen(messageID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[messageID]
}

func (m *MemoryRecorder) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Recorded: len(m.entries)}
	for _, e := range m.entries {
		if e.Kind == KindMessage {
			s.Messages++
		}
	}
	return s
}

// FileRecorder appends entries to a JSONL journal and keeps them in memory.
type FileRecorder struct {
	*MemoryRecorder
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

func NewFileRecorder(dir string) (*FileRecorder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("manifest directory is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open manifest for append: %w", err)
	}

	return &FileRecorder{
		MemoryRecorder: NewMemoryRecorder(),
		path:           path,
		file:           file,
		writer:         bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Path is the journal file location.
func (f *FileRecorder) Path() string {
	return f.path
}

func (f *FileRecorder) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}

	f.writeMu.Lock()
	if _, err := f.writer.Write(data); err != nil {
		f.writeMu.Unlock()
		return fmt.Errorf("write manifest entry: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		f.writeMu.Unlock()
		return fmt.Errorf("write newline: %w", err)
	}
	f.writeMu.Unlock()

	return f.MemoryRecorder.Record(ctx, e)
}

// Flush writes any buffered data to the underlying file.
func (f *FileRecorder) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	return nil
}

// Close flushes and closes the journal.
func (f *FileRecorder) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("flush manifest: %w", err)
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync manifest: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close manifest: %w", err)
	}
	return firstErr
}

// Read loads a journal written by FileRecorder.
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, fmt.Errorf("parse manifest line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

type multi []Recorder

// Multi fans an entry out to every non-nil recorder. All recorders are tried;
// the errors are joined.
func Multi(recs ...Recorder) Recorder {
	var out multi
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
