// Package mbox reads flat mailbox files. The heuristic dialect finds message
// boundaries with the delimiter Scanner; the strict dialect relies on
// go-mbox for well-formed mboxo/mboxrd files.
package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/source"
)

// Dialect selects how message boundaries are found.
type Dialect string

const (
	DialectAuto      Dialect = "auto"
	DialectHeuristic Dialect = "heuristic"
	DialectStrict    Dialect = "strict"
)

var ErrUnknownDialect = errors.New("mbox: unknown dialect")

// ParseDialect validates a dialect name. The empty string selects DialectAuto.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DialectAuto, nil
	case DialectAuto, DialectHeuristic, DialectStrict:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

type Options struct {
	Path    string
	Dialect Dialect
	Sink    diag.Sink
}

// Source is a single mbox file exposed as a root folder without subfolders.
type Source struct {
	opts Options
}

func Open(opts Options) (*Source, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open mbox: %s is a directory", path)
	}
	opts.Path = path
	return &Source{opts: opts}, nil
}

func (s *Source) OpenRoot() (source.Folder, error) {
	name := strings.TrimSuffix(filepath.Base(s.opts.Path), filepath.Ext(s.opts.Path))
	return NewFolder(s.opts.Path, name, s.opts.Dialect, s.opts.Sink), nil
}

func (s *Source) Close() error {
	return nil
}

// Folder is one mbox file.
type Folder struct {
	source.StateGuard

	path    string
	name    string
	dialect Dialect
	sink    diag.Sink
	file    *os.File
}

func NewFolder(path, name string, dialect Dialect, sink diag.Sink) *Folder {
	return &Folder{path: path, name: name, dialect: dialect, sink: sink}
}

func (f *Folder) Name() string        { return f.name }
func (f *Folder) Path() string        { return f.path }
func (f *Folder) HoldsMessages() bool { return f.path != "" }
func (f *Folder) HoldsFolders() bool  { return false }

func (f *Folder) Open() error {
	if err := f.Enter(); err != nil {
		return err
	}
	if f.path == "" {
		return nil
	}
	file, err := os.Open(f.path)
	if err != nil {
		f.Leave()
		return fmt.Errorf("open mbox: %w", err)
	}
	f.file = file
	return nil
}

func (f *Folder) Close() error {
	f.Leave()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *Folder) Subfolders() ([]source.Folder, error) {
	return nil, nil
}

func (f *Folder) Messages() (source.MessageIterator, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	if f.file == nil {
		return source.NewSliceIterator(nil), nil
	}

	dialect := f.dialect
	if dialect == "" || dialect == DialectAuto {
		d, err := detectDialect(f.file, f.name)
		if err != nil {
			return nil, err
		}
		dialect = d
	}

	if dialect == DialectStrict {
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind mbox: %w", err)
		}
		return &strictIterator{reader: mboxlib.NewReader(f.file), name: f.name}, nil
	}

	ranges, err := Ranges(f.file, ScannerOptions{Name: f.path, Sink: f.sink})
	if err != nil {
		return nil, fmt.Errorf("scan mbox: %w", err)
	}
	return &rangeIterator{file: f.file, ranges: ranges, name: f.name}, nil
}

// detectDialect picks the strict dialect only when the first non-blank line
// starts with "From " but is too long or oddly shaped for the heuristic
// scanner. Anything else, a file without any "From " line included, is
// scanned heuristically.
func detectDialect(r io.ReadSeeker, name string) (Dialect, error) {
	s, err := NewScanner(r, ScannerOptions{BlockSize: shapeBytes * 2, Name: name})
	if err != nil {
		return "", err
	}
	for {
		l, ok, err := s.readLine()
		if err != nil {
			return "", err
		}
		if !ok {
			return DialectHeuristic, nil
		}
		if l.length == 0 {
			continue
		}
		if bytes.HasPrefix(l.head, delimiterPrefix) && !IsDelimiter(l.head, l.length) {
			return DialectStrict, nil
		}
		return DialectHeuristic, nil
	}
}
