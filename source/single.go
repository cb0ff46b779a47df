package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// single is a Source whose root folder holds exactly one message.
type single struct {
	name   string
	handle MessageHandle
	load   func() (MessageHandle, error)
}

// NewSingleMessage wraps one message handle in a synthetic source. It is used
// to extract embedded messages with the same machinery as a whole container.
func NewSingleMessage(name string, h MessageHandle) Source {
	return &single{name: name, handle: h}
}

// OpenEML opens a single message file.
func OpenEML(path string) Source {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &single{
		name: name,
		load: func() (MessageHandle, error) {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read eml %s: %w", path, err)
			}
			return NewMessage(raw, name), nil
		},
	}
}

func (s *single) OpenRoot() (Folder, error) {
	if s.handle == nil && s.load != nil {
		h, err := s.load()
		if err != nil {
			return nil, err
		}
		s.handle = h
	}
	return &singleFolder{name: s.name, handle: s.handle}, nil
}

func (s *single) Close() error {
	return nil
}

type singleFolder struct {
	StateGuard
	name   string
	handle MessageHandle
}

func (f *singleFolder) Name() string        { return f.name }
func (f *singleFolder) Open() error         { return f.Enter() }
func (f *singleFolder) Close() error        { f.Leave(); return nil }
func (f *singleFolder) HoldsMessages() bool { return f.handle != nil }
func (f *singleFolder) HoldsFolders() bool  { return false }

func (f *singleFolder) Subfolders() ([]Folder, error) {
	return nil, nil
}

func (f *singleFolder) Messages() (MessageIterator, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	if f.handle == nil {
		return NewSliceIterator(nil), nil
	}
	return NewSliceIterator([]MessageHandle{f.handle}), nil
}
