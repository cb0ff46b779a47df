// Package dirtree exposes a directory of mail files as a folder hierarchy.
// Directories become folders, mbox files become folders of their own and
// .eml files are messages of the directory that holds them. Thunderbird
// profiles are understood: "X.sbd" holds the subfolders of mbox file "X"
// and index files are ignored.
package dirtree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/mbox"
	"github.com/dhcgn/mbox-to-archive/source"
)

const (
	subfolderSuffix = ".sbd"
	emlExt          = ".eml"
	mboxExt         = ".mbox"
)

var ignoredSuffixes = []string{".msf", ".dat", ".json", ".db", ".sqlite", ".html"}

type Options struct {
	Path    string
	Dialect mbox.Dialect
	Sink    diag.Sink
}

type Source struct {
	opts Options
}

func Open(opts Options) (*Source, error) {
	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open directory: %s is not a directory", opts.Path)
	}
	return &Source{opts: opts}, nil
}

func (s *Source) OpenRoot() (source.Folder, error) {
	return &dirFolder{path: s.opts.Path, name: filepath.Base(s.opts.Path), opts: s.opts}, nil
}

func (s *Source) Close() error {
	return nil
}

type listing struct {
	emls    []string
	folders []source.Folder
}

func list(dir string, opts Options) (listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return listing{}, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}

	var l listing
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		if strings.HasPrefix(name, ".") {
			continue
		}

		if e.IsDir() {
			switch {
			case strings.HasSuffix(name, ".mozmsgs"):
			case strings.HasSuffix(name, subfolderSuffix):
				base := strings.TrimSuffix(name, subfolderSuffix)
				if !present[base] && !present[base+mboxExt] {
					l.folders = append(l.folders, &dirFolder{path: path, name: base, opts: opts})
				}
			default:
				l.folders = append(l.folders, &dirFolder{path: path, name: name, opts: opts})
			}
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == emlExt:
			l.emls = append(l.emls, path)
		case ignored(name):
		case ext == "" || ext == mboxExt:
			base := strings.TrimSuffix(name, filepath.Ext(name))
			folder := &mboxFolder{Folder: mbox.NewFolder(path, base, opts.Dialect, opts.Sink), opts: opts}
			if present[name+subfolderSuffix] {
				folder.sbd = filepath.Join(dir, name+subfolderSuffix)
			} else if ext == mboxExt && present[base+subfolderSuffix] {
				folder.sbd = filepath.Join(dir, base+subfolderSuffix)
			}
			l.folders = append(l.folders, folder)
		}
	}
	return l, nil
}

func ignored(name string) bool {
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			return true
		}
	}
	return false
}

// dirFolder is a plain directory.
type dirFolder struct {
	source.StateGuard
	path string
	name string
	opts Options
	l    *listing
}

func (f *dirFolder) Name() string { return f.name }

func (f *dirFolder) Open() error {
	if err := f.Enter(); err != nil {
		return err
	}
	l, err := list(f.path, f.opts)
	if err != nil {
		f.Leave()
		return err
	}
	f.l = &l
	return nil
}

func (f *dirFolder) Close() error {
	f.Leave()
	f.l = nil
	return nil
}

func (f *dirFolder) HoldsMessages() bool { return f.l != nil && len(f.l.emls) > 0 }
func (f *dirFolder) HoldsFolders() bool  { return f.l != nil && len(f.l.folders) > 0 }

func (f *dirFolder) Subfolders() ([]source.Folder, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	return f.l.folders, nil
}

func (f *dirFolder) Messages() (source.MessageIterator, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	return &emlIterator{paths: f.l.emls}, nil
}

// mboxFolder is an mbox file whose subfolders live in a sibling .sbd directory.
type mboxFolder struct {
	*mbox.Folder
	sbd  string
	opts Options
}

func (f *mboxFolder) HoldsFolders() bool { return f.sbd != "" }

func (f *mboxFolder) Subfolders() ([]source.Folder, error) {
	if f.sbd == "" {
		return nil, nil
	}
	l, err := list(f.sbd, f.opts)
	if err != nil {
		return nil, err
	}
	return l.folders, nil
}

// emlIterator reads .eml files lazily.
type emlIterator struct {
	paths   []string
	idx     int
	current source.MessageHandle
	err     error
}

func (it *emlIterator) Next() bool {
	if it.err != nil || it.idx >= len(it.paths) {
		it.current = nil
		return false
	}
	path := it.paths[it.idx]
	it.idx++
	raw, err := os.ReadFile(path)
	if err != nil {
		it.err = fmt.Errorf("read eml %s: %w", path, err)
		it.current = nil
		return false
	}
	it.current = source.NewMessage(raw, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return true
}

func (it *emlIterator) Handle() source.MessageHandle { return it.current }
func (it *emlIterator) Err() error                   { return it.err }
