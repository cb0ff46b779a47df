// Package walker traverses a source depth-first, reconciling every message
// and handing folders and messages to a Sink.
package walker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhcgn/mbox-to-archive/archive"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/header"
	"github.com/dhcgn/mbox-to-archive/model"
	"github.com/dhcgn/mbox-to-archive/reconcile"
	"github.com/dhcgn/mbox-to-archive/source"
)

const module = "walker"

// FolderError aborts the subtree rooted at Path. Stats holds what was
// traversed below Path before the failure.
type FolderError struct {
	Path  string
	Op    string
	Err   error
	Stats model.FolderStats
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *FolderError) Unwrap() error {
	return e.Err
}

// DecodeError marks a failure confined to one message. The walker logs it and
// continues with the next message.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode wraps err as a DecodeError. A nil err stays nil.
func Decode(err error) error {
	if err == nil {
		return nil
	}
	return &DecodeError{Err: err}
}

// ErrExcluded is returned by Sink.AddMessage for messages a policy leaves out.
// They are neither counted nor logged.
var ErrExcluded = errors.New("walker: message excluded")

// Sink receives the traversal. EnterFolder returns the unit that the folder's
// messages and subfolders are placed under; LeaveFolder is called once the
// subtree is complete.
type Sink interface {
	EnterFolder(parent *archive.Unit, f source.Folder) (*archive.Unit, error)
	AddMessage(folder *archive.Unit, msg *model.Message, h source.MessageHandle) error
	LeaveFolder(unit *archive.Unit, f source.Folder, stats model.FolderStats) error
}

type Options struct {
	// ContinueOnFolderError records failed subtrees and carries on with the
	// next sibling instead of aborting the walk.
	ContinueOnFolderError bool
	// OnSkip is called for every message dropped because it failed to decode.
	OnSkip func(folder string, index int, err error)
}

type Walker struct {
	sink       Sink
	reconciler *reconcile.Reconciler
	diag       diag.Sink
	opts       Options

	skipped      int
	excluded     int
	folderErrors []*FolderError
}

func New(sink Sink, reconciler *reconcile.Reconciler, d diag.Sink, opts Options) *Walker {
	return &Walker{sink: sink, reconciler: reconciler, diag: d, opts: opts}
}

// Skipped is the number of messages that failed to decode.
func (w *Walker) Skipped() int {
	return w.skipped
}

// Excluded is the number of messages the sink returned ErrExcluded for.
func (w *Walker) Excluded() int {
	return w.excluded
}

// FolderErrors lists the subtrees skipped under ContinueOnFolderError.
func (w *Walker) FolderErrors() []*FolderError {
	return w.folderErrors
}

// Walk traverses root and everything below it.
func (w *Walker) Walk(root source.Folder, parent *archive.Unit) (model.FolderStats, error) {
	return w.walk(root, parent, nil)
}

func (w *Walker) walk(f source.Folder, parent *archive.Unit, path []string) (model.FolderStats, error) {
	path = append(path, f.Name())
	where := strings.Join(path, "/")
	var stats model.FolderStats

	unit, err := w.sink.EnterFolder(parent, f)
	if err != nil {
		return stats, err
	}

	if err := f.Open(); err != nil {
		return stats, w.abort(unit, f, where, stats, &FolderError{Path: where, Op: "open", Err: err})
	}

	if f.HoldsMessages() {
		if err := w.messages(f, unit, where, &stats); err != nil {
			_ = f.Close()
			return stats, w.abort(unit, f, where, stats, err)
		}
	}

	subs, err := f.Subfolders()
	if cerr := f.Close(); cerr != nil && err == nil {
		diag.Warnf(w.diag, module, where, "close folder: %v", cerr)
	}
	if err != nil {
		return stats, w.abort(unit, f, where, stats, &FolderError{Path: where, Op: "list subfolders", Err: err})
	}

	for _, sub := range subs {
		child, err := w.walk(sub, unit, path)
		if err != nil {
			var ferr *FolderError
			if w.opts.ContinueOnFolderError && errors.As(err, &ferr) {
				diag.Warnf(w.diag, module, ferr.Path, "skipping folder: %v", ferr.Err)
				w.folderErrors = append(w.folderErrors, ferr)
				stats.Merge(ferr.Stats)
				continue
			}
			return stats, err
		}
		stats.Merge(child)
	}

	if err := w.sink.LeaveFolder(unit, f, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// abort closes out a folder whose traversal failed part way. On a FolderError
// for this folder the sink still sees LeaveFolder with the partial statistics,
// which the error then carries to the parent. Other errors pass through.
func (w *Walker) abort(unit *archive.Unit, f source.Folder, where string, stats model.FolderStats, err error) error {
	var ferr *FolderError
	if !errors.As(err, &ferr) || ferr.Path != where {
		return err
	}
	if lerr := w.sink.LeaveFolder(unit, f, stats); lerr != nil {
		return lerr
	}
	ferr.Stats = stats
	return err
}

func (w *Walker) messages(f source.Folder, unit *archive.Unit, where string, stats *model.FolderStats) error {
	it, err := f.Messages()
	if err != nil {
		return &FolderError{Path: where, Op: "enumerate messages", Err: err}
	}

	for idx := 1; it.Next(); idx++ {
		h := it.Handle()
		msg, err := w.Build(h)
		if err == nil {
			err = w.sink.AddMessage(unit, msg, h)
		}
		if errors.Is(err, ErrExcluded) {
			w.excluded++
			continue
		}
		if err != nil {
			var derr *DecodeError
			if !errors.As(err, &derr) {
				return err
			}
			w.skipped++
			diag.Warnf(w.diag, module, where, "skipping message %d: %v", idx, derr.Err)
			if w.opts.OnSkip != nil {
				w.opts.OnSkip(where, idx, derr.Err)
			}
			continue
		}
		stats.Messages++
		stats.Dates = stats.Dates.Extend(msg.BestDate())
	}
	if err := it.Err(); err != nil {
		return &FolderError{Path: where, Op: "read messages", Err: err}
	}
	return nil
}

// Build reconciles the native and transport header views of a handle.
func (w *Walker) Build(h source.MessageHandle) (*model.Message, error) {
	native, err := h.Native()
	if err != nil {
		return nil, Decode(fmt.Errorf("native fields: %w", err))
	}
	raw, err := h.TransportHeader()
	if err != nil {
		return nil, Decode(fmt.Errorf("transport header: %w", err))
	}
	var hdr *header.Header
	if raw != nil {
		hdr = header.Parse(raw)
	}
	msg := w.reconciler.Reconcile(native, hdr)
	if msg.Size == 0 {
		msg.Size = h.Size()
	}
	return msg, nil
}
