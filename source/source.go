// Package source defines the protocol every mailbox backend implements so the
// walker can traverse it without knowing the container format.
package source

import (
	"errors"
	"io"
	"time"

	"github.com/dhcgn/mbox-to-archive/model"
)

// Source is an opened mailbox container.
type Source interface {
	OpenRoot() (Folder, error)
	Close() error
}

// Folder is one node of the container's folder hierarchy.
type Folder interface {
	Name() string
	Open() error
	Close() error
	HoldsMessages() bool
	HoldsFolders() bool
	Subfolders() ([]Folder, error)
	Messages() (MessageIterator, error)
}

// MessageIterator enumerates the messages of an open folder. Next returns false
// at the end of the sequence or on error; Err distinguishes the two.
type MessageIterator interface {
	Next() bool
	Handle() MessageHandle
	Err() error
}

// MessageHandle gives access to one stored message. Native returns nil when the
// backend has no native view; TransportHeader returns nil when there is no
// transport header block.
type MessageHandle interface {
	Label() string
	Native() (*NativeFields, error)
	TransportHeader() ([]byte, error)
	Bodies() (model.Bodies, error)
	Attachments() ([]AttachmentHandle, error)
	Size() int64
	Raw() ([]byte, error)
}

// AttachmentHandle gives access to one attachment. Embedded returns a handle
// for attachments that are themselves messages.
type AttachmentHandle interface {
	Info() AttachmentInfo
	Open() (io.ReadCloser, error)
	Embedded() (MessageHandle, bool)
}

// AttachmentInfo is the descriptive part of an attachment.
type AttachmentInfo struct {
	Filename   string
	MimeTag    string
	ContentID  string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Size       int64
	Inline     bool
}

// RecipientType is the native recipient classification code.
type RecipientType int

const (
	RecipientTo  RecipientType = 1
	RecipientCc  RecipientType = 2
	RecipientBcc RecipientType = 3
)

// AddressTypeSMTP tags an address slot holding an internet address.
const AddressTypeSMTP = "SMTP"

// NativeAddress is one native address slot.
type NativeAddress struct {
	Name    string
	Address string
	Type    string
}

// Empty reports whether the slot carries no address.
func (a NativeAddress) Empty() bool {
	return a.Address == ""
}

// NativeRecipient is one native recipient entry.
type NativeRecipient struct {
	Type    RecipientType
	Name    string
	Address string
}

// NativeFields are the values a native message store carries independently of
// any transport header.
type NativeFields struct {
	Subject           string
	MessageID         string
	InReplyTo         string
	Sender            NativeAddress
	SentRepresenting  NativeAddress
	Recipients        []NativeRecipient
	ReplyTo           []string
	ReturnPath        string
	SentAt            time.Time
	ReceivedAt        time.Time
	ConversationIndex []byte
	Size              int64
}

var (
	// ErrFolderAlreadyOpen is returned when an open folder is opened again.
	ErrFolderAlreadyOpen = errors.New("source: folder already open")
	// ErrFolderNotOpen is returned when an unopened or closed folder is enumerated.
	ErrFolderNotOpen = errors.New("source: folder not open")
)

// FolderState is the lifecycle state of a folder.
type FolderState int

const (
	Unopened FolderState = iota
	Open
	Closed
)

func (s FolderState) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unopened"
	}
}

// StateGuard enforces the Unopened -> Open -> Closed lifecycle. Backends embed
// it in their folder types. Reopening a closed folder is allowed.
type StateGuard struct {
	state FolderState
}

func (g *StateGuard) State() FolderState {
	return g.state
}

// Enter moves the folder to Open.
func (g *StateGuard) Enter() error {
	if g.state == Open {
		return ErrFolderAlreadyOpen
	}
	g.state = Open
	return nil
}

// Leave moves the folder to Closed. Closing a folder that is not open is a no-op.
func (g *StateGuard) Leave() {
	if g.state == Open {
		g.state = Closed
	}
}

// Require fails unless the folder is open.
func (g *StateGuard) Require() error {
	if g.state != Open {
		return ErrFolderNotOpen
	}
	return nil
}

// SliceIterator iterates over an in-memory list of handles.
type SliceIterator struct {
	handles []MessageHandle
	pos     int
	current MessageHandle
}

func NewSliceIterator(handles []MessageHandle) *SliceIterator {
	return &SliceIterator{handles: handles}
}

func (it *SliceIterator) Next() bool {
	if it.pos >= len(it.handles) {
		it.current = nil
		return false
	}
	it.current = it.handles[it.pos]
	it.pos++
	return true
}

func (it *SliceIterator) Handle() MessageHandle {
	return it.current
}

func (it *SliceIterator) Err() error {
	return nil
}
