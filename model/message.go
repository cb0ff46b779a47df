package model

import (
	"time"

	"github.com/dhcgn/mbox-to-archive/archive"
)

// Message is the canonical, reconciled view of a single email message.
type Message struct {
	Subject     string
	MessageID   string
	InReplyTo   string
	References  []string
	From        string
	ReplyTo     []string
	To          []string
	Cc          []string
	Bcc         []string
	ReturnPath  string
	SentAt      time.Time
	ReceivedAt  time.Time
	Bodies      Bodies
	Attachments []Attachment
	HeaderLines []string
	Size        int64
}

// BestDate returns the sent date, falling back to the received date.
func (m *Message) BestDate() time.Time {
	if !m.SentAt.IsZero() {
		return m.SentAt
	}
	return m.ReceivedAt
}

// Bodies holds the independently optional body variants of a message.
type Bodies struct {
	Plain string
	HTML  string
	RTF   string
}

// Empty reports whether no body variant is present.
func (b Bodies) Empty() bool {
	return b.Plain == "" && b.HTML == "" && b.RTF == ""
}

// AttachmentKind distinguishes inline content from messages embedded in the store.
type AttachmentKind int

const (
	AttachmentInline AttachmentKind = iota
	AttachmentEmbedded
)

func (k AttachmentKind) String() string {
	if k == AttachmentEmbedded {
		return "embedded"
	}
	return "inline"
}

// Attachment is one attachment of a canonical message. Content stays nil for
// an embedded message until the nested extraction has produced its unit.
type Attachment struct {
	Filename   string
	Content    AttachmentContent
	CreatedAt  time.Time
	ModifiedAt time.Time
	MimeTag    string
	ContentID  string
	Kind       AttachmentKind
}

// AttachmentContent is either RawBytes or NestedUnit.
type AttachmentContent interface {
	attachmentContent()
}

// RawBytes is attachment content carried verbatim.
type RawBytes []byte

func (RawBytes) attachmentContent() {}

// NestedUnit is the archive subtree produced by extracting an embedded message.
type NestedUnit struct {
	Unit     *archive.Unit
	Messages int
}

func (NestedUnit) attachmentContent() {}
