package source

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/dhcgn/mbox-to-archive/header"
	"github.com/dhcgn/mbox-to-archive/model"
)

// Message is a MessageHandle over a raw RFC 822 message. It has no native view.
type Message struct {
	raw   []byte
	label string

	once        sync.Once
	bodies      model.Bodies
	attachments []AttachmentHandle
	parseErr    error
}

// NewMessage wraps raw message bytes. The label is used when the message has
// no subject.
func NewMessage(raw []byte, fallbackLabel string) *Message {
	return &Message{raw: raw, label: fallbackLabel}
}

func (m *Message) Label() string {
	hdr, _ := header.Split(m.raw)
	if subject := header.DecodeWords(header.Parse(hdr).Get("Subject")); subject != "" {
		return subject
	}
	return m.label
}

func (m *Message) Native() (*NativeFields, error) {
	return nil, nil
}

func (m *Message) TransportHeader() ([]byte, error) {
	hdr, _ := header.Split(m.raw)
	if len(bytes.TrimSpace(hdr)) == 0 {
		return nil, nil
	}
	return hdr, nil
}

func (m *Message) Size() int64 {
	return int64(len(m.raw))
}

func (m *Message) Raw() ([]byte, error) {
	return m.raw, nil
}

func (m *Message) Bodies() (model.Bodies, error) {
	m.once.Do(m.parse)
	return m.bodies, m.parseErr
}

func (m *Message) Attachments() ([]AttachmentHandle, error) {
	m.once.Do(m.parse)
	return m.attachments, m.parseErr
}

func (m *Message) parse() {
	mr, err := gomail.CreateReader(bytes.NewReader(m.raw))
	if err != nil && !message.IsUnknownCharset(err) {
		m.parseErr = fmt.Errorf("read message: %w", err)
		return
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil && !message.IsUnknownCharset(err) {
			m.parseErr = fmt.Errorf("read part: %w", err)
			return
		}
		if part == nil {
			return
		}

		data, err := io.ReadAll(part.Body)
		if err != nil && !message.IsUnknownCharset(err) {
			m.parseErr = fmt.Errorf("read part body: %w", err)
			return
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, params, _ := h.ContentType()
			if params["name"] == "" && m.addBody(mediaType, data) {
				continue
			}
			m.attachments = append(m.attachments, newPart(h.Header, mediaType, params["name"], true, data))
		case *gomail.AttachmentHeader:
			mediaType, params, _ := h.ContentType()
			filename, _ := h.Filename()
			if filename == "" {
				filename = params["name"]
			}
			m.attachments = append(m.attachments, newPart(h.Header, mediaType, filename, false, data))
		}
	}
}

func (m *Message) addBody(mediaType string, data []byte) bool {
	switch mediaType {
	case "", "text/plain":
		if m.bodies.Plain == "" {
			m.bodies.Plain = string(data)
			return true
		}
	case "text/html":
		if m.bodies.HTML == "" {
			m.bodies.HTML = string(data)
			return true
		}
	case "text/rtf", "application/rtf":
		if m.bodies.RTF == "" {
			m.bodies.RTF = string(data)
			return true
		}
	}
	return false
}

// Part is an AttachmentHandle over a decoded MIME part.
type Part struct {
	info AttachmentInfo
	data []byte
}

func newPart(h message.Header, mediaType, filename string, inline bool, data []byte) *Part {
	info := AttachmentInfo{
		Filename:  header.DecodeWords(filename),
		MimeTag:   mediaType,
		ContentID: strings.Trim(h.Get("Content-Id"), "<> "),
		Inline:    inline,
	}
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		info.CreatedAt = parseDate(params["creation-date"])
		info.ModifiedAt = parseDate(params["modification-date"])
	}
	return NewPart(info, data)
}

// NewPart builds an attachment handle from already decoded content. A zero
// Size is taken from data.
func NewPart(info AttachmentInfo, data []byte) *Part {
	if info.Size == 0 {
		info.Size = int64(len(data))
	}
	return &Part{info: info, data: data}
}

func (p *Part) Info() AttachmentInfo {
	return p.info
}

func (p *Part) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data)), nil
}

func (p *Part) Embedded() (MessageHandle, bool) {
	if !strings.EqualFold(p.info.MimeTag, "message/rfc822") {
		return nil, false
	}
	label := p.info.Filename
	if label == "" {
		label = "embedded"
	}
	return NewMessage(p.data, label), true
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
