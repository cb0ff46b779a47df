// Package reconcile merges transport header values and native store values
// into one canonical message.
package reconcile

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/header"
	"github.com/dhcgn/mbox-to-archive/model"
	"github.com/dhcgn/mbox-to-archive/source"
)

const module = "reconcile"

// Reconciler applies the header-first, native-second policy field by field.
// Missing or malformed values are reported to the sink; reconciliation itself
// never fails.
type Reconciler struct {
	sink diag.Sink
}

func New(sink diag.Sink) *Reconciler {
	return &Reconciler{sink: sink}
}

type run struct {
	sink    diag.Sink
	native  *source.NativeFields
	hdr     *header.Header
	subject string
}

// Reconcile builds the canonical message. Either input may be nil. Bodies,
// attachments and size beyond the native size are left to the caller.
func (r *Reconciler) Reconcile(native *source.NativeFields, hdr *header.Header) *model.Message {
	if native == nil {
		native = &source.NativeFields{}
	}
	x := &run{sink: r.sink, native: native, hdr: hdr}
	msg := &model.Message{}

	msg.Subject = x.subjectField()
	x.subject = msg.Subject

	msg.From = x.fromField()
	msg.ReplyTo = x.replyToField()
	msg.ReturnPath = x.single("Return-Path", native.ReturnPath)
	msg.To = x.recipients("To", source.RecipientTo)
	msg.Cc = x.recipients("Cc", source.RecipientCc)
	msg.Bcc = x.recipients("Bcc", source.RecipientBcc)
	msg.SentAt = x.sentField()
	msg.ReceivedAt = x.receivedField()

	var thread *source.NativeFields
	msg.MessageID, thread = x.messageIDField(msg.SentAt)
	msg.InReplyTo = x.inReplyToField(thread)
	msg.References = strings.Fields(hdr.Get("References"))

	if hdr != nil {
		msg.HeaderLines = hdr.Lines()
	}
	msg.Size = native.Size
	return msg
}

// first returns the first occurrence of a single-valued header field and
// reports discarded duplicates.
func (x *run) first(name string) string {
	value, count := x.hdr.First(name)
	if count > 1 {
		diag.Warnf(x.sink, module, x.subject, "discarding %d duplicate %s header(s)", count-1, x.hdr.Name(header.KeyOf(name)))
	}
	return strings.TrimSpace(value)
}

func (x *run) single(name, native string) string {
	if v := x.first(name); v != "" {
		return header.DecodeWords(v)
	}
	return strings.TrimSpace(native)
}

func (x *run) subjectField() string {
	if x.hdr.Has("Subject") {
		value, count := x.hdr.First("Subject")
		subject := header.DecodeWords(strings.TrimSpace(value))
		if count > 1 {
			diag.Warnf(x.sink, module, subject, "discarding %d duplicate %s header(s)", count-1, x.hdr.Name("subject"))
		}
		if subject != "" {
			return subject
		}
	}
	if s := StripLegacyPrefix(x.native.Subject); s != "" {
		return s
	}
	diag.Warnf(x.sink, module, "", "message has no subject")
	return ""
}

// StripLegacyPrefix removes the control prefix old native stores put in front
// of subjects: a 0x01 byte followed by one character.
func StripLegacyPrefix(s string) string {
	if len(s) >= 2 && s[0] == 0x01 {
		_, size := utf8.DecodeRuneInString(s[1:])
		s = s[1+size:]
	}
	return strings.TrimSpace(s)
}

func (x *run) fromField() string {
	if v := x.first("From"); v != "" {
		if list := x.addressList("From", v); len(list) > 0 {
			return list[0]
		}
	}
	if a := SelectSender(x.native.Sender, x.native.SentRepresenting); !a.Empty() {
		return header.FormatAddress(a.Name, a.Address)
	}
	diag.Warnf(x.sink, module, x.subject, "message has no sender")
	return ""
}

// SelectSender picks the SMTP-typed slot first, then the sender slot, then the
// sent-representing slot. Empty slots are skipped.
func SelectSender(sender, representing source.NativeAddress) source.NativeAddress {
	switch {
	case !sender.Empty() && strings.EqualFold(sender.Type, source.AddressTypeSMTP):
		return sender
	case !representing.Empty() && strings.EqualFold(representing.Type, source.AddressTypeSMTP):
		return representing
	case !sender.Empty():
		return sender
	default:
		return representing
	}
}

func (x *run) replyToField() []string {
	if v := x.first("Reply-To"); v != "" {
		return union(nil, x.addressList("Reply-To", v))
	}
	return union(nil, x.native.ReplyTo)
}

func (x *run) recipients(name string, kind source.RecipientType) []string {
	var native []string
	for _, rcpt := range x.native.Recipients {
		if rcpt.Type != kind {
			continue
		}
		if entry := header.FormatAddress(rcpt.Name, rcpt.Address); entry != "" {
			native = append(native, entry)
		}
	}
	return union(union(nil, native), x.addressList(name, x.hdr.Get(name)))
}

// addressList parses strictly and falls back to one decoded literal entry.
func (x *run) addressList(name, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	list, err := header.ParseAddressList(value)
	if err == nil {
		return list
	}
	diag.Warnf(x.sink, module, x.subject, "unparseable %s header kept literally: %v", name, err)
	return []string{header.DecodeWords(value)}
}

// union appends entries not yet present, comparing by address.
func union(dst, entries []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(entries))
	for _, e := range dst {
		seen[header.AddressKey(e)] = struct{}{}
	}
	for _, e := range entries {
		k := header.AddressKey(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, e)
	}
	return dst
}

func (x *run) sentField() time.Time {
	if v := x.first("Date"); v != "" {
		if t, err := mail.ParseDate(v); err == nil {
			return t
		}
		diag.Warnf(x.sink, module, x.subject, "unparseable Date header %q", v)
	}
	return x.native.SentAt
}

func (x *run) receivedField() time.Time {
	if v, _ := x.hdr.First("Received"); v != "" {
		if idx := strings.LastIndex(v, ";"); idx >= 0 {
			if t, err := mail.ParseDate(strings.TrimSpace(v[idx+1:])); err == nil {
				return t
			}
		}
	}
	return x.native.ReceivedAt
}

// messageIDField returns the id and, when it was synthesized from the
// conversation index, the native fields it came from.
func (x *run) messageIDField(sent time.Time) (string, *source.NativeFields) {
	if v := x.first("Message-Id"); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(x.native.MessageID); v != "" {
		return v, nil
	}

	diag.Warnf(x.sink, module, x.subject, "message has no Message-Id, synthesizing one")
	if len(x.native.ConversationIndex) > 0 {
		ti, err := ParseThreadIndex(x.native.ConversationIndex)
		if err == nil {
			return ti.MessageID(), x.native
		}
		diag.Warnf(x.sink, module, x.subject, "%v", err)
	}
	return placeholderID(x.subject, sent), nil
}

func (x *run) inReplyToField(thread *source.NativeFields) string {
	if v := x.first("In-Reply-To"); v != "" {
		return v
	}
	if v := strings.TrimSpace(x.native.InReplyTo); v != "" {
		return v
	}
	if thread != nil {
		if ti, err := ParseThreadIndex(thread.ConversationIndex); err == nil {
			return ti.ParentID()
		}
	}
	return ""
}
