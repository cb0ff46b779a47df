// Package header parses transport header blocks into an ordered,
// case-insensitive view where repeated fields are joined by commas.
package header

import (
	"bytes"
	"mime"
	"net/mail"
	"strings"

	"github.com/emersion/go-message/charset"
)

// Key is a case-folded header field name.
type Key string

// KeyOf folds a field name.
func KeyOf(name string) Key {
	return Key(strings.ToLower(strings.TrimSpace(name)))
}

type field struct {
	name  string
	value string
	first string
	count int
}

// Header is an ordered header view. Each key maps to the comma-join of all
// of its occurrences; the first occurrence and the count are kept as well.
type Header struct {
	order  []Key
	fields map[Key]*field
	lines  []string
}

func New() *Header {
	return &Header{fields: make(map[Key]*field)}
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeWords decodes RFC 2047 encoded words, returning s unchanged when it cannot be decoded.
func DecodeWords(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// Parse reads a header block. Parsing stops at the first empty line; lines
// that are not fields (such as an mbox "From " line) are ignored. Lines are
// not length limited.
func Parse(raw []byte) *Header {
	h := New()

	var current string
	flush := func() {
		if current == "" {
			return
		}
		name, value, ok := strings.Cut(current, ":")
		current = ""
		if !ok || strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t") {
			return
		}
		h.Add(name, strings.TrimSpace(value))
	}

	rest := raw
	for len(rest) > 0 {
		var b []byte
		b, rest, _ = bytes.Cut(rest, []byte("\n"))
		line := strings.TrimRight(string(b), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if current != "" {
				current += line
			}
			continue
		}
		flush()
		current = line
	}
	flush()
	return h
}

// Add appends one occurrence of a field.
func (h *Header) Add(name, value string) {
	k := KeyOf(name)
	f, ok := h.fields[k]
	if !ok {
		f = &field{name: strings.TrimSpace(name), value: value, first: value}
		h.fields[k] = f
		h.order = append(h.order, k)
	} else {
		f.value += ", " + value
	}
	f.count++
	h.lines = append(h.lines, strings.TrimSpace(name)+": "+DecodeWords(value))
}

// Has reports whether the field occurs at least once.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.fields[KeyOf(name)]
	return ok
}

// Get returns the comma-joined raw value of all occurrences.
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	if f, ok := h.fields[KeyOf(name)]; ok {
		return f.value
	}
	return ""
}

// First returns the raw value of the first occurrence and the number of occurrences.
func (h *Header) First(name string) (string, int) {
	if h == nil {
		return "", 0
	}
	if f, ok := h.fields[KeyOf(name)]; ok {
		return f.first, f.count
	}
	return "", 0
}

// Keys returns the keys in order of first appearance.
func (h *Header) Keys() []Key {
	if h == nil {
		return nil
	}
	return h.order
}

// Name returns the field name as first spelled in the header, or k itself
// when the field is absent.
func (h *Header) Name(k Key) string {
	if h == nil {
		return string(k)
	}
	if f, ok := h.fields[k]; ok {
		return f.name
	}
	return string(k)
}

// Len returns the number of distinct keys.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.order)
}

// Lines returns the unfolded, word-decoded header lines in their original order.
func (h *Header) Lines() []string {
	if h == nil {
		return nil
	}
	return h.lines
}

var addressParser = &mail.AddressParser{WordDecoder: wordDecoder}

// ParseAddressList strictly parses an address list and formats every entry as
// "Name <address>" or a bare address.
func ParseAddressList(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	list, err := addressParser.ParseList(value)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, FormatAddress(a.Name, a.Address))
	}
	return out, nil
}

// FormatAddress renders a display name and address without any encoding.
func FormatAddress(name, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	switch {
	case name == "":
		return address
	case address == "":
		return name
	}
	return name + " <" + address + ">"
}

// AddressKey returns the de-duplication key of a formatted address entry:
// the bare address when it parses, the whole entry otherwise.
func AddressKey(entry string) string {
	if a, err := mail.ParseAddress(entry); err == nil && a.Address != "" {
		return a.Address
	}
	return strings.TrimSpace(entry)
}

// Split separates a raw message into header block and body.
func Split(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}
	// a leading blank line means there is no header block
	if bytes.HasPrefix(raw, []byte("\r\n")) {
		return nil, raw[2:]
	}
	if raw[0] == '\n' {
		return nil, raw[1:]
	}

	// the earlier of the two separators ends the header block
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	}
	return raw, nil
}
