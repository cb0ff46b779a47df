package archive

import (
	"io"
	"net/mail"
	"strings"
	"time"
)

// Attr is an optional attribute carried by a metadata entry.
type Attr struct {
	Name  string
	Value string
}

// Entry is one metadata element. Exactly one of Value or List is meaningful.
type Entry struct {
	Key   string
	Attr  *Attr
	Value string
	List  *Metadata
}

// Metadata is an ordered list of entries. The zero value is an empty list.
type Metadata struct {
	entries []Entry
}

// Entries returns the entries in insertion order.
func (m *Metadata) Entries() []Entry {
	return m.entries
}

// Len returns the number of top level entries.
func (m *Metadata) Len() int {
	return len(m.entries)
}

// Add appends a leaf entry. Empty values are ignored.
func (m *Metadata) Add(key, value string) {
	if value == "" {
		return
	}
	m.entries = append(m.entries, Entry{Key: key, Value: value})
}

// AddAttr appends a leaf entry carrying one attribute. Empty values are ignored.
func (m *Metadata) AddAttr(key, attrName, attrValue, value string) {
	if value == "" {
		return
	}
	m.entries = append(m.entries, Entry{Key: key, Attr: &Attr{Name: attrName, Value: attrValue}, Value: value})
}

// AddList appends a composite entry. Nil or empty lists are ignored.
func (m *Metadata) AddList(key string, list *Metadata) {
	if list == nil || list.Len() == 0 {
		return
	}
	m.entries = append(m.entries, Entry{Key: key, List: list})
}

// AddDate appends an ISO-8601 UTC timestamp. Zero times are ignored.
func (m *Metadata) AddDate(key string, t time.Time) {
	if t.IsZero() {
		return
	}
	m.Add(key, t.UTC().Format("2006-01-02T15:04:05Z"))
}

// AddPerson appends a person structure built from an address string such as
// "Doe, John <john@example.com>".
func (m *Metadata) AddPerson(key, address string) {
	m.AddList(key, Person(address))
}

// AddPersons appends one person entry per address.
func (m *Metadata) AddPersons(key string, addresses []string) {
	for _, a := range addresses {
		m.AddPerson(key, a)
	}
}

// Person splits an address into DisplayName, FirstName/BirthName (for
// "Last, First" names) and Identifier entries.
func Person(address string) *Metadata {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	name, identifier := "", address
	if parsed, err := mail.ParseAddress(address); err == nil {
		name, identifier = parsed.Name, parsed.Address
	}

	p := &Metadata{}
	if name != "" {
		p.Add("DisplayName", name)
		if last, first, ok := strings.Cut(name, ","); ok && strings.TrimSpace(first) != "" {
			p.Add("FirstName", strings.TrimSpace(first))
			p.Add("BirthName", strings.TrimSpace(last))
		}
	}
	p.Add("Identifier", identifier)
	return p
}

const indentUnit = "  "

// Render writes the metadata as a nested markup tree rooted at root.
func (m *Metadata) Render(w io.Writer, root string) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<" + root + ">\n")
	m.render(&b, 1)
	b.WriteString("</" + root + ">\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func (m *Metadata) render(b *strings.Builder, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	for _, e := range m.entries {
		b.WriteString(indent)
		b.WriteString("<" + e.Key)
		if e.Attr != nil {
			b.WriteString(" " + e.Attr.Name + `="` + Escape(e.Attr.Value) + `"`)
		}
		if e.List != nil {
			b.WriteString(">\n")
			e.List.render(b, depth+1)
			b.WriteString(indent)
		} else {
			b.WriteString(">")
			b.WriteString(Escape(e.Value))
		}
		b.WriteString("</" + e.Key + ">\n")
	}
}

var (
	unescaper = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&#34;", `"`,
		"&#39;", "'",
	)
	escaper = strings.NewReplacer(
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&apos;",
		"<", "&lt;",
		">", "&gt;",
	)
)

// Escape neutralizes markup-significant characters. Existing entity
// sequences are normalized first so text is never escaped twice, and
// characters that are not allowed in the markup are dropped.
func Escape(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if !validMarkupRune(r) {
			return -1
		}
		return r
	}, s)
	return escaper.Replace(unescaper.Replace(s))
}

func validMarkupRune(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r < 0x20:
		return false
	case r >= 0xD800 && r <= 0xDFFF:
		return false
	case r == 0xFFFE || r == 0xFFFF:
		return false
	}
	return true
}
