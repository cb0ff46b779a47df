package archive

import (
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultNameLength is the label budget used when none is configured.
const DefaultNameLength = 12

// shortTagLimit is the name length below which single-letter type tags are used.
const shortTagLimit = 20

// filenameSlack widens the budget for object filenames compared to unit labels.
const filenameSlack = 20

// Counter hands out run-scoped unique ids. The zero value is ready to use.
type Counter struct {
	n atomic.Uint64
}

// Next returns the next id, starting at 1.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Kind is the type of entity an archive unit represents.
type Kind int

const (
	KindFolder Kind = iota
	KindMessage
	KindAttachment
)

func (k Kind) tag(short bool) string {
	switch k {
	case KindMessage:
		if short {
			return "M"
		}
		return "Message"
	case KindAttachment:
		if short {
			return "A"
		}
		return "Attachment"
	default:
		if short {
			return "F"
		}
		return "Folder"
	}
}

// Namer builds collision free unit names of the form <Tag>#<ID>-<Label>.
type Namer struct {
	Counter    *Counter
	NameLength int
}

func NewNamer(counter *Counter, nameLength int) *Namer {
	if counter == nil {
		counter = &Counter{}
	}
	if nameLength <= 0 {
		nameLength = DefaultNameLength
	}
	return &Namer{Counter: counter, NameLength: nameLength}
}

// Name returns a fresh unique name for an entity of the given kind.
func (n *Namer) Name(kind Kind, label string) string {
	var b strings.Builder
	b.WriteString(kind.tag(n.NameLength < shortTagLimit))
	b.WriteByte('#')
	b.WriteString(strconv.FormatUint(n.Counter.Next(), 10))
	b.WriteByte('-')
	b.WriteString(SanitizeLabel(label, n.NameLength))
	return b.String()
}

// NewUnit creates a unit with a generated name below rootPath.
func (n *Namer) NewUnit(rootPath string, kind Kind, label string) *Unit {
	u := NewUnit(rootPath, n.Name(kind, label))
	u.nameLength = n.NameLength
	return u
}

// SanitizeLabel replaces every rune that is not a letter or digit with '-' and
// truncates the result to max runes. max <= 0 disables truncation.
func SanitizeLabel(label string, max int) string {
	label = norm.NFC.String(label)
	out := make([]rune, 0, len(label))
	for _, r := range label {
		if max > 0 && len(out) >= max {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// SanitizeFilename keeps the extension after the last dot and sanitizes the
// base name like a label, truncated to nameLength+20 runes. It returns "" when
// nothing usable is left.
func SanitizeFilename(filename string, nameLength int) string {
	if nameLength <= 0 {
		nameLength = DefaultNameLength
	}
	base, ext := filename, ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		base, ext = filename[:idx], filename[idx+1:]
	}
	// path separators in the extension would escape the unit directory
	ext = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '-'
		}
		return r
	}, ext)

	base = SanitizeLabel(base, nameLength+filenameSlack)
	if ext == "" {
		return base
	}
	return base + "." + ext
}
