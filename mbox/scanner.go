package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dhcgn/mbox-to-archive/diag"
)

// EOS is returned by NextDelimiterStart when no further delimiter exists.
const EOS int64 = -1

const (
	DefaultBlockSize = 64 * 1024

	maxDelimiterLen = 34
	shapeBytes      = 64
	// delimiterContent is the printable length a delimiter carries after "From ".
	delimiterContent = 5
)

var (
	delimiterPrefix     = []byte("From ")
	delimiterDashPrefix = []byte("From - ")
	errScannerNilReader = errors.New("mbox: scanner needs a reader")
	errScannerBlockSize = errors.New("mbox: block size must be positive")
)

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// BlockSize is the size of the read cache. Zero selects DefaultBlockSize.
	BlockSize int
	// Name identifies the file in diagnostics.
	Name string
	Sink diag.Sink
}

// Scanner finds message delimiter lines in a flat mailbox file. Lines that
// start with "From " but do not have the shape of a delimiter are treated as
// message content.
type Scanner struct {
	r    io.Reader
	opts ScannerOptions

	buf        []byte
	start, end int
	eof        bool

	pos     int64
	line    int
	lastEnd int64
	head    []byte
}

// NewScanner rewinds r and prepares a scanner over it.
func NewScanner(r io.ReadSeeker, opts ScannerOptions) (*Scanner, error) {
	if r == nil {
		return nil, errScannerNilReader
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.BlockSize < 0 {
		return nil, errScannerBlockSize
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", opts.Name, err)
	}
	return &Scanner{
		r:    r,
		opts: opts,
		buf:  make([]byte, opts.BlockSize),
		head: make([]byte, 0, shapeBytes),
	}, nil
}

// NextDelimiterStart returns the offset of the next delimiter line or EOS.
func (s *Scanner) NextDelimiterStart() (int64, error) {
	for {
		l, ok, err := s.readLine()
		if err != nil {
			return EOS, err
		}
		if !ok {
			return EOS, nil
		}
		if !bytes.HasPrefix(l.head, delimiterPrefix) {
			continue
		}
		if IsDelimiter(l.head, l.length) {
			s.lastEnd = l.end
			return l.start, nil
		}
		diag.Finef(s.opts.Sink, "mbox", s.opts.Name, "rejected delimiter candidate at line %d", s.line)
	}
}

// LastDelimiterEnd is the offset just past the terminator of the delimiter
// most recently returned by NextDelimiterStart.
func (s *Scanner) LastDelimiterEnd() int64 {
	return s.lastEnd
}

// Offset is the number of bytes consumed so far.
func (s *Scanner) Offset() int64 {
	return s.pos
}

// IsDelimiter applies the delimiter shape test to the first bytes of a line
// and its full length without terminator.
func IsDelimiter(head []byte, length int64) bool {
	if !bytes.HasPrefix(head, delimiterPrefix) {
		return false
	}
	if length > maxDelimiterLen {
		return false
	}
	if bytes.HasPrefix(head, delimiterDashPrefix) {
		return true
	}
	printable := 0
	for _, b := range bytes.TrimSpace(head[len(delimiterPrefix):]) {
		if b >= ' ' && b != 0x7f {
			printable++
		}
	}
	return printable == delimiterContent
}

type scannedLine struct {
	start  int64
	end    int64
	length int64
	head   []byte
}

// readLine consumes one line through the block cache. Only the first
// shapeBytes bytes are retained.
func (s *Scanner) readLine() (scannedLine, bool, error) {
	l := scannedLine{start: s.pos}
	s.head = s.head[:0]
	consumed := false

	for {
		if s.start == s.end {
			if s.eof {
				if !consumed {
					return l, false, nil
				}
				return s.finish(l, false), true, nil
			}
			n, err := s.r.Read(s.buf)
			s.start, s.end = 0, n
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else if err != nil {
				return l, false, fmt.Errorf("read %s: %w", s.opts.Name, err)
			}
			continue
		}

		consumed = true
		chunk := s.buf[s.start:s.end]
		i := bytes.IndexByte(chunk, '\n')
		part := chunk
		if i >= 0 {
			part = chunk[:i]
		}
		if room := shapeBytes - len(s.head); room > 0 {
			s.head = append(s.head, part[:min(room, len(part))]...)
		}
		l.length += int64(len(part))
		s.pos += int64(len(part))

		if i >= 0 {
			s.start += i + 1
			s.pos++
			return s.finish(l, true), true, nil
		}
		s.start = s.end
	}
}

func (s *Scanner) finish(l scannedLine, terminated bool) scannedLine {
	s.line++
	l.end = s.pos
	l.head = s.head
	if terminated && l.length > 0 && l.length <= shapeBytes && s.head[len(s.head)-1] == '\r' {
		l.length--
	}
	return l
}

// Range is a half-open byte range [Start, End) holding one message.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 {
	return r.End - r.Start
}

// Ranges partitions the file into message ranges. Content before the first
// delimiter is ignored; the last range extends to the end of the file. A file
// without delimiters yields no ranges.
func Ranges(r io.ReadSeeker, opts ScannerOptions) ([]Range, error) {
	s, err := NewScanner(r, opts)
	if err != nil {
		return nil, err
	}

	start, err := s.NextDelimiterStart()
	if err != nil || start == EOS {
		return nil, err
	}

	var ranges []Range
	prevEnd := s.LastDelimiterEnd()
	for {
		next, err := s.NextDelimiterStart()
		if err != nil {
			return nil, err
		}
		if next == EOS {
			ranges = append(ranges, Range{Start: prevEnd, End: s.Offset()})
			return ranges, nil
		}
		ranges = append(ranges, Range{Start: prevEnd, End: next})
		prevEnd = s.LastDelimiterEnd()
	}
}
