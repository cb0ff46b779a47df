package reconcile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	threadHeaderLen = 22
	threadHopLen    = 5

	// 100ns intervals between 1601-01-01 and 1970-01-01.
	fileTimeEpochOffset = 116444736000000000
)

var ErrMalformedThreadIndex = errors.New("reconcile: malformed conversation index")

// Hop is one reply step of a conversation index.
type Hop struct {
	Code     uint8
	Delta    uint32
	Random   uint8
	Sequence uint8
}

// Duration is the time between the previous step and this one. The delta is
// stored with a coarse or fine resolution selected by Code.
func (h Hop) Duration() time.Duration {
	units := uint64(h.Delta) << 18
	if h.Code != 0 {
		units = uint64(h.Delta) << 23
	}
	return time.Duration(units) * 100
}

// ThreadIndex is a decoded conversation index: a 22-byte header carrying the
// start time and thread GUID, followed by one 5-byte hop per reply.
type ThreadIndex struct {
	Start time.Time
	GUID  uuid.UUID
	Hops  []Hop
}

// ParseThreadIndex decodes a conversation index.
func ParseThreadIndex(b []byte) (*ThreadIndex, error) {
	if len(b) < threadHeaderLen || (len(b)-threadHeaderLen)%threadHopLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedThreadIndex, len(b))
	}

	var high [8]byte
	copy(high[2:], b[:6])
	ft := binary.BigEndian.Uint64(high[:]) << 16

	guid, err := uuid.FromBytes(b[6:threadHeaderLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedThreadIndex, err)
	}

	ti := &ThreadIndex{Start: fileTimeToTime(ft), GUID: guid}
	for i := threadHeaderLen; i < len(b); i += threadHopLen {
		v := binary.BigEndian.Uint32(b[i : i+4])
		ti.Hops = append(ti.Hops, Hop{
			Code:     uint8(v >> 31),
			Delta:    v & 0x7fffffff,
			Random:   b[i+4] >> 4,
			Sequence: b[i+4] & 0x0f,
		})
	}
	return ti, nil
}

// MessageID renders the synthesized message id for the thread position.
func (ti *ThreadIndex) MessageID() string {
	var sb strings.Builder
	sb.WriteString("<ThreadIndex-")
	sb.WriteString(ti.GUID.String())
	sb.WriteString("-")
	sb.WriteString(ti.Start.UTC().Format("2006-01-02T15:04:05Z"))
	for _, h := range ti.Hops {
		fmt.Fprintf(&sb, ".%x%08x%x", h.Code, h.Delta, h.Random)
	}
	sb.WriteString(">")
	return sb.String()
}

// ParentID derives the id of the message this one replies to by dropping the
// last hop. It returns "" for thread roots.
func (ti *ThreadIndex) ParentID() string {
	if len(ti.Hops) == 0 {
		return ""
	}
	return parentOf(ti.MessageID())
}

func parentOf(id string) string {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return ""
	}
	return id[:idx] + ">"
}

const placeholderPrefix = "<NoId-"

// placeholderID is used when no conversation index can be decoded.
func placeholderID(subject string, sent time.Time) string {
	date := ""
	if !sent.IsZero() {
		date = sent.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(subject + date))
	return placeholderPrefix + hex.EncodeToString(sum[:]) + ">"
}

// IsPlaceholderID reports whether id was made up because the message carried
// no usable identifier.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

func fileTimeToTime(ft uint64) time.Time {
	d := int64(ft) - fileTimeEpochOffset
	return time.Unix(d/10_000_000, (d%10_000_000)*100).UTC()
}
