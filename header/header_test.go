package header

import (
	"reflect"
	"strings"
	"testing"
)

const sampleHeader = "From sender@example.com Mon Jan  1 00:00:00 2001\r\n" +
	"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?=\r\n" +
	"received: from a\r\n" +
	"Received: from b\r\n" +
	" by c\r\n" +
	"To: Alice <alice@example.com>,\r\n" +
	"\tBob <bob@example.com>\r\n" +
	"\r\n" +
	"Body: not a header\r\n"

func TestParse_OrderedCaseFoldedJoin(t *testing.T) {
	h := Parse([]byte(sampleHeader))

	wantKeys := []Key{"subject", "received", "to"}
	if !reflect.DeepEqual(h.Keys(), wantKeys) {
		t.Fatalf("Keys() = %v, want %v", h.Keys(), wantKeys)
	}

	if got := h.Get("RECEIVED"); got != "from a, from b by c" {
		t.Errorf("Get(Received) = %q", got)
	}
	first, count := h.First("Received")
	if first != "from a" || count != 2 {
		t.Errorf("First(Received) = %q, %d", first, count)
	}
	if h.Name("received") != "received" {
		t.Errorf("Name() should keep first spelling, got %q", h.Name("received"))
	}
	if h.Has("Body") {
		t.Error("parsing must stop at the blank line")
	}
	if got := h.Get("To"); got != "Alice <alice@example.com>,\tBob <bob@example.com>" {
		t.Errorf("Get(To) = %q", got)
	}

	lines := h.Lines()
	if len(lines) != 4 {
		t.Fatalf("Lines() = %v", lines)
	}
	if lines[0] != "Subject: Grüße" {
		t.Errorf("subject line not decoded: %q", lines[0])
	}
}

func TestNilHeader(t *testing.T) {
	var h *Header
	if h.Has("x") || h.Get("x") != "" || h.Len() != 0 || h.Lines() != nil {
		t.Error("nil header should behave as empty")
	}
	if v, n := h.First("x"); v != "" || n != 0 {
		t.Error("nil header First should be empty")
	}
	if h.Name("x") != "x" {
		t.Error("nil header Name should echo the key")
	}
}

func TestParse_LongLine(t *testing.T) {
	long := strings.Repeat("a", 2<<20)
	raw := "X-Long: " + long + "\r\n" +
		"X-Folded: start\r\n " + long + "\r\n" +
		"Subject: after\r\n" +
		"\r\n"

	h := Parse([]byte(raw))
	if got := h.Get("Subject"); got != "after" {
		t.Errorf("fields after a long line were lost, Subject = %q", got)
	}
	if got := len(h.Get("X-Long")); got != len(long) {
		t.Errorf("X-Long length = %d, want %d", got, len(long))
	}
	if got := h.Get("X-Folded"); !strings.HasPrefix(got, "start a") || len(got) != len("start ")+len(long) {
		t.Errorf("X-Folded length = %d", len(got))
	}
}

func TestParseAddressList(t *testing.T) {
	got, err := ParseAddressList(`"Doe, Jane" <jane@example.com>, bob@example.com, =?UTF-8?Q?J=C3=B6rg?= <joerg@example.com>`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Doe, Jane <jane@example.com>", "bob@example.com", "Jörg <joerg@example.com>"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAddressList() = %v, want %v", got, want)
	}

	if _, err := ParseAddressList("undisclosed-recipients:;, <broken"); err == nil {
		t.Error("expected strict parse failure")
	}
}

func TestAddressKey(t *testing.T) {
	if AddressKey("Alice <alice@example.com>") != "alice@example.com" {
		t.Error("expected bare address as key")
	}
	if AddressKey(" not an address ") != "not an address" {
		t.Error("expected trimmed entry as key")
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		wantHeader []byte
		wantBody   []byte
	}{
		{
			name:       "CRLF separator",
			raw:        []byte("Header: value\r\n\r\nBody content"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "LF separator",
			raw:        []byte("Header: value\n\nBody content"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "LF header with CRLF pair in body",
			raw:        []byte("Header: value\n\nline one\r\n\r\nline two"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("line one\r\n\r\nline two"),
		},
		{
			name:       "CRLF header with LF pair in body",
			raw:        []byte("Header: value\r\n\r\nline one\n\nline two"),
			wantHeader: []byte("Header: value"),
			wantBody:   []byte("line one\n\nline two"),
		},
		{
			name:       "No separator",
			raw:        []byte("All header content"),
			wantHeader: []byte("All header content"),
			wantBody:   nil,
		},
		{
			name:       "Leading blank line",
			raw:        []byte("\r\njust a body"),
			wantHeader: nil,
			wantBody:   []byte("just a body"),
		},
		{
			name:       "Empty message",
			raw:        []byte{},
			wantHeader: nil,
			wantBody:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHeader, gotBody := Split(tt.raw)
			if string(gotHeader) != string(tt.wantHeader) {
				t.Errorf("Split() header = %q, want %q", gotHeader, tt.wantHeader)
			}
			if string(gotBody) != string(tt.wantBody) {
				t.Errorf("Split() body = %q, want %q", gotBody, tt.wantBody)
			}
		})
	}
}
