package filter

import (
	"strings"
	"testing"
)

const (
	invoiceHeader = "From: billing@shop.example\r\nTo: alice@example.com\r\nSubject: Invoice 2024-03\r\n"
	newsHeader    = "From: news@list.example\r\nTo: alice@example.com\r\nSubject: Weekly digest\r\nList-Id: <weekly.list.example>\r\n"
)

func TestFilter_Allows(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		header string
		body   string
		want   bool
	}{
		{"No patterns", Options{}, newsHeader, "anything", true},
		{"Include header hit", Options{IncludeHeader: []string{`Subject: Invoice`}}, invoiceHeader, "amount due", true},
		{"Include header miss", Options{IncludeHeader: []string{`Subject: Invoice`}}, newsHeader, "amount due", false},
		{"Include body hit", Options{IncludeBody: []string{`amount\s+due`}}, newsHeader, "the amount  due is 10", true},
		{"Include either class", Options{IncludeHeader: []string{`nomatch`}, IncludeBody: []string{`digest`}}, newsHeader, "your digest", true},
		{"Exclude header hit", Options{ExcludeHeader: []string{`(?m)^List-Id:`}}, newsHeader, "", false},
		{"Exclude header miss", Options{ExcludeHeader: []string{`(?m)^List-Id:`}}, invoiceHeader, "", true},
		{"Exclude body hit", Options{ExcludeBody: []string{`(?i)unsubscribe`}}, invoiceHeader, "Click to UNSUBSCRIBE", false},
		{"Blank patterns ignored", Options{ExcludeBody: []string{"  "}}, invoiceHeader, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := f.Allows([]byte(tt.header), []byte(tt.body)); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"Include and exclude", Options{IncludeHeader: []string{"a"}, ExcludeBody: []string{"b"}}, "mutually exclusive"},
		{"Invalid regex", Options{ExcludeHeader: []string{"("}}, "exclude-header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFilter_AllowsMessage(t *testing.T) {
	f, err := New(Options{ExcludeBody: []string{"unsubscribe"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"body match", "Subject: news\r\n\r\nclick to unsubscribe", false},
		{"header only mention", "Subject: unsubscribe\r\n\r\nplain body", true},
		{"no header block", "\nunsubscribe", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.AllowsMessage([]byte(tt.raw)); got != tt.want {
				t.Errorf("AllowsMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_GetStats(t *testing.T) {
	f, err := New(Options{IncludeHeader: []string{"From: .*@a\\.com", "Subject: report"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !f.Active() {
		t.Fatal("filter with patterns must be active")
	}

	f.Allows([]byte("From: x@a.com\nSubject: report"), nil)
	f.Allows([]byte("From: y@a.com\nSubject: other"), nil)
	f.Allows([]byte("From: z@b.com\nSubject: other"), nil)

	s := f.GetStats()
	if len(s.IncludeHeaderPatterns) != 2 {
		t.Fatalf("patterns = %v", s.IncludeHeaderPatterns)
	}
	if got := s.IncludeHeaderHits["From: .*@a\\.com"]; got != 2 {
		t.Errorf("from hits = %d, want 2", got)
	}
	if got := s.IncludeHeaderHits["Subject: report"]; got != 1 {
		t.Errorf("subject hits = %d, want 1", got)
	}
	if len(s.ExcludeBodyPatterns) != 0 {
		t.Errorf("unexpected exclude patterns %v", s.ExcludeBodyPatterns)
	}
}
