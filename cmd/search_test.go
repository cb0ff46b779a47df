package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/pgindex"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		since   string
		until   string
		limit   int
		wantErr bool
	}{
		{name: "Defaults", limit: 50},
		{name: "Kind upper case", kind: "MESSAGE"},
		{name: "Date range", since: "2024-01-01", until: "2024-02-01"},
		{name: "Unknown kind", kind: "thread", wantErr: true},
		{name: "Bad date", since: "01/02/2024", wantErr: true},
		{name: "Negative limit", limit: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := buildQuery("invoice", tt.kind, "", tt.since, tt.until, tt.limit)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.kind != "" && q.Kind != manifest.KindMessage {
				t.Errorf("Kind = %q", q.Kind)
			}
			if tt.since != "" && !q.Since.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("Since = %v", q.Since)
			}
		})
	}
}

func TestPrintHits(t *testing.T) {
	var out bytes.Buffer
	printHits(&out, nil)
	if !strings.Contains(out.String(), "No matching units") {
		t.Errorf("out = %q", out.String())
	}

	out.Reset()
	printHits(&out, []pgindex.Hit{{
		Path:    "/out/archive/__M#2-Invoice__",
		Kind:    manifest.KindMessage,
		From:    "alice@example.com",
		Subject: "Invoice",
		Date:    time.Date(2001, 1, 1, 10, 0, 0, 0, time.UTC),
	}})
	for _, want := range []string{"2001-01-01", "alice@example.com", "Invoice", "__M#2-Invoice__"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("out missing %q: %q", want, out.String())
		}
	}
}
