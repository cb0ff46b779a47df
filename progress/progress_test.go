package progress

import (
	"testing"

	"github.com/dhcgn/mbox-to-archive/stats"
)

func TestBar_DisabledOutsideInfoLevel(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		logLevel string
	}{
		{"debug level", 10, "debug"},
		{"nothing to do", 0, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.total, 1, tt.logLevel)
			if b.Enabled() {
				t.Fatal("bar must be disabled")
			}
			b.Update(stats.Event{Type: stats.EventTypeMessage})
			b.Stop()
		})
	}

	var nilBar *Bar
	if nilBar.Enabled() {
		t.Error("nil bar must be disabled")
	}
}
