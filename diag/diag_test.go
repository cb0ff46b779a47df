package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger_WarnAndFine(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := NewLogger(slog.New(handler))

	l.Warn("reconcile", "msg-1", "subject missing")
	l.Fine("mbox", "inbox:12", "rejected delimiter")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "module=reconcile") {
		t.Errorf("warn line missing attributes: %s", out)
	}
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "subject=inbox:12") {
		t.Errorf("fine line missing attributes: %s", out)
	}
	if l.Warnings() != 1 {
		t.Errorf("Warnings() = %d, want 1", l.Warnings())
	}
}

func TestCounter_ForwardsAndCounts(t *testing.T) {
	rec := NewRecorder()
	c := NewCounter(rec)

	Warnf(c, "walker", "Inbox", "message %d failed", 3)
	Finef(c, "walker", "Inbox", "opened")
	Warnf(nil, "walker", "Inbox", "dropped")

	if c.Warnings() != 1 {
		t.Errorf("Warnings() = %d, want 1", c.Warnings())
	}
	warns := rec.Entries(LevelWarn)
	if len(warns) != 1 || warns[0].Text != "message 3 failed" {
		t.Errorf("unexpected warnings: %+v", warns)
	}
	if len(rec.Entries("")) != 2 {
		t.Errorf("expected 2 entries in total, got %d", len(rec.Entries("")))
	}
}
