package stats

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestCollector_Apply(t *testing.T) {
	c := NewCollector()
	events := make(chan Event, 16)
	boom := errors.New("boom")

	for _, evt := range []Event{
		{Type: EventTypeFolder, Folder: "Inbox"},
		{Type: EventTypeMessage, Folder: "Inbox", From: "a@example.com", Subject: "hi"},
		{Type: EventTypeMessage, Folder: "Inbox", From: "a@example.com", Subject: "again"},
		{Type: EventTypeMessage, Folder: "Sent"},
		{Type: EventTypeFiltered},
		{Type: EventTypeSkipped},
		{Type: EventTypeWritten},
		{Type: EventTypeWarning},
		{Type: EventTypeError, Err: boom},
	} {
		events <- evt
	}
	close(events)

	c.Run(context.Background(), events)

	got := c.Snapshot()
	want := Summary{Folders: 1, Messages: 3, Skipped: 1, Filtered: 1, Written: 1, Warnings: 1, Errors: 1, LastError: boom}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}

	b := c.Breakdown()
	if b.Folders["Inbox"] != 2 || b.Folders["Sent"] != 1 || b.Senders["a@example.com"] != 2 {
		t.Errorf("Breakdown() = %+v", b)
	}
	b.Senders["a@example.com"] = 99
	if c.Breakdown().Senders["a@example.com"] != 2 {
		t.Error("Breakdown() must return a copy")
	}
}

func TestTop(t *testing.T) {
	m := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}

	if got := Top(m, 3); !reflect.DeepEqual(got, []Pair{{"c", 5}, {"a", 2}, {"b", 2}}) {
		t.Errorf("Top(3) = %v", got)
	}
	if got := Top(m, -1); len(got) != 4 {
		t.Errorf("Top(-1) = %v", got)
	}

	var buf bytes.Buffer
	PrettyPrintTop(&buf, m, 1)
	if buf.String() != "1. c (5)\n" {
		t.Errorf("PrettyPrintTop() = %q", buf.String())
	}
}
