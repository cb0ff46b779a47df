package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorder_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	date := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	entries := []Entry{
		{Kind: KindFolder, Unit: "F#1-Inbox", Path: "root/F#1-Inbox"},
		{Kind: KindMessage, Unit: "M#2-hello", Path: "root/F#1-Inbox/__M#2-hello__", MessageID: "<a@b>", Date: date,
			Objects: []Object{{Name: "__BinaryMaster_1_hello.eml", Role: "BinaryMaster", SHA256: "abc", Size: 3}}},
	}
	for _, e := range entries {
		if err := rec.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Read(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Read() returned %d entries", len(got))
	}
	if got[1].MessageID != "<a@b>" || !got[1].Date.Equal(date) || len(got[1].Objects) != 1 {
		t.Errorf("unexpected entry %+v", got[1])
	}
	if !got[0].Date.IsZero() {
		t.Errorf("folder entry date = %v", got[0].Date)
	}

	if s := rec.Snapshot(); s.Recorded != 2 || s.Messages != 1 {
		t.Errorf("Snapshot() = %+v", s)
	}
	if rec.Seen("<a@b>") != 1 {
		t.Error("message id must be tracked")
	}
}

func TestNewFileRecorder_EmptyDir(t *testing.T) {
	if _, err := NewFileRecorder("  "); err == nil {
		t.Error("expected error for empty directory")
	}
}

type failing struct{}

func (failing) Record(context.Context, Entry) error { return errors.New("down") }

func TestMulti(t *testing.T) {
	a, b := NewMemoryRecorder(), NewMemoryRecorder()
	rec := Multi(a, nil, failing{}, b)

	err := rec.Record(context.Background(), Entry{Kind: KindMessage})
	if err == nil {
		t.Error("expected joined error")
	}
	if len(a.Entries()) != 1 || len(b.Entries()) != 1 {
		t.Error("every recorder must receive the entry")
	}
}
