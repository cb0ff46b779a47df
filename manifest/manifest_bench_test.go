package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

// BenchmarkFileRecorder_Record benchmarks journal write performance
func BenchmarkFileRecorder_Record(b *testing.B) {
	rec, err := NewFileRecorder(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer rec.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := Entry{Kind: KindMessage, Unit: fmt.Sprintf("M#%d-x", i), MessageID: fmt.Sprintf("msg-%d", i)}
		if err := rec.Record(ctx, e); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	if err := rec.Close(); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkRead benchmarks loading a journal of 10000 entries
func BenchmarkRead(b *testing.B) {
	dir := b.TempDir()
	rec, err := NewFileRecorder(dir)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		if err := rec.Record(ctx, Entry{Kind: KindMessage, MessageID: fmt.Sprintf("msg-%d", i)}); err != nil {
			b.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		b.Fatal(err)
	}

	path := filepath.Join(dir, FileName)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Read(path); err != nil {
			b.Fatal(err)
		}
	}
}
