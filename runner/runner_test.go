package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dhcgn/mbox-to-archive/stats"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_FanOut(t *testing.T) {
	r := New(context.Background(), quietLogger())

	a, b := stats.NewCollector(), stats.NewCollector()
	r.SubscribeStats("a", func(ctx context.Context, events <-chan stats.Event) error {
		a.Run(ctx, events)
		return nil
	})
	r.SubscribeStats("b", func(ctx context.Context, events <-chan stats.Event) error {
		b.Run(ctx, events)
		return nil
	})
	r.AddStage("emit", func(ctx context.Context) error {
		for i := 0; i < 300; i++ {
			r.EmitEvent(stats.Event{Type: stats.EventTypeMessage})
		}
		return nil
	})

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if a.Snapshot().Messages != 300 || b.Snapshot().Messages != 300 {
		t.Errorf("subscribers saw %d and %d messages", a.Snapshot().Messages, b.Snapshot().Messages)
	}
}

func TestRunner_StageFailure(t *testing.T) {
	r := New(context.Background(), quietLogger())
	boom := errors.New("boom")

	r.SubscribeStats("early", func(ctx context.Context, events <-chan stats.Event) error {
		return nil
	})
	r.AddStage("broken", func(ctx context.Context) error {
		for i := 0; i < 500; i++ {
			r.EmitEvent(stats.Event{Type: stats.EventTypeWarning})
		}
		return boom
	})
	r.AddStage("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := r.Start()
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "broken stage") {
		t.Errorf("Start() = %v", err)
	}
}
