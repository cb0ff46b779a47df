// Package runner runs pipeline stages concurrently and fans their stats
// events out to subscribers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mbox-to-archive/stats"
)

const eventBuffer = 128

type StageFunc func(context.Context) error

type Runner struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	subsMu      sync.Mutex
	subscribers []chan stats.Event

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeEventsOnce sync.Once
	since           time.Time
}

func New(parent context.Context, logger *slog.Logger) *Runner {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Runner{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

// EmitEvent delivers evt to every subscriber. It blocks while a subscriber's
// buffer is full and gives up once the pipeline is cancelled.
func (r *Runner) EmitEvent(evt stats.Event) {
	r.subsMu.Lock()
	subs := r.subscribers
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// SubscribeStats registers fn as a consumer of every event emitted after the
// call. Subscribe before adding the stages that emit.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, eventBuffer)
	r.subsMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subsMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		err := fn(r.ctx, ch)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
		// keep emitters from blocking on a subscriber that stopped early
		for range ch {
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start waits for every stage, then for every subscriber, and returns the
// first failure.
func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for _, ch := range r.subscribers {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
