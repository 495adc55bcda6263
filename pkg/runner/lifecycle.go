package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDrainTimeout = errors.New("runner: drain timeout")

// LifecycleRunner runs OnStart, blocks until its context ends or Stop is
// called, then drains with a deadline and runs OnStop.
type LifecycleRunner struct {
	state   atomic.Int32
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		log:     slog.Default(),
		done:    make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called. A failing OnStart hook
// drains immediately and its error is returned.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("runner: cannot run from state %s", r.State())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	PrintBanner()

	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(); err != nil {
			r.log.Error("runner_start_failed", "error", err)
			_ = r.Stop()
			return err
		}
	}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	r.log.Info("runner_running")

	<-ctx.Done()
	return r.Stop()
}

// Stop drains once; later calls return the first result. Stopping a runner
// that never ran still drains.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		start := time.Now()
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
		close(r.done)
		r.log.Info("runner_stopped", "drain_ms", time.Since(start).Milliseconds(), "error", r.stopErr)
	})
	<-r.done
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- r.drainer.Drain(ctx) }()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}
