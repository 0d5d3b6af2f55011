package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrAlreadyStarted = errors.New("runner already started")

// LifecycleRunner drives an engine through new -> running -> draining ->
// stopped. Run blocks until the context is canceled or Stop is called,
// then drains active calls within the configured timeout.
type LifecycleRunner struct {
	state        int32
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdownErr  error
	hooks        Hooks
	drainer      Drainer
	drainTimeout time.Duration
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, drainTimeout time.Duration) *LifecycleRunner {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleRunner{
		state:        int32(StateNew),
		ctx:          ctx,
		cancel:       cancel,
		hooks:        hooks,
		drainer:      drainer,
		drainTimeout: drainTimeout,
	}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&r.state, int32(StateNew), int32(StateStarting)) {
		return ErrAlreadyStarted
	}
	PrintBanner()
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	atomic.StoreInt32(&r.state, int32(StateRunning))
	<-r.ctx.Done()
	return r.shutdown()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) shutdown() error {
	r.shutdownOnce.Do(func() {
		atomic.StoreInt32(&r.state, int32(StateDraining))
		r.shutdownErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		atomic.StoreInt32(&r.state, int32(StateStopped))
	})
	return r.shutdownErr
}

// drain gives in-flight calls drainTimeout to wind down; a slow drainer
// is abandoned rather than holding up shutdown.
func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain() }()
	select {
	case err := <-done:
		return err
	case <-time.After(r.drainTimeout):
		return errors.New("drain timeout")
	}
}
