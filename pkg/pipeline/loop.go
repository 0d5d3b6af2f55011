package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/errorsx"
	"github.com/hanifadr/callward/pkg/logging"
	"github.com/hanifadr/callward/pkg/transports"
)

// ResolveUser maps an inbound call to the protected user's ID.
type ResolveUser func(ev transports.TurnEvent) string

// Loop consumes transport events and drives the controller. Events for
// one call are routed to a dedicated worker so turns are processed
// strictly in arrival order; calls stay parallel to each other.
type Loop struct {
	ctrl    *Controller
	tr      transports.Transport
	resolve ResolveUser
	log     *slog.Logger

	mu      sync.Mutex
	workers map[string]*callWorker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

type callWorker struct {
	ch    chan transports.TurnEvent
	ended bool
	mu    sync.Mutex
}

func NewLoop(ctrl *Controller, tr transports.Transport, resolve ResolveUser, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if resolve == nil {
		resolve = func(transports.TurnEvent) string { return "" }
	}
	return &Loop{
		ctrl:    ctrl,
		tr:      tr,
		resolve: resolve,
		log:     logging.NewComponentLogger(log, "pipeline_loop"),
		workers: make(map[string]*callWorker),
	}
}

// Start launches the dispatcher. It returns once the transport's
// receive channel closes and all per-call workers have drained.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.dispatch(ctx)
}

// Stop cancels processing and waits for workers to drain.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) dispatch(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			l.closeWorkers()
			return
		case ev, ok := <-l.tr.Recv():
			if !ok {
				l.closeWorkers()
				return
			}
			l.route(ctx, ev)
		}
	}
}

func (l *Loop) route(ctx context.Context, ev transports.TurnEvent) {
	if ev.CallID == "" {
		return
	}
	w := l.worker(ctx, ev.CallID)
	select {
	case w.ch <- ev:
	default:
		l.log.Warn("call_queue_full", "call_id", ev.CallID, "kind", string(ev.Kind))
	}
}

func (l *Loop) worker(ctx context.Context, callID string) *callWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.workers[callID]; ok {
		return w
	}
	w := &callWorker{ch: make(chan transports.TurnEvent, 32)}
	l.workers[callID] = w
	l.wg.Add(1)
	go l.run(ctx, callID, w)
	return w
}

func (l *Loop) run(ctx context.Context, callID string, w *callWorker) {
	defer l.wg.Done()
	log := logging.NewCallLogger(l.log, callID)
	for ev := range w.ch {
		switch ev.Kind {
		case transports.EventCallStart:
			l.handleStart(ctx, ev, log)
		case transports.EventCallerTurn:
			l.handleTurn(ctx, ev, w, log)
		case transports.EventCallEnd:
			l.handleEnd(ctx, ev, w, log)
			l.removeWorker(callID)
			return
		}
	}
}

func (l *Loop) handleStart(ctx context.Context, ev transports.TurnEvent, log *slog.Logger) {
	_, err := l.ctrl.StartCall(ctx, convo.Seed{
		CallID:      ev.CallID,
		UserID:      l.resolve(ev),
		CallerPhone: ev.CallerPhone,
	})
	if err != nil && !errorsx.HasReason(err, errorsx.ReasonContextExists) {
		log.Error("call_start_failed", "reason_code", string(errorsx.Reason(err)))
	}
}

func (l *Loop) handleTurn(ctx context.Context, ev transports.TurnEvent, w *callWorker, log *slog.Logger) {
	w.mu.Lock()
	done := w.ended
	w.mu.Unlock()
	if done {
		return
	}

	// The transport may emit a turn before the explicit start event when
	// recognition races the stream handshake.
	if _, err := l.ctrl.Contexts().Get(ev.CallID); err != nil {
		l.handleStart(ctx, ev, log)
	}

	result, err := l.ctrl.ProcessTurn(ctx, ev.CallID, ev.Text, nil)
	if err != nil {
		log.Error("turn_failed", "reason_code", string(errorsx.Reason(err)))
		return
	}

	// The caller may have hung up while the turn was in flight; the
	// result is discarded, never delivered to a dead call.
	w.mu.Lock()
	ended := w.ended
	w.mu.Unlock()
	if ended {
		return
	}

	if err := l.tr.Send(transports.Response{CallID: ev.CallID, Text: result.Response}); err != nil {
		log.Warn("response_send_failed", "reason_code", string(errorsx.Reason(err)))
	}

	if result.Termination.ShouldTerminate {
		if h, ok := l.tr.(transports.Hanguper); ok {
			if err := h.Hangup(ctx, ev.CallID); err != nil {
				log.Warn("hangup_failed", "reason_code", string(errorsx.Reason(err)))
			}
		}
		if _, err := l.ctrl.EndCall(ctx, ev.CallID, string(result.Termination.Reason)); err != nil {
			log.Warn("call_end_failed", "reason_code", string(errorsx.Reason(err)))
		}
		w.mu.Lock()
		w.ended = true
		w.mu.Unlock()
	}
}

func (l *Loop) handleEnd(ctx context.Context, ev transports.TurnEvent, w *callWorker, log *slog.Logger) {
	w.mu.Lock()
	already := w.ended
	w.ended = true
	w.mu.Unlock()
	if already {
		return
	}
	reason := ev.EndReason
	if reason == "" {
		reason = "completed"
	}
	if _, err := l.ctrl.EndCall(ctx, ev.CallID, reason); err != nil &&
		!errorsx.HasReason(err, errorsx.ReasonContextNotFound) {
		log.Warn("call_end_failed", "reason_code", string(errorsx.Reason(err)))
	}
}

func (l *Loop) removeWorker(callID string) {
	l.mu.Lock()
	delete(l.workers, callID)
	l.mu.Unlock()
}

func (l *Loop) closeWorkers() {
	l.mu.Lock()
	workers := l.workers
	l.workers = make(map[string]*callWorker)
	l.mu.Unlock()
	for _, w := range workers {
		close(w.ch)
	}
}
