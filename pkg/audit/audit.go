package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanifadr/callward/pkg/logging"
)

// EventType labels an audit event.
type EventType string

const (
	EventCallStart      EventType = "call_start"
	EventCallEnd        EventType = "call_end"
	EventTermination    EventType = "termination"
	EventClassification EventType = "classification"
	EventFeedback       EventType = "feedback"
)

// Event is one compliance record.
type Event struct {
	Type        EventType
	CallID      string
	UserID      string
	CallerPhone string
	Time        time.Time
	Detail      map[string]string
}

// Sink receives audit events. Implementations must never block the
// caller; the turn path records events fire-and-forget.
type Sink interface {
	Record(ev Event)
}

type NoopSink struct{}

func (NoopSink) Record(Event) {}

// Logger is an async Sink writing structured audit records. Events are
// dropped, not queued unboundedly, when the buffer fills.
type Logger struct {
	ch      chan Event
	log     *slog.Logger
	dropped int64
	closed  atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func NewLogger(base *slog.Logger, buffer int) *Logger {
	if base == nil {
		base = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	l := &Logger{
		ch:   make(chan Event, buffer),
		log:  logging.NewComponentLogger(base, "audit"),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Logger) Record(ev Event) {
	if l == nil || l.closed.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case l.ch <- ev:
	default:
		atomic.AddInt64(&l.dropped, 1)
	}
}

func (l *Logger) Dropped() int64 {
	return atomic.LoadInt64(&l.dropped)
}

// Close flushes buffered events and stops the worker.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done
	})
}

func (l *Logger) loop() {
	for ev := range l.ch {
		attrs := []any{
			"type", string(ev.Type),
			"call_id", ev.CallID,
			"user_id", ev.UserID,
			"time", ev.Time,
		}
		if ev.CallerPhone != "" {
			attrs = append(attrs, "caller_phone", ev.CallerPhone)
		}
		for k, v := range ev.Detail {
			attrs = append(attrs, k, v)
		}
		l.log.Info("audit_event", attrs...)
	}
	close(l.done)
}
