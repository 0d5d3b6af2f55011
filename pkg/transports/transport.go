package transports

import (
	"context"
	"time"
)

// EventKind labels an inbound transport event.
type EventKind string

const (
	EventCallStart  EventKind = "call_start"
	EventCallerTurn EventKind = "caller_turn"
	EventCallEnd    EventKind = "call_end"
)

// TurnEvent is one inbound event. Events for the same call arrive in
// call order; the pipeline relies on that to keep per-call state
// consistent.
type TurnEvent struct {
	Kind        EventKind
	CallID      string
	CallerPhone string
	Text        string
	Confidence  float64
	EndReason   string
	Time        time.Time
	Meta        map[string]string
}

// Response is an outbound screening reply for one call.
type Response struct {
	CallID string
	Text   string
	Audio  []byte
}

// Transport defines a vendor-agnostic call I/O boundary.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan TurnEvent
	Send(Response) error
}

// Hanguper allows transports to end an active call.
type Hanguper interface {
	Hangup(ctx context.Context, callID string) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., webhook URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
