package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hanifadr/callward/pkg/transports"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network dependency.
type Transport struct {
	recvCh  chan transports.TurnEvent
	sentCh  chan transports.Response
	closed  atomic.Bool
	mu      sync.Mutex
	hangups []string
}

func New() *Transport {
	return &Transport{
		recvCh: make(chan transports.TurnEvent, 256),
		sentCh: make(chan transports.Response, 256),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	if t.closed.CompareAndSwap(false, true) {
		t.mu.Lock()
		close(t.recvCh)
		close(t.sentCh)
		t.mu.Unlock()
	}
	return nil
}

func (t *Transport) Recv() <-chan transports.TurnEvent { return t.recvCh }

func (t *Transport) Send(r transports.Response) error {
	if t.closed.Load() {
		return nil
	}
	select {
	case t.sentCh <- r:
	default:
	}
	return nil
}

func (t *Transport) Hangup(ctx context.Context, callID string) error {
	t.mu.Lock()
	t.hangups = append(t.hangups, callID)
	t.mu.Unlock()
	return nil
}

// Push injects an inbound event into the transport.
func (t *Transport) Push(ev transports.TurnEvent) {
	if t.closed.Load() {
		return
	}
	select {
	case t.recvCh <- ev:
	default:
	}
}

// Sent exposes outbound responses for inspection.
func (t *Transport) Sent() <-chan transports.Response { return t.sentCh }

// Hangups lists calls ended via Hangup.
func (t *Transport) Hangups() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.hangups))
	copy(out, t.hangups)
	return out
}

var _ transports.Transport = (*Transport)(nil)
var _ transports.Hanguper = (*Transport)(nil)
