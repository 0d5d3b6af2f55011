package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hanifadr/callward/pkg/latency"
	"github.com/hanifadr/callward/pkg/metrics"
)

// LatencyObserver correlates per-call stage events into per-turn stage
// measurements and feeds them to the latency tracker.
type LatencyObserver struct {
	mu      sync.Mutex
	traces  map[string]*trace
	tracker *latency.Tracker
	log     *slog.Logger
}

type trace struct {
	turnStart time.Time
	sttFinal  time.Time
	predicted time.Time
	ttsFirst  time.Time
}

func NewLatencyObserver(tracker *latency.Tracker, log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces:  make(map[string]*trace),
		tracker: tracker,
		log:     log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.Event) {
	callID := ""
	if ev.Tags != nil {
		callID = ev.Tags["call_id"]
	}
	if callID == "" {
		return
	}
	o.mu.Lock()
	t := o.traces[callID]
	if t == nil {
		t = &trace{}
		o.traces[callID] = t
	}
	switch ev.Name {
	case metrics.EventTurnStart:
		*t = trace{turnStart: ev.Time}
	case metrics.EventSTTFinal:
		if t.sttFinal.IsZero() {
			t.sttFinal = ev.Time
		}
	case metrics.EventPredictDone:
		if t.predicted.IsZero() {
			t.predicted = ev.Time
		}
	case metrics.EventTTSFirstAudio:
		if t.ttsFirst.IsZero() {
			t.ttsFirst = ev.Time
		}
	case metrics.EventTurnDone:
		o.flushLocked(callID, t)
		delete(o.traces, callID)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) flushLocked(callID string, t *trace) {
	// Transports without transcript stage events never emit stt_final,
	// so reasoning falls back to the turn start.
	reasoningFrom := t.sttFinal
	if reasoningFrom.IsZero() {
		reasoningFrom = t.turnStart
	}
	m := latency.Measurement{
		STT:       span(t.turnStart, t.sttFinal),
		Reasoning: span(reasoningFrom, t.predicted),
		Synthesis: span(t.predicted, t.ttsFirst),
	}
	if o.tracker != nil && m.Total() > 0 {
		o.tracker.RecordTurn(m)
	}
	o.log.Info("turn_latency",
		"call_id", callID,
		"stt_ms", m.STT.Milliseconds(),
		"reasoning_ms", m.Reasoning.Milliseconds(),
		"synthesis_ms", m.Synthesis.Milliseconds(),
		"total_ms", m.Total().Milliseconds(),
	)
}

// span is zero when either endpoint is missing so a partial trace never
// poisons the rolling averages.
func span(a, b time.Time) time.Duration {
	if a.IsZero() || b.IsZero() || b.Before(a) {
		return 0
	}
	return b.Sub(a)
}
