package metrics

import "time"

// Stage event names emitted by the turn pipeline. The latency observer
// correlates them per call to reconstruct stage timings.
const (
	EventTurnStart     = "turn_start"
	EventSTTFinal      = "stt_final"
	EventClassifyDone  = "classify_done"
	EventPredictDone   = "predict_done"
	EventTurnDone      = "turn_done"
	EventTTSFirstAudio = "tts_first_audio"

	EventCacheHit    = "cache_hit"
	EventCacheMiss   = "cache_miss"
	EventFallback    = "fallback_response"
	EventTermination = "termination_decision"
)

type Event struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev Event)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(Event) {}
