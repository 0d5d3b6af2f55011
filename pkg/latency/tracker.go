package latency

import (
	"sync"
	"time"
)

// Tracker keeps a bounded window of recent turn measurements and serves
// rolling averages to the optimizer.
type Tracker struct {
	mu      sync.Mutex
	window  []Measurement
	maxSize int
}

func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 64
	}
	return &Tracker{maxSize: windowSize}
}

func (t *Tracker) RecordTurn(m Measurement) {
	t.mu.Lock()
	t.window = append(t.window, m)
	if len(t.window) > t.maxSize {
		t.window = t.window[len(t.window)-t.maxSize:]
	}
	t.mu.Unlock()
}

// Average returns the mean per-stage latency over the window. A zero
// Measurement means nothing has been recorded yet.
func (t *Tracker) Average() Measurement {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.window) == 0 {
		return Measurement{}
	}
	var stt, reason, synth time.Duration
	for _, m := range t.window {
		stt += m.STT
		reason += m.Reasoning
		synth += m.Synthesis
	}
	n := time.Duration(len(t.window))
	return Measurement{STT: stt / n, Reasoning: reason / n, Synthesis: synth / n}
}

func (t *Tracker) Samples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window)
}
