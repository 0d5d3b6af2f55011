package latency

import "time"

// PerformanceTarget is the budget the pipeline must stay inside. The
// total is apportioned across the speech-to-text, reasoning and
// speech-synthesis stages.
type PerformanceTarget struct {
	MaxTotalLatency       time.Duration
	MaxSTTLatency         time.Duration
	MaxReasoningLatency   time.Duration
	MaxSynthesisLatency   time.Duration
	MinCacheHitRate       float64
	MinPredictionAccuracy float64
	TargetThroughput      float64 // turns per second across all calls
}

func DefaultTarget() PerformanceTarget {
	return PerformanceTarget{
		MaxTotalLatency:       1500 * time.Millisecond,
		MaxSTTLatency:         500 * time.Millisecond,
		MaxReasoningLatency:   600 * time.Millisecond,
		MaxSynthesisLatency:   400 * time.Millisecond,
		MinCacheHitRate:       0.6,
		MinPredictionAccuracy: 0.7,
		TargetThroughput:      50,
	}
}

func (t PerformanceTarget) withDefaults() PerformanceTarget {
	d := DefaultTarget()
	if t.MaxTotalLatency <= 0 {
		t.MaxTotalLatency = d.MaxTotalLatency
	}
	if t.MaxSTTLatency <= 0 {
		t.MaxSTTLatency = d.MaxSTTLatency
	}
	if t.MaxReasoningLatency <= 0 {
		t.MaxReasoningLatency = d.MaxReasoningLatency
	}
	if t.MaxSynthesisLatency <= 0 {
		t.MaxSynthesisLatency = d.MaxSynthesisLatency
	}
	if t.MinCacheHitRate <= 0 {
		t.MinCacheHitRate = d.MinCacheHitRate
	}
	if t.MinPredictionAccuracy <= 0 {
		t.MinPredictionAccuracy = d.MinPredictionAccuracy
	}
	if t.TargetThroughput <= 0 {
		t.TargetThroughput = d.TargetThroughput
	}
	return t
}

// Measurement is one turn's stage latencies.
type Measurement struct {
	STT       time.Duration
	Reasoning time.Duration
	Synthesis time.Duration
}

func (m Measurement) Total() time.Duration {
	return m.STT + m.Reasoning + m.Synthesis
}
