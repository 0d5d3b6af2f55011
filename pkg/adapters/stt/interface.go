package stt

import (
	"context"
)

// Transcript is one recognition result. Interim transcripts carry
// partial text; Final marks the end of an utterance.
type Transcript struct {
	Text       string
	Final      bool
	Confidence float64
	DurationMS int64
}

// StreamingSTT defines the contract for any STT vendor implementation.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the STT connection.
	Start(ctx context.Context) error
	// Close shuts down the STT connection.
	Close() error
	// SendAudio sends raw audio to the STT service.
	SendAudio(audio []byte) error
	// Results returns a channel of transcripts.
	Results() <-chan Transcript
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	StreamID   string
	CallID     string
	TraceID    string
	SampleRate int
	Language   string
}
