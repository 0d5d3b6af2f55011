package tts

import (
	"context"
)

// AudioChunk is one slice of synthesized audio. Final marks the end of
// synthesis for the submitted text.
type AudioChunk struct {
	Audio []byte
	Final bool
}

// StreamingTTS defines the contract for any TTS vendor implementation.
type StreamingTTS interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the TTS connection.
	Start(ctx context.Context) error
	// Close shuts down the TTS connection.
	Close() error
	// SendText sends text to be synthesized.
	SendText(text string) error
	// Flush stops current synthesis and clears buffers.
	Flush()
	// Results returns a channel of audio chunks.
	Results() <-chan AudioChunk
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	StreamID   string
	CallID     string
	SampleRate int
	Channels   int
	Voice      string
}
