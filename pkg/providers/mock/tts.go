package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/hanifadr/callward/pkg/adapters/tts"
)

type TTSConfig struct {
	StreamID   string
	CallID     string
	SampleRate int
	Channels   int
}

// StreamingTTS emits one deterministic silent chunk per SendText.
type StreamingTTS struct {
	cfg     TTSConfig
	out     chan tts.AudioChunk
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	flushed int
}

func NewTTS(cfg TTSConfig) *StreamingTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &StreamingTTS{cfg: cfg, out: make(chan tts.AudioChunk, 16)}
}

func (s *StreamingTTS) Name() string { return "mock_tts" }

func (s *StreamingTTS) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.started = false
	return nil
}

func (s *StreamingTTS) SendText(text string) error {
	s.mu.Lock()
	started := s.started
	out := s.out
	s.mu.Unlock()
	if !started {
		return errors.New("not started")
	}

	pcm := make([]byte, 320)
	out <- tts.AudioChunk{Audio: pcm}
	out <- tts.AudioChunk{Final: true}
	return nil
}

func (s *StreamingTTS) Flush() {
	s.mu.Lock()
	s.flushed++
	s.mu.Unlock()
}

// Flushes reports how many times Flush was called.
func (s *StreamingTTS) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

func (s *StreamingTTS) Results() <-chan tts.AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

var _ tts.StreamingTTS = (*StreamingTTS)(nil)
