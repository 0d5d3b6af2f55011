package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/hanifadr/callward/pkg/adapters/stt"
)

type STTConfig struct {
	StreamID          string
	CallID            string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
	Confidence        float64
}

// StreamingSTT emits a canned transcript for the first audio chunk it
// receives, matching the recognize-once shape of a screening turn.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan stt.Transcript
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	emitted bool
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.9
	}
	return &StreamingSTT{cfg: cfg, out: make(chan stt.Transcript, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
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

func (s *StreamingSTT) SendAudio(audio []byte) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	if s.emitted {
		s.mu.Unlock()
		return nil
	}
	s.emitted = true
	out := s.out
	s.mu.Unlock()

	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		out <- stt.Transcript{Text: interim, Final: false, Confidence: s.cfg.Confidence / 2}
	}
	out <- stt.Transcript{Text: s.cfg.Transcript, Final: true, Confidence: s.cfg.Confidence}
	return nil
}

func (s *StreamingSTT) Results() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
