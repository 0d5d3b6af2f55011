package callward

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hanifadr/callward/pkg/adapters/stt"
	"github.com/hanifadr/callward/pkg/adapters/tts"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/transports"
)

type STTFactoryBuilder func(cfg Config) (func(stt.Config) stt.StreamingSTT, error)
type TTSFactoryBuilder func(cfg Config) (func(tts.Config) tts.StreamingTTS, error)
type LLMBuilder func(cfg Config) (llm.Generator, error)
type TransportBuilder func(cfg Config, reg *ProviderRegistry, log *slog.Logger) (transports.Transport, error)

// ProviderRegistry maps vendor names from config to the factories that
// build them. Registrations live with the program that composes the
// engine, so deployments only link the vendors they use.
type ProviderRegistry struct {
	stt       map[string]STTFactoryBuilder
	tts       map[string]TTSFactoryBuilder
	llm       map[string]LLMBuilder
	transport map[string]TransportBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:       make(map[string]STTFactoryBuilder),
		tts:       make(map[string]TTSFactoryBuilder),
		llm:       make(map[string]LLMBuilder),
		transport: make(map[string]TransportBuilder),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, builder STTFactoryBuilder) {
	r.stt[normalizeProvider(name)] = builder
}

func (r *ProviderRegistry) RegisterTTS(name string, builder TTSFactoryBuilder) {
	r.tts[normalizeProvider(name)] = builder
}

func (r *ProviderRegistry) RegisterLLM(name string, builder LLMBuilder) {
	r.llm[normalizeProvider(name)] = builder
}

func (r *ProviderRegistry) RegisterTransport(name string, builder TransportBuilder) {
	r.transport[normalizeProvider(name)] = builder
}

func (r *ProviderRegistry) BuildSTTFactory(provider string, cfg Config) (func(stt.Config) stt.StreamingSTT, error) {
	fn := r.stt[normalizeProvider(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTTSFactory(provider string, cfg Config) (func(tts.Config) tts.StreamingTTS, error) {
	fn := r.tts[normalizeProvider(provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.Generator, error) {
	fn := r.llm[normalizeProvider(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config, log *slog.Logger) (transports.Transport, error) {
	fn := r.transport[normalizeProvider(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg, r, log)
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
