package callward

import (
	"fmt"
	"log/slog"

	"github.com/hanifadr/callward/pkg/adapters/stt"
	"github.com/hanifadr/callward/pkg/adapters/tts"
	"github.com/hanifadr/callward/pkg/configutil"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/providers/deepgram"
	"github.com/hanifadr/callward/pkg/providers/mock"
	"github.com/hanifadr/callward/pkg/providers/openai"
	"github.com/hanifadr/callward/pkg/transports"
	mocktransport "github.com/hanifadr/callward/pkg/transports/mock"
	twiliotransport "github.com/hanifadr/callward/pkg/transports/twilio"
)

type deepgramSettings struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
	Interim    *bool  `mapstructure:"interim"`
}

type openAISettings struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

type mockSTTSettings struct {
	Transcript string  `mapstructure:"transcript"`
	Confidence float64 `mapstructure:"confidence"`
}

type mockLLMSettings struct {
	ReplyText string `mapstructure:"reply_text"`
}

var deepgramSchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "language", "sample_rate", "encoding", "interim"},
}

var openAISchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "base_url", "max_tokens", "temperature", "max_retries"},
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// DefaultProviders registers the vendors this module ships. Programs with
// their own vendors can start from NewProviderRegistry instead.
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()

	reg.RegisterSTT("deepgram", func(cfg Config) (func(stt.Config) stt.StreamingSTT, error) {
		if err := validateSettings("vendors.stt.settings", cfg.Vendors.STT.Settings, deepgramSchema); err != nil {
			return nil, err
		}
		var s deepgramSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
			return nil, err
		}
		return func(sc stt.Config) stt.StreamingSTT {
			return deepgram.New(deepgram.Config{
				APIKey:     s.APIKey,
				Model:      s.Model,
				Language:   s.Language,
				SampleRate: s.SampleRate,
				Encoding:   s.Encoding,
				Interim:    configutil.BoolValue(s.Interim, false),
				StreamID:   sc.StreamID,
				CallID:     sc.CallID,
				TraceID:    sc.TraceID,
			})
		}, nil
	})

	reg.RegisterSTT("mock", func(cfg Config) (func(stt.Config) stt.StreamingSTT, error) {
		var s mockSTTSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
			return nil, err
		}
		return func(stt.Config) stt.StreamingSTT {
			return mock.NewSTT(mock.STTConfig{
				Transcript: s.Transcript,
				Confidence: s.Confidence,
			})
		}, nil
	})

	reg.RegisterTTS("mock", func(cfg Config) (func(tts.Config) tts.StreamingTTS, error) {
		return func(tts.Config) tts.StreamingTTS {
			return mock.NewTTS(mock.TTSConfig{})
		}, nil
	})

	reg.RegisterLLM("openai", func(cfg Config) (llm.Generator, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, openAISchema); err != nil {
			return nil, err
		}
		var s openAISettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
			return nil, err
		}
		return openai.NewGenerator(openai.Config{
			APIKey:      s.APIKey,
			Model:       s.Model,
			BaseURL:     s.BaseURL,
			MaxTokens:   s.MaxTokens,
			Temperature: float32(s.Temperature),
			MaxRetries:  s.MaxRetries,
		}), nil
	})

	reg.RegisterLLM("mock", func(cfg Config) (llm.Generator, error) {
		var s mockLLMSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
			return nil, err
		}
		return mock.NewGenerator(mock.GeneratorConfig{ReplyText: s.ReplyText}), nil
	})

	reg.RegisterTransport("twilio", func(cfg Config, r *ProviderRegistry, log *slog.Logger) (transports.Transport, error) {
		var tc twiliotransport.Config
		if err := configutil.DecodeSettings(cfg.Transport.Settings, &tc); err != nil {
			return nil, err
		}
		sttFactory, err := r.BuildSTTFactory(cfg.Vendors.STT.Provider, cfg)
		if err != nil {
			return nil, err
		}
		ttsFactory, err := r.BuildTTSFactory(cfg.Vendors.TTS.Provider, cfg)
		if err != nil {
			return nil, err
		}
		return twiliotransport.New(tc, twiliotransport.STTFactory(sttFactory), twiliotransport.TTSFactory(ttsFactory), log), nil
	})

	reg.RegisterTransport("mock", func(Config, *ProviderRegistry, *slog.Logger) (transports.Transport, error) {
		return mocktransport.New(), nil
	})

	return reg
}
