package callward

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/latency"
	"github.com/hanifadr/callward/pkg/pipeline"
	"github.com/hanifadr/callward/pkg/precompute"
	"github.com/hanifadr/callward/pkg/predict"
	"github.com/hanifadr/callward/pkg/termination"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Termination   TerminationConfig   `mapstructure:"termination"`
	Prediction    PredictionConfig    `mapstructure:"prediction"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Latency       LatencyConfig       `mapstructure:"latency"`
	Precompute    PrecomputeConfig    `mapstructure:"precompute"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Observability ObservabilityConfig `mapstructure:"observability"`

	Vendors   VendorsConfig   `mapstructure:"vendors"`
	Transport TransportConfig `mapstructure:"transport"`
}

type PipelineConfig struct {
	TurnTimeoutMS  int     `mapstructure:"turn_timeout_ms"`
	EscalateScore  float64 `mapstructure:"escalate_score"`
	FinalWarnScore float64 `mapstructure:"final_warning_score"`
}

type ClassifierConfig struct {
	KeywordWeight float64 `mapstructure:"keyword_weight"`
	PatternWeight float64 `mapstructure:"pattern_weight"`
	SpamBonus     float64 `mapstructure:"spam_bonus"`
	MaxConfidence float64 `mapstructure:"max_confidence"`
	Normalizer    float64 `mapstructure:"normalizer"`
}

type TerminationConfig struct {
	MaxTurns             int     `mapstructure:"max_turns"`
	MaxDurationMS        int     `mapstructure:"max_duration_ms"`
	IdleTimeoutMS        int     `mapstructure:"idle_timeout_ms"`
	PersistenceThreshold int     `mapstructure:"persistence_threshold"`
	ScoreThreshold       float64 `mapstructure:"score_threshold"`
	FrustrationValence   float64 `mapstructure:"frustration_valence"`
	PersistenceIncrement float64 `mapstructure:"persistence_increment"`
	DegradingIncrement   float64 `mapstructure:"degrading_increment"`
}

type PredictionConfig struct {
	TemplateTTLMS         int     `mapstructure:"template_ttl_ms"`
	MinTemplateConfidence float64 `mapstructure:"min_template_confidence"`
	FallbackText          string  `mapstructure:"fallback_text"`
}

type CacheConfig struct {
	SweepIntervalMS int `mapstructure:"sweep_interval_ms"`
}

type LatencyConfig struct {
	TotalBudgetMS         int     `mapstructure:"total_budget_ms"`
	STTBudgetMS           int     `mapstructure:"stt_budget_ms"`
	ReasoningBudgetMS     int     `mapstructure:"reasoning_budget_ms"`
	SynthesisBudgetMS     int     `mapstructure:"synthesis_budget_ms"`
	MinCacheHitRate       float64 `mapstructure:"min_cache_hit_rate"`
	MinPredictionAccuracy float64 `mapstructure:"min_prediction_accuracy"`
	TargetThroughput      float64 `mapstructure:"target_throughput"`
	WindowSize            int     `mapstructure:"window_size"`
	OptimizeIntervalMS    int     `mapstructure:"optimize_interval_ms"`
}

type PrecomputeConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueHigh  int `mapstructure:"queue_high"`
	QueueLow   int `mapstructure:"queue_low"`
	Fairness   int `mapstructure:"fairness"`
	MaxRetries int `mapstructure:"max_retries"`
	BackoffMS  int `mapstructure:"backoff_ms"`
}

type AuditConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type ObservabilityConfig struct {
	EventsFile string  `mapstructure:"events_file"`
	Buffer     int     `mapstructure:"buffer"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type TransportConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("pipeline.turn_timeout_ms", 1500)
	v.SetDefault("pipeline.escalate_score", 0.9)
	v.SetDefault("pipeline.final_warning_score", 1.1)
	v.SetDefault("classifier.keyword_weight", 0.6)
	v.SetDefault("classifier.pattern_weight", 0.4)
	v.SetDefault("classifier.spam_bonus", 0.1)
	v.SetDefault("classifier.max_confidence", 0.95)
	v.SetDefault("classifier.normalizer", 3.0)
	v.SetDefault("termination.max_turns", 8)
	v.SetDefault("termination.max_duration_ms", 180000)
	v.SetDefault("termination.idle_timeout_ms", 45000)
	v.SetDefault("termination.persistence_threshold", 3)
	v.SetDefault("termination.score_threshold", 1.2)
	v.SetDefault("termination.frustration_valence", -0.5)
	v.SetDefault("termination.persistence_increment", 0.4)
	v.SetDefault("termination.degrading_increment", 0.2)
	v.SetDefault("prediction.template_ttl_ms", 600000)
	v.SetDefault("prediction.min_template_confidence", 0.3)
	v.SetDefault("prediction.fallback_text", "")
	v.SetDefault("cache.sweep_interval_ms", 30000)
	v.SetDefault("latency.total_budget_ms", 1500)
	v.SetDefault("latency.stt_budget_ms", 500)
	v.SetDefault("latency.reasoning_budget_ms", 600)
	v.SetDefault("latency.synthesis_budget_ms", 400)
	v.SetDefault("latency.min_cache_hit_rate", 0.6)
	v.SetDefault("latency.min_prediction_accuracy", 0.7)
	v.SetDefault("latency.target_throughput", 50)
	v.SetDefault("latency.window_size", 64)
	v.SetDefault("latency.optimize_interval_ms", 15000)
	v.SetDefault("precompute.workers", 2)
	v.SetDefault("precompute.queue_high", 64)
	v.SetDefault("precompute.queue_low", 256)
	v.SetDefault("precompute.fairness", 4)
	v.SetDefault("precompute.max_retries", 2)
	v.SetDefault("precompute.backoff_ms", 50)
	v.SetDefault("audit.buffer", 256)
	v.SetDefault("observability.events_file", "")
	v.SetDefault("observability.buffer", 2048)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("vendors.stt.provider", "mock")
	v.SetDefault("vendors.tts.provider", "mock")
	v.SetDefault("vendors.llm.provider", "mock")
	v.SetDefault("transport.provider", "mock")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Transport.Settings = expandSettings(cfg.Transport.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transport.Provider) == "" {
		return fmt.Errorf("transport.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be in [0,1]")
	}
	return nil
}

func (c Config) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		TurnTimeout:    time.Duration(c.Pipeline.TurnTimeoutMS) * time.Millisecond,
		Target:         c.performanceTarget(),
		EscalateScore:  c.Pipeline.EscalateScore,
		FinalWarnScore: c.Pipeline.FinalWarnScore,
	}
}

func (c Config) classifierWeights() intent.Weights {
	return intent.Weights{
		Keyword:       c.Classifier.KeywordWeight,
		Pattern:       c.Classifier.PatternWeight,
		SpamBonus:     c.Classifier.SpamBonus,
		MaxConfidence: c.Classifier.MaxConfidence,
		Normalizer:    c.Classifier.Normalizer,
	}
}

func (c Config) terminationConfig() termination.Config {
	return termination.Config{
		MaxTurns:             c.Termination.MaxTurns,
		MaxDuration:          time.Duration(c.Termination.MaxDurationMS) * time.Millisecond,
		IdleTimeout:          time.Duration(c.Termination.IdleTimeoutMS) * time.Millisecond,
		PersistenceThreshold: c.Termination.PersistenceThreshold,
		ScoreThreshold:       c.Termination.ScoreThreshold,
		FrustrationValence:   c.Termination.FrustrationValence,
		PersistenceIncrement: c.Termination.PersistenceIncrement,
		DegradingIncrement:   c.Termination.DegradingIncrement,
	}
}

func (c Config) predictionConfig() predict.Config {
	return predict.Config{
		TemplateTTL:           time.Duration(c.Prediction.TemplateTTLMS) * time.Millisecond,
		MinTemplateConfidence: c.Prediction.MinTemplateConfidence,
		FallbackText:          c.Prediction.FallbackText,
	}
}

func (c Config) precomputeConfig() precompute.Config {
	return precompute.Config{
		Workers:    c.Precompute.Workers,
		QueueHigh:  c.Precompute.QueueHigh,
		QueueLow:   c.Precompute.QueueLow,
		Fairness:   c.Precompute.Fairness,
		MaxRetries: c.Precompute.MaxRetries,
		Backoff:    time.Duration(c.Precompute.BackoffMS) * time.Millisecond,
	}
}

func (c Config) performanceTarget() latency.PerformanceTarget {
	return latency.PerformanceTarget{
		MaxTotalLatency:       time.Duration(c.Latency.TotalBudgetMS) * time.Millisecond,
		MaxSTTLatency:         time.Duration(c.Latency.STTBudgetMS) * time.Millisecond,
		MaxReasoningLatency:   time.Duration(c.Latency.ReasoningBudgetMS) * time.Millisecond,
		MaxSynthesisLatency:   time.Duration(c.Latency.SynthesisBudgetMS) * time.Millisecond,
		MinCacheHitRate:       c.Latency.MinCacheHitRate,
		MinPredictionAccuracy: c.Latency.MinPredictionAccuracy,
		TargetThroughput:      c.Latency.TargetThroughput,
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}
