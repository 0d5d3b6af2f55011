package callward

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Pipeline.TurnTimeoutMS != 1500 {
		t.Fatalf("turn_timeout_ms = %d", cfg.Pipeline.TurnTimeoutMS)
	}
	if cfg.Classifier.KeywordWeight != 0.6 || cfg.Classifier.PatternWeight != 0.4 {
		t.Fatalf("classifier weights = %+v", cfg.Classifier)
	}
	if cfg.Termination.MaxTurns != 8 || cfg.Termination.PersistenceThreshold != 3 {
		t.Fatalf("termination defaults = %+v", cfg.Termination)
	}
	if cfg.Transport.Provider != "mock" || cfg.Vendors.LLM.Provider != "mock" {
		t.Fatalf("provider defaults = %s/%s", cfg.Transport.Provider, cfg.Vendors.LLM.Provider)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level = %s", cfg.LogLevel)
	}
}

func TestLoadConfigOverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := writeConfig(t, `
log_level: debug
termination:
  max_turns: 5
vendors:
  llm:
    provider: openai
    settings:
      api_key: ${TEST_OPENAI_KEY}
transport:
  provider: twilio
  settings:
    server_addr: ":9090"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Termination.MaxTurns != 5 {
		t.Fatalf("max_turns = %d", cfg.Termination.MaxTurns)
	}
	if cfg.Vendors.LLM.Settings["api_key"] != "sk-test" {
		t.Fatalf("api_key = %v", cfg.Vendors.LLM.Settings["api_key"])
	}
	if cfg.Transport.Settings["server_addr"] != ":9090" {
		t.Fatalf("server_addr = %v", cfg.Transport.Settings["server_addr"])
	}
}

func TestLoadConfigRejectsBadSampleRate(t *testing.T) {
	path := writeConfig(t, "observability:\n  sample_rate: 1.5\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigComponentConversions(t *testing.T) {
	path := writeConfig(t, "environment: test\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.pipelineConfig().TurnTimeout.Milliseconds(); got != 1500 {
		t.Fatalf("pipeline turn timeout = %dms", got)
	}
	if got := cfg.terminationConfig().MaxDuration.Minutes(); got != 3 {
		t.Fatalf("max duration = %vmin", got)
	}
	if got := cfg.performanceTarget().MaxTotalLatency.Milliseconds(); got != 1500 {
		t.Fatalf("latency budget = %dms", got)
	}
}
