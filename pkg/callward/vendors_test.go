package callward

import (
	"strings"
	"testing"
)

func TestDeepgramBuilderRequiresAPIKey(t *testing.T) {
	reg := DefaultProviders()
	cfg := Config{}
	cfg.Vendors.STT.Provider = "deepgram"
	cfg.Vendors.STT.Settings = map[string]any{"model": "nova-3"}

	_, err := reg.BuildSTTFactory("deepgram", cfg)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("error = %v, want missing api_key", err)
	}
}

func TestDeepgramBuilderRejectsUnknownKeys(t *testing.T) {
	reg := DefaultProviders()
	cfg := Config{}
	cfg.Vendors.STT.Provider = "deepgram"
	cfg.Vendors.STT.Settings = map[string]any{"api_key": "dg-1", "apikey_typo": "x"}

	_, err := reg.BuildSTTFactory("deepgram", cfg)
	if err == nil || !strings.Contains(err.Error(), "apikey_typo") {
		t.Fatalf("error = %v, want unknown key rejected", err)
	}
}

func TestOpenAIBuilderValidatesSettings(t *testing.T) {
	reg := DefaultProviders()
	cfg := Config{}
	cfg.Vendors.LLM.Provider = "openai"
	cfg.Vendors.LLM.Settings = map[string]any{"model": "gpt-4o-mini"}

	_, err := reg.BuildLLM("openai", cfg)
	if err == nil || !strings.Contains(err.Error(), "vendors.llm.settings") {
		t.Fatalf("error = %v, want schema error with path", err)
	}

	cfg.Vendors.LLM.Settings["api_key"] = "sk-1"
	if _, err := reg.BuildLLM("openai", cfg); err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
}
