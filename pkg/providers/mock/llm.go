package mock

import (
	"context"
	"sync"

	"github.com/hanifadr/callward/pkg/llm"
)

type GeneratorConfig struct {
	ReplyText string
	Err       error
	Delay     func(ctx context.Context) error
}

// Generator returns a canned reply, an injected error, or honors a
// delay hook for timeout tests.
type Generator struct {
	cfg     GeneratorConfig
	mu      sync.Mutex
	prompts []llm.Prompt
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.ReplyText == "" {
		cfg.ReplyText = "好的，我知道了。"
	}
	return &Generator{cfg: cfg}
}

func (g *Generator) Name() string { return "mock_llm" }

func (g *Generator) Generate(ctx context.Context, prompt llm.Prompt) (llm.Reply, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.cfg.Delay != nil {
		if err := g.cfg.Delay(ctx); err != nil {
			return llm.Reply{}, err
		}
	}
	if g.cfg.Err != nil {
		return llm.Reply{}, g.cfg.Err
	}
	return llm.Reply{Text: g.cfg.ReplyText, FinishReason: "stop"}, nil
}

// Prompts returns the prompts seen so far.
func (g *Generator) Prompts() []llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Prompt, len(g.prompts))
	copy(out, g.prompts)
	return out
}

var _ llm.Generator = (*Generator)(nil)
