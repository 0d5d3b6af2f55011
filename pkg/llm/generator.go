package llm

import "context"

// Message is one prior exchange supplied as generation context.
type Message struct {
	Role    string
	Content string
}

// Prompt is the input for freshly generated responses. Personality and
// Stage steer phrasing; History carries the recent turns.
type Prompt struct {
	System      string
	History     []Message
	UserText    string
	Personality string
	Stage       string
}

// Reply is a generated response.
type Reply struct {
	Text         string
	Tokens       int
	FinishReason string
}

// Generator produces a response when no cached or templated one applies.
// Implementations must honor ctx cancellation; the turn pipeline bounds
// every call with the latency budget.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (Reply, error)
}
