package convo

import (
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one utterance within a call, with the classification results
// attached after processing.
type Turn struct {
	Speaker    Speaker
	Text       string
	Timestamp  time.Time
	Intent     string
	Emotion    string
	Confidence float64
	LatencyMS  int64
}

// EmotionSample is one point of the rolling emotional history.
type EmotionSample struct {
	Emotion   string
	Valence   float64
	Arousal   float64
	Intensity float64
	Timestamp time.Time
}

// Trend summarizes the direction of the caller's emotional history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// EmotionalState is the rolling emotion summary embedded in the
// conversation state. History is bounded; oldest samples drop first.
type EmotionalState struct {
	Current    string
	History    []EmotionSample
	AvgValence float64
	AvgArousal float64
	Trend      Trend
}

// State is the mutable per-call conversation state. It is only mutated
// under the owning context's lock (see Manager).
type State struct {
	Stage            Stage
	TurnCount        int
	LastIntent       string
	Emotional        EmotionalState
	TerminationScore float64
	UserEngagement   float64
}

// Context is the per-call conversation context. CallID, UserID and
// CallerPhone are immutable after creation; History is append-only.
type Context struct {
	CallID      string
	UserID      string
	CallerPhone string
	History     []Turn
	State       State
	StartTime   time.Time
	LastActivity time.Time
	Metadata    map[string]string
}

// Seed carries the identifiers needed to open a context.
type Seed struct {
	CallID      string
	UserID      string
	CallerPhone string
}

// LastTurns returns up to n most recent turns, oldest first.
func (c *Context) LastTurns(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	return c.History[len(c.History)-n:]
}

// LastIntents returns up to n most recent caller intents, oldest first.
// Turns without a classification are skipped.
func (c *Context) LastIntents(n int) []string {
	if n <= 0 {
		return nil
	}
	var out []string
	for i := len(c.History) - 1; i >= 0 && len(out) < n; i-- {
		t := c.History[i]
		if t.Speaker == SpeakerCaller && t.Intent != "" {
			out = append(out, t.Intent)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Elapsed is the call duration as of now.
func (c *Context) Elapsed(now time.Time) time.Duration {
	return now.Sub(c.StartTime)
}

// clone returns a deep copy safe to hand out without the call lock.
func (c *Context) clone() *Context {
	cp := *c
	cp.History = append([]Turn(nil), c.History...)
	cp.State.Emotional.History = append([]EmotionSample(nil), c.State.Emotional.History...)
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
