package termination

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/logging"
)

// Reason is the closed set of termination reasons.
type Reason string

const (
	ReasonExcessivePersistence Reason = "excessive_persistence"
	ReasonMaxDuration          Reason = "max_duration"
	ReasonIneffectiveResponses Reason = "ineffective_responses"
	ReasonHighFrustration      Reason = "high_frustration"
	ReasonUserRequest          Reason = "user_request"
	ReasonSystemTimeout        Reason = "system_timeout"
)

// Urgency of ending the call once the decision fires.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Decision is the output of a termination evaluation.
type Decision struct {
	ShouldTerminate bool
	Confidence      float64
	Reason          Reason
	Urgency         string
}

// Config holds the thresholds. Zero values fall back to defaults.
type Config struct {
	MaxTurns             int
	MaxDuration          time.Duration
	IdleTimeout          time.Duration
	PersistenceThreshold int     // consecutive same-category caller turns
	ScoreThreshold       float64 // accumulated termination score
	FrustrationValence   float64 // avg valence at or below which frustration fires
	PersistenceIncrement float64
	DegradingIncrement   float64
}

func DefaultConfig() Config {
	return Config{
		MaxTurns:             8,
		MaxDuration:          3 * time.Minute,
		IdleTimeout:          45 * time.Second,
		PersistenceThreshold: 3,
		ScoreThreshold:       1.2,
		FrustrationValence:   -0.5,
		PersistenceIncrement: 0.4,
		DegradingIncrement:   0.2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.PersistenceThreshold <= 0 {
		c.PersistenceThreshold = d.PersistenceThreshold
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = d.ScoreThreshold
	}
	if c.FrustrationValence >= 0 {
		c.FrustrationValence = d.FrustrationValence
	}
	if c.PersistenceIncrement <= 0 {
		c.PersistenceIncrement = d.PersistenceIncrement
	}
	if c.DegradingIncrement <= 0 {
		c.DegradingIncrement = d.DegradingIncrement
	}
	return c
}

// Manager evaluates whether the current call should end.
type Manager struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg: cfg.withDefaults(),
		log: logging.NewComponentLogger(log, "termination_manager"),
		now: time.Now,
	}
}

// Accrue folds this turn's persistence signals into the termination
// score. The score only ever grows; nothing resets it mid-call.
func (m *Manager) Accrue(state *convo.State, current intent.Intent) {
	if current.Category != intent.CategoryUnknown && current.Category == state.LastIntent {
		state.TerminationScore += m.cfg.PersistenceIncrement
	}
	if state.Emotional.Trend == convo.TrendDegrading {
		state.TerminationScore += m.cfg.DegradingIncrement
	}
	// Engagement decays while the caller keeps pitching the same thing.
	if current.Category != intent.CategoryUnknown && current.Category == state.LastIntent {
		state.UserEngagement *= 0.8
	} else {
		state.UserEngagement = minFloat(state.UserEngagement+0.05, 1.0)
	}
}

// ShouldTerminate evaluates the context against the configured limits.
// Reasons are checked in priority order; max_duration is naturally
// sticky since elapsed time only grows.
func (m *Manager) ShouldTerminate(convoCtx *convo.Context, currentResponse string) Decision {
	now := m.now()

	if strings.EqualFold(convoCtx.Metadata["user_request"], "true") {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.95, Reason: ReasonUserRequest, Urgency: UrgencyHigh})
	}
	if convoCtx.Elapsed(now) >= m.cfg.MaxDuration {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.9, Reason: ReasonMaxDuration, Urgency: UrgencyHigh})
	}
	if run := consecutiveSameCategory(convoCtx); run >= m.cfg.PersistenceThreshold {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.85, Reason: ReasonExcessivePersistence, Urgency: UrgencyMedium})
	}
	if convoCtx.State.TurnCount >= m.cfg.MaxTurns {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.8, Reason: ReasonExcessivePersistence, Urgency: UrgencyMedium})
	}
	emotional := convoCtx.State.Emotional
	if emotional.Trend == convo.TrendDegrading && emotional.AvgValence <= m.cfg.FrustrationValence {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.75, Reason: ReasonHighFrustration, Urgency: UrgencyHigh})
	}
	if convoCtx.State.TerminationScore >= m.cfg.ScoreThreshold {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.7, Reason: ReasonIneffectiveResponses, Urgency: UrgencyMedium})
	}
	if !convoCtx.LastActivity.IsZero() && now.Sub(convoCtx.LastActivity) >= m.cfg.IdleTimeout {
		return m.decide(convoCtx, Decision{ShouldTerminate: true, Confidence: 0.6, Reason: ReasonSystemTimeout, Urgency: UrgencyLow})
	}
	return Decision{ShouldTerminate: false, Confidence: 0.5, Urgency: UrgencyLow}
}

func (m *Manager) decide(convoCtx *convo.Context, d Decision) Decision {
	m.log.Info("termination_decision",
		"call_id", convoCtx.CallID,
		"reason", string(d.Reason),
		"urgency", d.Urgency,
		"turns", convoCtx.State.TurnCount,
		"score", convoCtx.State.TerminationScore,
	)
	return d
}

// consecutiveSameCategory counts the trailing run of identical
// non-unknown caller intents.
func consecutiveSameCategory(convoCtx *convo.Context) int {
	run := 0
	category := ""
	for i := len(convoCtx.History) - 1; i >= 0; i-- {
		t := convoCtx.History[i]
		if t.Speaker != convo.SpeakerCaller {
			continue
		}
		if t.Intent == "" || t.Intent == intent.CategoryUnknown {
			break
		}
		if category == "" {
			category = t.Intent
		}
		if t.Intent != category {
			break
		}
		run++
	}
	return run
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
