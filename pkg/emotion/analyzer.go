package emotion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/logging"
)

// Closed emotion set.
const (
	EmotionNeutral    = "neutral"
	EmotionFriendly   = "friendly"
	EmotionAngry      = "angry"
	EmotionFrustrated = "frustrated"
	EmotionImpatient  = "impatient"
	EmotionAnxious    = "anxious"
)

// Reading is the analysis of a single turn. Valence is in [-1,1],
// arousal and intensity in [0,1].
type Reading struct {
	Emotion   string
	Valence   float64
	Arousal   float64
	Intensity float64
}

// AudioFeatures are optional prosody hints from the audio path.
type AudioFeatures struct {
	Energy float64 // [0,1]
	Pitch  float64 // normalized deviation from the speaker baseline, [0,1]
}

type lexEntry struct {
	emotion string
	valence float64
	arousal float64
}

var lexicon = map[string]lexEntry{
	"别再打":     {EmotionAngry, -0.9, 0.9},
	"烦死":      {EmotionAngry, -0.9, 0.9},
	"投诉":      {EmotionAngry, -0.8, 0.8},
	"骗子":      {EmotionAngry, -0.8, 0.8},
	"说了多少遍":   {EmotionFrustrated, -0.7, 0.7},
	"不需要":     {EmotionFrustrated, -0.5, 0.5},
	"不用了":     {EmotionFrustrated, -0.4, 0.4},
	"听我说完":    {EmotionFrustrated, -0.5, 0.6},
	"快点":      {EmotionImpatient, -0.3, 0.7},
	"没时间":     {EmotionImpatient, -0.4, 0.6},
	"赶时间":     {EmotionImpatient, -0.3, 0.6},
	"担心":      {EmotionAnxious, -0.4, 0.5},
	"着急":      {EmotionAnxious, -0.3, 0.6},
	"谢谢":      {EmotionFriendly, 0.6, 0.3},
	"麻烦你":     {EmotionFriendly, 0.4, 0.3},
	"好的":      {EmotionFriendly, 0.4, 0.2},
	"stop calling": {EmotionAngry, -0.9, 0.9},
	"annoying":     {EmotionAngry, -0.8, 0.8},
	"not interested": {EmotionFrustrated, -0.5, 0.5},
	"in a hurry":    {EmotionImpatient, -0.3, 0.6},
	"thank you":     {EmotionFriendly, 0.6, 0.3},
}

// Config bounds the rolling history and tunes trend detection.
type Config struct {
	MaxHistory     int
	TrendThreshold float64
}

func DefaultConfig() Config {
	return Config{MaxHistory: 12, TrendThreshold: 0.1}
}

// Analyzer maps turn text (plus optional audio features) onto the closed
// emotion set and maintains the rolling emotional trend for a call.
type Analyzer struct {
	cfg Config
	log *slog.Logger
}

func NewAnalyzer(cfg Config, log *slog.Logger) *Analyzer {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 12
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = 0.1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{cfg: cfg, log: logging.NewComponentLogger(log, "emotion_analyzer")}
}

// Analyze scores one turn. With no lexical or audio signal the reading is
// neutral; Analyze never fails.
func (a *Analyzer) Analyze(ctx context.Context, text string, audio *AudioFeatures) Reading {
	select {
	case <-ctx.Done():
		return Reading{Emotion: EmotionNeutral}
	default:
	}

	lower := strings.ToLower(text)
	var (
		valSum, aroSum float64
		hits           int
		dominant       lexEntry
		dominantAbs    float64
	)
	for term, entry := range lexicon {
		n := strings.Count(lower, term)
		if n == 0 {
			continue
		}
		hits += n
		valSum += float64(n) * entry.valence
		aroSum += float64(n) * entry.arousal
		if abs := float64(n) * absFloat(entry.valence); abs > dominantAbs {
			dominantAbs = abs
			dominant = entry
		}
	}

	reading := Reading{Emotion: EmotionNeutral}
	if hits > 0 {
		reading.Emotion = dominant.emotion
		reading.Valence = clamp(valSum/float64(hits), -1, 1)
		reading.Arousal = clamp(aroSum/float64(hits), 0, 1)
		reading.Intensity = clamp(float64(hits)/3.0, 0, 1)
	}
	if audio != nil {
		// Prosody raises arousal but cannot flip the lexical valence.
		reading.Arousal = clamp(reading.Arousal*0.7+audio.Energy*0.3, 0, 1)
		if reading.Emotion == EmotionNeutral && audio.Energy > 0.8 && audio.Pitch > 0.6 {
			reading.Emotion = EmotionImpatient
			reading.Valence = -0.2
			reading.Intensity = audio.Energy
		}
	}
	return reading
}

// Apply folds a reading into the rolling emotional state: bounded
// history, running averages, and the improving/degrading/stable trend.
func (a *Analyzer) Apply(state *convo.EmotionalState, reading Reading) {
	state.Current = reading.Emotion
	state.History = append(state.History, convo.EmotionSample{
		Emotion:   reading.Emotion,
		Valence:   reading.Valence,
		Arousal:   reading.Arousal,
		Intensity: reading.Intensity,
	})
	if len(state.History) > a.cfg.MaxHistory {
		state.History = state.History[len(state.History)-a.cfg.MaxHistory:]
	}

	var valSum, aroSum float64
	for _, s := range state.History {
		valSum += s.Valence
		aroSum += s.Arousal
	}
	n := float64(len(state.History))
	state.AvgValence = valSum / n
	state.AvgArousal = aroSum / n
	state.Trend = a.trend(state.History)
}

// trend compares the average valence of the most recent third of history
// against the earlier two-thirds.
func (a *Analyzer) trend(history []convo.EmotionSample) convo.Trend {
	if len(history) < 3 {
		return convo.TrendStable
	}
	split := len(history) - len(history)/3
	var earlier, recent float64
	for i, s := range history {
		if i < split {
			earlier += s.Valence
		} else {
			recent += s.Valence
		}
	}
	earlier /= float64(split)
	recent /= float64(len(history) - split)

	switch {
	case recent > earlier+a.cfg.TrendThreshold:
		return convo.TrendImproving
	case recent < earlier-a.cfg.TrendThreshold:
		return convo.TrendDegrading
	default:
		return convo.TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
