package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/logging"
)

// Weights tunes the two-signal blend. The defaults are starting points,
// not derived values; they are exposed through config for tuning.
type Weights struct {
	Keyword       float64
	Pattern       float64
	SpamBonus     float64
	MaxConfidence float64
	// Normalizer divides the raw weighted keyword score before clamping
	// to [0,1]; roughly "weighted matches needed for full confidence".
	Normalizer float64
}

func DefaultWeights() Weights {
	return Weights{
		Keyword:       0.6,
		Pattern:       0.4,
		SpamBonus:     0.1,
		MaxConfidence: 0.95,
		Normalizer:    3.0,
	}
}

func (w Weights) normalized() Weights {
	if w.Keyword <= 0 {
		w.Keyword = 0.6
	}
	if w.Pattern < 0 {
		w.Pattern = 0.4
	}
	if w.MaxConfidence <= 0 || w.MaxConfidence > 1 {
		w.MaxConfidence = 0.95
	}
	if w.Normalizer <= 0 {
		w.Normalizer = 3.0
	}
	return w
}

// Classifier blends keyword scoring over the recent turns with the
// caller's learned behavior pattern.
type Classifier struct {
	weights  Weights
	patterns *PatternStore
	log      *slog.Logger
}

func NewClassifier(weights Weights, patterns *PatternStore, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	if patterns == nil {
		patterns = NewPatternStore()
	}
	return &Classifier{
		weights:  weights.normalized(),
		patterns: patterns,
		log:      logging.NewComponentLogger(log, "intent_classifier"),
	}
}

// Patterns exposes the behavior pattern store for post-hoc feedback.
func (c *Classifier) Patterns() *PatternStore { return c.patterns }

// Classify scores the last three caller turns against the category
// keyword sets, blends in the per-user pattern prediction, and returns
// the winning category. It never fails hard: with no signal at all the
// result is unknown with zero confidence.
func (c *Classifier) Classify(ctx context.Context, userID string, turns []convo.Turn) Intent {
	select {
	case <-ctx.Done():
		return Unknown()
	default:
	}

	text := concatCallerText(turns, 3)
	kwScores, kwRaw := c.keywordScores(text)

	// Clamping can saturate several categories at 1.0 once the caller
	// repeats a pitch, so ties fall back to the raw weighted counts.
	kwBest, kwBestScore, kwBestRaw := CategoryUnknown, 0.0, 0.0
	for _, cat := range Categories {
		if kwScores[cat] > kwBestScore || (kwScores[cat] == kwBestScore && kwRaw[cat] > kwBestRaw) {
			kwBest, kwBestScore, kwBestRaw = cat, kwScores[cat], kwRaw[cat]
		}
	}

	patCat, patConf := c.patterns.Predict(userID)

	combined := make(map[string]float64, len(Categories))
	for _, cat := range Categories {
		score := c.weights.Keyword * kwScores[cat]
		if cat == patCat {
			score += c.weights.Pattern * patConf
		}
		if c.patterns.SpamFlagged(userID, cat) && score > 0 {
			score += c.weights.SpamBonus
		}
		combined[cat] = score
	}

	best, bestScore := CategoryUnknown, 0.0
	for _, cat := range Categories {
		score := combined[cat]
		if score > bestScore {
			best, bestScore = cat, score
		} else if score == bestScore && score > 0 && cat == kwBest {
			// Ties favor the keyword-signal category.
			best = cat
		}
	}
	if best == CategoryUnknown || bestScore == 0 {
		return Unknown()
	}
	if bestScore > c.weights.MaxConfidence {
		bestScore = c.weights.MaxConfidence
	}

	out := Intent{Category: best, Confidence: bestScore, SubCategory: c.subCategory(best, text)}
	c.log.Debug("classified",
		"user_id", userID,
		"category", out.Category,
		"confidence", out.Confidence,
		"keyword_best", kwBest,
		"pattern_category", patCat,
	)
	return out
}

func (c *Classifier) keywordScores(text string) (scores, raws map[string]float64) {
	scores = make(map[string]float64, len(categoryKeywords))
	raws = make(map[string]float64, len(categoryKeywords))
	if text == "" {
		return scores, raws
	}
	for cat, kws := range categoryKeywords {
		raw := 0.0
		for _, kw := range kws {
			if n := strings.Count(text, kw.term); n > 0 {
				raw += float64(n) * kw.weight
			}
		}
		score := raw / c.weights.Normalizer
		if score > 1 {
			score = 1
		}
		scores[cat] = score
		raws[cat] = raw
	}
	return scores, raws
}

func (c *Classifier) subCategory(category, text string) string {
	markers, ok := subCategories[category]
	if !ok {
		return ""
	}
	for _, m := range markers {
		if strings.Contains(text, m.term) {
			return subCategoryLabel[category]
		}
	}
	return ""
}

func concatCallerText(turns []convo.Turn, max int) string {
	var parts []string
	for i := len(turns) - 1; i >= 0 && len(parts) < max; i-- {
		if turns[i].Speaker != convo.SpeakerCaller {
			continue
		}
		parts = append(parts, strings.ToLower(turns[i].Text))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}
