package predict

import (
	"context"
	"log/slog"
	"time"

	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/logging"
	"github.com/hanifadr/callward/pkg/profile"
)

// Config tunes the prediction strategy.
type Config struct {
	// TemplateTTL is how long a cacheable result stays reusable.
	TemplateTTL time.Duration
	// MinTemplateConfidence is the classification confidence needed to
	// answer from the phrasing tables instead of generating.
	MinTemplateConfidence float64
	// FallbackText is returned when everything else fails. Never empty.
	FallbackText string
}

func DefaultConfig() Config {
	return Config{
		TemplateTTL:           10 * time.Minute,
		MinTemplateConfidence: 0.3,
		FallbackText:          "不好意思，我现在不方便，再见。",
	}
}

func (c Config) withDefaults() Config {
	if c.TemplateTTL <= 0 {
		c.TemplateTTL = 10 * time.Minute
	}
	if c.MinTemplateConfidence <= 0 {
		c.MinTemplateConfidence = 0.3
	}
	if c.FallbackText == "" {
		c.FallbackText = "不好意思，我现在不方便，再见。"
	}
	return c
}

// Predictor produces a response strategy and reply for each turn. The
// cache check is the synchronous fast path; generation is the slow
// fallback bounded by the caller's per-turn deadline.
type Predictor struct {
	cfg        Config
	classifier *intent.Classifier
	cache      *cache.SmartCache
	generator  llm.Generator
	log        *slog.Logger
}

func NewPredictor(cfg Config, classifier *intent.Classifier, smartCache *cache.SmartCache, generator llm.Generator, log *slog.Logger) *Predictor {
	if log == nil {
		log = slog.Default()
	}
	if classifier == nil {
		classifier = intent.NewClassifier(intent.DefaultWeights(), nil, log)
	}
	return &Predictor{
		cfg:        cfg.withDefaults(),
		classifier: classifier,
		cache:      smartCache,
		generator:  generator,
		log:        logging.NewComponentLogger(log, "response_predictor"),
	}
}

// Predict returns a response for the current context. It never returns an
// error: any internal failure degrades to the fixed fallback so the
// caller always has a reply.
func (p *Predictor) Predict(ctx context.Context, convoCtx *convo.Context, prof profile.UserProfile, current intent.Intent) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("predict_panic", "call_id", convoCtx.CallID, "panic", r)
			result = p.Fallback()
		}
	}()

	prof = prof.Normalized()
	if current.Category == "" {
		current = p.classifier.Classify(ctx, convoCtx.UserID, convoCtx.LastTurns(3))
	}

	key := CacheKey(convoCtx.UserID, convoCtx.LastIntents(2), prof.Personality)
	if p.cache != nil {
		if value, ok := p.cache.Get(ctx, key); ok {
			if cached, ok := value.(Result); ok && cached.SuggestedResponse != "" {
				cached.ResponseType = ResponseTypePrecomputed
				cached.Intent = current
				p.log.Debug("predict_cache_hit", "call_id", convoCtx.CallID, "key", key)
				return cached
			}
		}
	}

	result = p.build(ctx, convoCtx, prof, current)

	if result.Cacheable && p.cache != nil {
		p.cache.Set(ctx, key, result, result.TTL,
			cache.WithTags("predict", convoCtx.UserID),
			cache.WithPriority(cache.PriorityNormal))
	}
	return result
}

// Precompute builds the cache entry for a hypothetical situation without
// a live context, for use by the background precomputer. The entry uses
// the same key derivation as the live path.
func (p *Predictor) Precompute(userID string, lastIntents []string, prof profile.UserProfile) (cache.Entry, bool) {
	prof = prof.Normalized()
	category := intent.CategoryUnknown
	if len(lastIntents) > 0 {
		category = lastIntents[len(lastIntents)-1]
	}
	text, ok := templateFor(prof.Personality, category, convo.StageIdentification, len(lastIntents))
	if !ok {
		return cache.Entry{}, false
	}
	result := Result{
		Intent:            intent.Intent{Category: category, Confidence: 0.5},
		Confidence:        0.5,
		SuggestedResponse: text,
		ResponseType:      ResponseTypeTemplate,
		Cacheable:         true,
		TTL:               p.cfg.TemplateTTL,
	}
	return cache.Entry{
		Key:      CacheKey(userID, lastIntents, prof.Personality),
		Value:    result,
		TTL:      p.cfg.TemplateTTL,
		Tags:     []string{"predict", "precomputed", userID},
		Priority: cache.PriorityHigh,
	}, true
}

// UpdateBehaviorPattern records post-hoc feedback for future pattern
// predictions. It is fire-and-forget and never blocks the response path.
func (p *Predictor) UpdateBehaviorPattern(userID, category string, flaggedSpam bool) {
	go p.classifier.Patterns().Record(userID, category, flaggedSpam)
}

// Fallback is the fixed low-confidence response used when prediction or
// generation fails.
func (p *Predictor) Fallback() Result {
	return Result{
		Intent:            intent.Unknown(),
		Confidence:        0.2,
		SuggestedResponse: p.cfg.FallbackText,
		ResponseType:      ResponseTypeTemplate,
		Cacheable:         false,
	}
}

func (p *Predictor) build(ctx context.Context, convoCtx *convo.Context, prof profile.UserProfile, current intent.Intent) Result {
	stage := convoCtx.State.Stage

	if current.Category != intent.CategoryUnknown && current.Confidence >= p.cfg.MinTemplateConfidence {
		if text, ok := templateFor(prof.Personality, current.Category, stage, convoCtx.State.TurnCount); ok {
			return Result{
				Intent:            current,
				Confidence:        current.Confidence,
				SuggestedResponse: text,
				ResponseType:      ResponseTypeTemplate,
				Cacheable:         true,
				TTL:               p.cfg.TemplateTTL,
			}
		}
	}

	if p.generator != nil {
		reply, err := p.generator.Generate(ctx, p.prompt(convoCtx, prof))
		if err == nil && reply.Text != "" {
			return Result{
				Intent:            current,
				Confidence:        maxFloat(current.Confidence, 0.4),
				SuggestedResponse: reply.Text,
				ResponseType:      ResponseTypeGenerated,
				Cacheable:         false,
			}
		}
		if err != nil {
			p.log.Warn("generate_failed", "call_id", convoCtx.CallID, "error", err)
		}
	}

	// No template matched and generation was unavailable: answer with the
	// unknown-category phrasing before giving up entirely.
	if text, ok := templateFor(prof.Personality, intent.CategoryUnknown, stage, convoCtx.State.TurnCount); ok {
		return Result{
			Intent:            current,
			Confidence:        maxFloat(current.Confidence, 0.25),
			SuggestedResponse: text,
			ResponseType:      ResponseTypeTemplate,
			Cacheable:         false,
		}
	}
	return p.Fallback()
}

func (p *Predictor) prompt(convoCtx *convo.Context, prof profile.UserProfile) llm.Prompt {
	var history []llm.Message
	for _, t := range convoCtx.LastTurns(6) {
		role := "user"
		if t.Speaker == convo.SpeakerAssistant {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: t.Text})
	}
	userText := ""
	if turns := convoCtx.LastTurns(1); len(turns) > 0 {
		userText = turns[0].Text
	}
	return llm.Prompt{
		System:      "你在替机主接听一个疑似骚扰电话，用简短的中文回应并拒绝对方的推销。",
		History:     history,
		UserText:    userText,
		Personality: prof.Personality,
		Stage:       convoCtx.State.Stage.String(),
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
