package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hanifadr/callward/pkg/audit"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/emotion"
	"github.com/hanifadr/callward/pkg/errorsx"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/latency"
	"github.com/hanifadr/callward/pkg/logging"
	"github.com/hanifadr/callward/pkg/metrics"
	"github.com/hanifadr/callward/pkg/precompute"
	"github.com/hanifadr/callward/pkg/predict"
	"github.com/hanifadr/callward/pkg/profile"
	"github.com/hanifadr/callward/pkg/termination"
)

// Config tunes the turn pipeline. TurnTimeout bounds one full turn;
// past it the caller gets the fallback response instead of waiting.
type Config struct {
	TurnTimeout    time.Duration
	Target         latency.PerformanceTarget
	EscalateScore  float64
	FinalWarnScore float64
}

func (c Config) withDefaults() Config {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 1500 * time.Millisecond
	}
	if c.EscalateScore <= 0 {
		c.EscalateScore = 0.9
	}
	if c.FinalWarnScore <= 0 {
		c.FinalWarnScore = 1.1
	}
	return c
}

// TurnResult is the outcome of processing one caller turn.
type TurnResult struct {
	Response         string
	ResponseType     predict.ResponseType
	Intent           intent.Intent
	Emotion          emotion.Reading
	Termination      termination.Decision
	NextState        convo.State
	ProcessingTimeMS int64
}

// Controller runs the screening turn pipeline: classification and
// emotion analysis in parallel, response prediction, then termination
// evaluation. Turns for one call are strictly serialized.
type Controller struct {
	cfg Config

	contexts    *convo.Manager
	classifier  *intent.Classifier
	analyzer    *emotion.Analyzer
	predictor   *predict.Predictor
	terminator  *termination.Manager
	profiles    profile.Store
	whitelist   profile.WhitelistService
	precomputer *precompute.Precomputer

	obs   metrics.Observer
	sink  audit.Sink
	log   *slog.Logger
	locks sync.Map // callID -> *sync.Mutex
	now   func() time.Time
}

type Deps struct {
	Contexts    *convo.Manager
	Classifier  *intent.Classifier
	Analyzer    *emotion.Analyzer
	Predictor   *predict.Predictor
	Terminator  *termination.Manager
	Profiles    profile.Store
	Whitelist   profile.WhitelistService
	Precomputer *precompute.Precomputer
	Observer    metrics.Observer
	Audit       audit.Sink
	Log         *slog.Logger
}

func NewController(cfg Config, deps Deps) *Controller {
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoopSink{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Controller{
		cfg:         cfg.withDefaults(),
		contexts:    deps.Contexts,
		classifier:  deps.Classifier,
		analyzer:    deps.Analyzer,
		predictor:   deps.Predictor,
		terminator:  deps.Terminator,
		profiles:    deps.Profiles,
		whitelist:   deps.Whitelist,
		precomputer: deps.Precomputer,
		obs:         deps.Observer,
		sink:        deps.Audit,
		log:         logging.NewComponentLogger(deps.Log, "pipeline"),
		now:         time.Now,
	}
}

// StartCall opens a conversation context for a new call. Whitelisted
// callers are flagged in metadata so the surface can bypass screening.
func (c *Controller) StartCall(ctx context.Context, seed convo.Seed) (*convo.Context, error) {
	convoCtx, err := c.contexts.Create(seed)
	if err != nil {
		return nil, err
	}

	if c.whitelist != nil && seed.CallerPhone != "" {
		status, werr := c.whitelist.Status(ctx, seed.CallerPhone)
		if werr == nil && status.Whitelisted {
			_, _ = c.contexts.Update(seed.CallID, func(cc *convo.Context) error {
				cc.Metadata["whitelisted"] = "true"
				return nil
			})
		}
	}

	c.sink.Record(audit.Event{
		Type:        audit.EventCallStart,
		CallID:      seed.CallID,
		UserID:      seed.UserID,
		CallerPhone: seed.CallerPhone,
	})
	return convoCtx, nil
}

// ProcessTurn handles one caller utterance end to end and returns the
// screening response plus the updated state. Errors surface only for
// unknown calls or bad input; every downstream failure degrades to the
// fallback response.
func (c *Controller) ProcessTurn(ctx context.Context, callID, text string, audio *emotion.AudioFeatures) (TurnResult, error) {
	mu := c.lock(callID)
	mu.Lock()
	defer mu.Unlock()

	start := c.now()
	c.emit(metrics.EventTurnStart, callID, 0, nil)

	turnCtx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	// Append the caller turn first so classification sees it in history.
	snapshot, err := c.contexts.Update(callID, func(cc *convo.Context) error {
		if cc.State.Stage.Terminal() {
			return errorsx.Wrap(&convo.InvalidStageError{From: cc.State.Stage, To: cc.State.Stage}, errorsx.ReasonBadInput)
		}
		cc.History = append(cc.History, convo.Turn{
			Speaker:   convo.SpeakerCaller,
			Text:      text,
			Timestamp: start,
		})
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	prof := c.profile(turnCtx, snapshot.UserID)
	if len(prof.SpamCategories) > 0 {
		// Profile history feeds the classifier's spam bonus.
		c.classifier.Patterns().FlagSpam(snapshot.UserID, prof.SpamCategories...)
	}

	// Intent and emotion are independent; run them in parallel.
	var (
		currentIntent intent.Intent
		reading       emotion.Reading
	)
	g, gctx := errgroup.WithContext(turnCtx)
	g.Go(func() error {
		currentIntent = c.classifier.Classify(gctx, snapshot.UserID, snapshot.History)
		return nil
	})
	g.Go(func() error {
		reading = c.analyzer.Analyze(gctx, text, audio)
		return nil
	})
	_ = g.Wait()
	c.emit(metrics.EventClassifyDone, callID, currentIntent.Confidence, map[string]string{
		"category": currentIntent.Category,
	})

	// Fold the turn into the conversation state.
	snapshot, err = c.contexts.Update(callID, func(cc *convo.Context) error {
		last := len(cc.History) - 1
		cc.History[last].Intent = currentIntent.Category
		cc.History[last].Emotion = reading.Emotion
		cc.History[last].Confidence = currentIntent.Confidence

		c.terminator.Accrue(&cc.State, currentIntent)
		c.analyzer.Apply(&cc.State.Emotional, reading)
		cc.State.TurnCount++
		c.advanceStage(&cc.State, currentIntent.Category)
		cc.State.LastIntent = currentIntent.Category
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	result := c.predict(turnCtx, snapshot, prof, currentIntent)
	c.emit(metrics.EventPredictDone, callID, result.Confidence, map[string]string{
		"response_type": string(result.ResponseType),
	})
	if result.ResponseType == predict.ResponseTypePrecomputed {
		c.emit(metrics.EventCacheHit, callID, 1, nil)
	} else {
		c.emit(metrics.EventCacheMiss, callID, 1, nil)
	}

	decision := c.terminator.ShouldTerminate(snapshot, result.SuggestedResponse)
	if decision.ShouldTerminate {
		c.emit(metrics.EventTermination, callID, decision.Confidence, map[string]string{
			"reason": string(decision.Reason),
		})
		c.sink.Record(audit.Event{
			Type:   audit.EventTermination,
			CallID: callID,
			UserID: snapshot.UserID,
			Detail: map[string]string{
				"reason":  string(decision.Reason),
				"urgency": decision.Urgency,
			},
		})
	}

	elapsed := c.now().Sub(start)

	// Record the assistant turn and any terminal stage move.
	snapshot, err = c.contexts.Update(callID, func(cc *convo.Context) error {
		cc.History = append(cc.History, convo.Turn{
			Speaker:    convo.SpeakerAssistant,
			Text:       result.SuggestedResponse,
			Timestamp:  c.now(),
			Intent:     currentIntent.Category,
			Confidence: result.Confidence,
			LatencyMS:  elapsed.Milliseconds(),
		})
		if decision.ShouldTerminate {
			target := convo.StageCallEnd
			if decision.Urgency == termination.UrgencyHigh {
				target = convo.StageHangUp
			}
			return convo.ApplyStage(&cc.State, target)
		}
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	c.predictor.UpdateBehaviorPattern(snapshot.UserID, currentIntent.Category,
		currentIntent.Category == intent.CategorySpam)
	c.sink.Record(audit.Event{
		Type:   audit.EventClassification,
		CallID: callID,
		UserID: snapshot.UserID,
		Detail: map[string]string{
			"category":   currentIntent.Category,
			"emotion":    reading.Emotion,
			"confidence": formatFloat(currentIntent.Confidence),
		},
	})
	c.emit(metrics.EventTurnDone, callID, float64(elapsed.Milliseconds()), nil)

	return TurnResult{
		Response:         result.SuggestedResponse,
		ResponseType:     result.ResponseType,
		Intent:           currentIntent,
		Emotion:          reading,
		Termination:      decision,
		NextState:        snapshot.State,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}, nil
}

// EndCall moves a call to its terminal stage, archives the context and
// schedules a cache warmup for the caller's likely next opening.
func (c *Controller) EndCall(ctx context.Context, callID, reason string) (*convo.Context, error) {
	mu := c.lock(callID)
	mu.Lock()
	defer mu.Unlock()

	_, err := c.contexts.Update(callID, func(cc *convo.Context) error {
		if cc.State.Stage.Terminal() {
			return nil
		}
		return convo.ApplyStage(&cc.State, convo.StageCallEnd)
	})
	if err != nil {
		return nil, err
	}

	archived, err := c.contexts.Archive(callID)
	if err != nil {
		return nil, err
	}

	c.sink.Record(audit.Event{
		Type:   audit.EventCallEnd,
		CallID: callID,
		UserID: archived.UserID,
		Detail: map[string]string{
			"reason": reason,
			"turns":  formatInt(archived.State.TurnCount),
		},
	})

	if c.precomputer != nil && archived.UserID != "" {
		prof := c.profile(ctx, archived.UserID)
		c.precomputer.Schedule(precompute.Job{
			UserID:      archived.UserID,
			LastIntents: archived.LastIntents(2),
			Profile:     prof,
		}, true)
	}
	c.locks.Delete(callID)
	return archived, nil
}

// RequestTermination marks the call so the next turn terminates with
// user_request priority.
func (c *Controller) RequestTermination(callID string) error {
	_, err := c.contexts.Update(callID, func(cc *convo.Context) error {
		cc.Metadata["user_request"] = "true"
		return nil
	})
	return err
}

// Contexts exposes the conversation manager for surface queries.
func (c *Controller) Contexts() *convo.Manager { return c.contexts }

func (c *Controller) predict(ctx context.Context, snapshot *convo.Context, prof profile.UserProfile, current intent.Intent) predict.Result {
	if ctx.Err() != nil {
		c.emit(metrics.EventFallback, snapshot.CallID, 1, map[string]string{"cause": "turn_timeout"})
		return c.predictor.Fallback()
	}
	result := c.predictor.Predict(ctx, snapshot, prof, current)
	if result.SuggestedResponse == "" {
		c.emit(metrics.EventFallback, snapshot.CallID, 1, map[string]string{"cause": "empty_response"})
		return c.predictor.Fallback()
	}
	return result
}

// advanceStage moves the conversation along the stage graph for this
// turn's classified category. Terminal moves happen separately, after
// the termination decision.
func (c *Controller) advanceStage(s *convo.State, category string) {
	switch {
	case s.Stage == convo.StageInitial:
		_ = convo.ApplyStage(s, convo.StageIdentification)
	case s.TerminationScore >= c.cfg.FinalWarnScore && s.Stage == convo.StageFirmRejection:
		_ = convo.ApplyStage(s, convo.StageFinalWarning)
	case s.TerminationScore >= c.cfg.EscalateScore && !s.Stage.Terminal() && s.Stage != convo.StageFinalWarning:
		_ = convo.ApplyStage(s, convo.StageFirmRejection)
	default:
		if target, ok := handlingStage(category); ok {
			_ = convo.ApplyStage(s, target)
		}
	}
}

func handlingStage(category string) (convo.Stage, bool) {
	switch category {
	case intent.CategorySalesCall:
		return convo.StageHandlingSales, true
	case intent.CategoryLoanOffer:
		return convo.StageHandlingLoan, true
	case intent.CategoryInvestmentPitch:
		return convo.StageHandlingInvestment, true
	default:
		return 0, false
	}
}

func (c *Controller) profile(ctx context.Context, userID string) profile.UserProfile {
	if c.profiles == nil || userID == "" {
		return profile.UserProfile{UserID: userID}.Normalized()
	}
	prof, ok, err := c.profiles.Lookup(ctx, userID)
	if err != nil || !ok {
		return profile.UserProfile{UserID: userID}.Normalized()
	}
	return prof.Normalized()
}

func (c *Controller) lock(callID string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(callID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *Controller) emit(name, callID string, value float64, extra map[string]string) {
	tags := map[string]string{"call_id": callID}
	for k, v := range extra {
		tags[k] = v
	}
	c.obs.RecordEvent(metrics.Event{
		Name:  name,
		Time:  c.now(),
		Value: value,
		Tags:  tags,
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatInt(v int) string {
	return strconv.Itoa(v)
}
