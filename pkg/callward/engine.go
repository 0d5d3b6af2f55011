package callward

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hanifadr/callward/pkg/audit"
	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/emotion"
	"github.com/hanifadr/callward/pkg/errorsx"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/latency"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/logging"
	"github.com/hanifadr/callward/pkg/metrics"
	"github.com/hanifadr/callward/pkg/observers"
	"github.com/hanifadr/callward/pkg/pipeline"
	"github.com/hanifadr/callward/pkg/precompute"
	"github.com/hanifadr/callward/pkg/predict"
	"github.com/hanifadr/callward/pkg/profile"
	"github.com/hanifadr/callward/pkg/runner"
	"github.com/hanifadr/callward/pkg/termination"
	"github.com/hanifadr/callward/pkg/transports"
)

// Termination feedback outcomes accepted by RecordTerminationFeedback.
const (
	FeedbackConfirmedSpam = "confirmed_spam"
	FeedbackNotSpam       = "not_spam"
)

const recentCallLimit = 256

// Engine is the composition root: it owns every screening component and
// exposes the synchronous conversation surface plus the transport loop.
type Engine struct {
	cfg Config
	log *slog.Logger

	contexts   *convo.Manager
	classifier *intent.Classifier
	analyzer   *emotion.Analyzer
	smartCache *cache.SmartCache
	predictor  *predict.Predictor
	terminator *termination.Manager
	precomp    *precompute.Precomputer
	optimizer  *latency.Optimizer
	controller *pipeline.Controller
	loop       *pipeline.Loop
	transport  transports.Transport

	asyncObs   *metrics.AsyncObserver
	sink       audit.Sink
	auditLog   *audit.Logger
	eventsFile *os.File
	runner     *runner.LifecycleRunner

	mu          sync.Mutex
	recent      map[string]endedCall
	recentOrder []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type endedCall struct {
	userID     string
	lastIntent string
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry

	// Explicit collaborators override what the registry would build.
	Transport transports.Transport
	Generator llm.Generator
	Profiles  profile.Store
	Whitelist profile.WhitelistService
	Observers []metrics.Observer
	Audit     audit.Sink
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("callward_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"transport", cfg.Transport.Provider,
	)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	contexts := convo.NewManager(log)
	patterns := intent.NewPatternStore()
	classifier := intent.NewClassifier(cfg.classifierWeights(), patterns, log)
	analyzer := emotion.NewAnalyzer(emotion.DefaultConfig(), log)
	smartCache := cache.New(cache.WithBackend(cache.NewMemoryStore()), cache.WithLogger(log))

	generator := opts.Generator
	if generator == nil {
		built, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
		if err != nil {
			return nil, err
		}
		generator = built
	}

	predictor := predict.NewPredictor(cfg.predictionConfig(), classifier, smartCache, generator, log)
	terminator := termination.NewManager(cfg.terminationConfig(), log)
	precomp := precompute.New(cfg.precomputeConfig(), predictor, smartCache, log)

	tracker := latency.NewTracker(cfg.Latency.WindowSize)
	optimizer := latency.NewOptimizer(cfg.performanceTarget(), tracker, smartCache, func(userID string) {
		precomp.Schedule(precompute.Job{UserID: userID}, false)
	}, log)

	var eventsFile *os.File
	obsList := []metrics.Observer{observers.NewLatencyObserver(tracker, log)}
	if cfg.Observability.EventsFile != "" {
		f, err := os.OpenFile(cfg.Observability.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		eventsFile = f
		var jsonl metrics.Observer = metrics.NewJSONLObserver(f)
		if cfg.Observability.SampleRate > 0 && cfg.Observability.SampleRate < 1 {
			jsonl = metrics.NewSamplingObserver(jsonl, cfg.Observability.SampleRate)
		}
		obsList = append(obsList, jsonl)
	}
	obsList = append(obsList, opts.Observers...)
	asyncObs := metrics.NewAsyncObserver(metrics.NewMultiObserver(obsList...), cfg.Observability.Buffer)

	var auditLog *audit.Logger
	sink := opts.Audit
	if sink == nil {
		auditLog = audit.NewLogger(log, cfg.Audit.Buffer)
		sink = auditLog
	}

	profiles := opts.Profiles
	if profiles == nil {
		profiles = profile.NewMemoryStore()
	}
	whitelist := opts.Whitelist
	if whitelist == nil {
		whitelist = profile.NewMemoryWhitelist()
	}

	controller := pipeline.NewController(cfg.pipelineConfig(), pipeline.Deps{
		Contexts:    contexts,
		Classifier:  classifier,
		Analyzer:    analyzer,
		Predictor:   predictor,
		Terminator:  terminator,
		Profiles:    profiles,
		Whitelist:   whitelist,
		Precomputer: precomp,
		Observer:    asyncObs,
		Audit:       sink,
		Log:         log,
	})

	transport := opts.Transport
	if transport == nil {
		built, err := providers.BuildTransport(cfg.Transport.Provider, cfg, log)
		if err != nil {
			return nil, err
		}
		transport = built
	}

	loop := pipeline.NewLoop(controller, transport, func(ev transports.TurnEvent) string {
		if id := ev.Meta["user_id"]; id != "" {
			return id
		}
		return ev.CallerPhone
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		log:        logging.NewComponentLogger(log, "engine"),
		contexts:   contexts,
		classifier: classifier,
		analyzer:   analyzer,
		smartCache: smartCache,
		predictor:  predictor,
		terminator: terminator,
		precomp:    precomp,
		optimizer:  optimizer,
		controller: controller,
		loop:       loop,
		transport:  transport,
		asyncObs:   asyncObs,
		sink:       sink,
		auditLog:   auditLog,
		eventsFile: eventsFile,
		recent:     make(map[string]endedCall),
		ctx:        ctx,
		cancel:     cancel,
	}

	contexts.AddStageListener(e)

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Callward Engine Ready"}
			if rr, ok := transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if e.auditLog != nil {
				e.auditLog.Close()
			}
			if e.eventsFile != nil {
				_ = e.eventsFile.Close()
			}
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_calls", contexts.Active())
		},
	}
	e.runner = runner.NewLifecycleRunner(drainerFunc(e.drain), hooks, 30*time.Second)
	return e, nil
}

type drainerFunc func() error

func (f drainerFunc) Drain() error { return f() }

// SetDefaultLogger installs the process-wide structured logger and
// returns it.
func SetDefaultLogger(level, format string) *slog.Logger {
	log := logging.InitLogger(logging.ParseLevel(level), format)
	slog.SetDefault(log)
	return log
}

// Start brings up the transport, the turn loop and the background
// workers. It returns immediately; Stop drains everything.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.transport != nil {
		if err := e.transport.Start(ctx); err != nil {
			return err
		}
		e.loop.Start(e.ctx)
	}
	e.precomp.Start()
	if iv := time.Duration(e.cfg.Cache.SweepIntervalMS) * time.Millisecond; iv > 0 {
		e.smartCache.StartSweeper(iv)
	}
	e.wg.Add(2)
	go e.reapIdleCalls()
	go e.optimizeLoop()
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	e.cancel()
	return e.runner.Stop()
}

func (e *Engine) drain() error {
	if e.transport != nil {
		_ = e.transport.Stop()
		e.loop.Stop()
	}
	e.cancel()
	e.wg.Wait()
	e.precomp.Stop()
	e.smartCache.StopSweeper()
	return nil
}

// ManageConversationTurn is the synchronous screening surface: one caller
// turn in, one structured decision out. The context is created on first
// use.
func (e *Engine) ManageConversationTurn(ctx context.Context, callID, userID, callerPhone, text string) (pipeline.TurnResult, error) {
	if _, err := e.contexts.Get(callID); err != nil {
		if errorsx.Reason(err) != errorsx.ReasonContextNotFound {
			return pipeline.TurnResult{}, err
		}
		_, err = e.controller.StartCall(ctx, convo.Seed{CallID: callID, UserID: userID, CallerPhone: callerPhone})
		if err != nil && errorsx.Reason(err) != errorsx.ReasonContextExists {
			return pipeline.TurnResult{}, err
		}
	}
	res, err := e.controller.ProcessTurn(ctx, callID, text, nil)
	if err != nil && !errorsx.Public(err) {
		e.log.Error("turn_failed", "call_id", callID, "reason_code", string(errorsx.Reason(err)))
	}
	return res, surfaceErr(err)
}

// surfaceErr masks internal reason codes before an error leaves the
// engine API.
func surfaceErr(err error) error {
	if err == nil || errorsx.Public(err) {
		return err
	}
	return errorsx.New(errorsx.ReasonUnknown)
}

func (e *Engine) GetContext(callID string) (*convo.Context, error) {
	return e.contexts.Get(callID)
}

// GetConversationHistory returns one page of turns, oldest first, plus
// the total turn count. Pages are 1-based.
func (e *Engine) GetConversationHistory(callID string, page, limit int) ([]convo.Turn, int, error) {
	return e.contexts.History(callID, page, limit)
}

// RecordTerminationFeedback accepts a post-call verdict on whether the
// screening decision was right and feeds it back into the behavior
// patterns used for future classification. Works for live calls and for
// recently ended ones.
func (e *Engine) RecordTerminationFeedback(callID, outcome string) error {
	if outcome != FeedbackConfirmedSpam && outcome != FeedbackNotSpam {
		return errorsx.Wrap(errors.New("unknown feedback outcome "+outcome), errorsx.ReasonBadInput)
	}

	var userID, lastIntent string
	if cc, err := e.contexts.Get(callID); err == nil {
		userID, lastIntent = cc.UserID, cc.State.LastIntent
	} else {
		e.mu.Lock()
		ended, ok := e.recent[callID]
		e.mu.Unlock()
		if !ok {
			return errorsx.Wrap(errors.New("no call "+callID), errorsx.ReasonContextNotFound)
		}
		userID, lastIntent = ended.userID, ended.lastIntent
	}

	e.sink.Record(audit.Event{
		Type:   audit.EventFeedback,
		CallID: callID,
		UserID: userID,
		Detail: map[string]string{"outcome": outcome, "last_intent": lastIntent},
	})
	if userID != "" && lastIntent != "" {
		e.predictor.UpdateBehaviorPattern(userID, lastIntent, outcome == FeedbackConfirmedSpam)
	}
	return nil
}

// EndCall archives the call and schedules a warm-up precompute for the
// caller's next conversation.
func (e *Engine) EndCall(ctx context.Context, callID, reason string) (*convo.Context, error) {
	return e.controller.EndCall(ctx, callID, reason)
}

// RequestTermination marks the call so its next turn terminates with
// user_request priority.
func (e *Engine) RequestTermination(callID string) error {
	return e.controller.RequestTermination(callID)
}

func (e *Engine) Health() map[string]any {
	stats := e.smartCache.GetStats()
	avg := e.optimizer.Tracker().Average()
	return map[string]any{
		"state":          int(e.runner.State()),
		"active_calls":   e.contexts.Active(),
		"cache_hit_rate": stats.HitRate,
		"avg_turn_ms":    avg.Total().Milliseconds(),
		"within_budget":  avg.Total() <= e.optimizer.Target().MaxTotalLatency,
		"precompute":     e.precomp.Snapshot(),
	}
}

func (e *Engine) Contexts() *convo.Manager { return e.contexts }

func (e *Engine) Cache() *cache.SmartCache { return e.smartCache }

// OnStageChange retains a feedback seed for calls entering a terminal
// stage, so RecordTerminationFeedback keeps working after archive.
func (e *Engine) OnStageChange(ev convo.StageChange) {
	if !ev.ToStage.Terminal() {
		return
	}
	cc, err := e.contexts.Get(ev.CallID)
	if err != nil {
		return
	}
	e.mu.Lock()
	if _, ok := e.recent[ev.CallID]; !ok {
		e.recentOrder = append(e.recentOrder, ev.CallID)
		if len(e.recentOrder) > recentCallLimit {
			delete(e.recent, e.recentOrder[0])
			e.recentOrder = e.recentOrder[1:]
		}
	}
	e.recent[ev.CallID] = endedCall{userID: cc.UserID, lastIntent: cc.State.LastIntent}
	e.mu.Unlock()
}

// reapIdleCalls ends calls that have gone silent past the idle timeout.
func (e *Engine) reapIdleCalls() {
	defer e.wg.Done()
	idle := time.Duration(e.cfg.Termination.IdleTimeoutMS) * time.Millisecond
	if idle <= 0 {
		idle = 45 * time.Second
	}
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idle)
			for _, callID := range e.contexts.IdleCalls(cutoff) {
				if h, ok := e.transport.(transports.Hanguper); ok {
					_ = h.Hangup(e.ctx, callID)
				}
				if _, err := e.controller.EndCall(e.ctx, callID, string(termination.ReasonSystemTimeout)); err != nil {
					e.log.Warn("idle_reap_failed", "call_id", callID, "error", err)
					continue
				}
				e.log.Info("idle_call_ended", "call_id", callID)
			}
		}
	}
}

// optimizeLoop periodically checks the rolling latency against the
// budget and triggers mitigations (cache warm-up for active callers).
func (e *Engine) optimizeLoop() {
	defer e.wg.Done()
	interval := time.Duration(e.cfg.Latency.OptimizeIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, callID := range e.contexts.ActiveCalls() {
				cc, err := e.contexts.Get(callID)
				if err != nil {
					continue
				}
				e.optimizer.Optimize(e.ctx, cc)
			}
		}
	}
}
