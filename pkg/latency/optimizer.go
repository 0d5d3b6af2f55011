package latency

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/logging"
)

// Optimization names applied by the optimizer.
const (
	OptParallelLookups = "parallel_lookups"
	OptCacheWarmup     = "cache_warmup"
	OptEdgeRouting     = "edge_routing"
)

// Result reports one optimization pass. Improvement is an estimate and
// is never negative: the optimizer refuses to make latency worse.
type Result struct {
	OriginalLatency  time.Duration
	OptimizedLatency time.Duration
	Improvement      time.Duration
	Optimizations    []string
	Confidence       float64
}

// WarmupFunc triggers background cache warm-up for a user.
type WarmupFunc func(userID string)

// Optimizer measures stage latencies against the performance target and
// applies mitigations to keep the pipeline inside its budget.
type Optimizer struct {
	target  PerformanceTarget
	tracker *Tracker
	cache   *cache.SmartCache
	warmup  WarmupFunc
	log     *slog.Logger
}

func NewOptimizer(target PerformanceTarget, tracker *Tracker, smartCache *cache.SmartCache, warmup WarmupFunc, log *slog.Logger) *Optimizer {
	if log == nil {
		log = slog.Default()
	}
	if tracker == nil {
		tracker = NewTracker(0)
	}
	return &Optimizer{
		target:  target.withDefaults(),
		tracker: tracker,
		cache:   smartCache,
		warmup:  warmup,
		log:     logging.NewComponentLogger(log, "latency_optimizer"),
	}
}

func (o *Optimizer) Target() PerformanceTarget { return o.target }

func (o *Optimizer) Tracker() *Tracker { return o.tracker }

// Optimize inspects the rolling measurements and applies zero or more
// mitigations. It always returns a result; when nothing applies the
// improvement is zero.
func (o *Optimizer) Optimize(ctx context.Context, convoCtx *convo.Context) Result {
	avg := o.tracker.Average()
	original := avg.Total()
	result := Result{
		OriginalLatency:  original,
		OptimizedLatency: original,
		Confidence:       0.5,
	}
	if original == 0 || original <= o.target.MaxTotalLatency {
		return result
	}

	var saved time.Duration

	// Fanning out the profile/whitelist/history lookups hides all but the
	// slowest of them; estimate the saving as half the reasoning stage
	// overshoot.
	if over := avg.Reasoning - o.target.MaxReasoningLatency; over > 0 {
		result.Optimizations = append(result.Optimizations, OptParallelLookups)
		saved += over / 2
	}

	if o.cache != nil {
		stats := o.cache.GetStats()
		if stats.HitRate < o.target.MinCacheHitRate {
			result.Optimizations = append(result.Optimizations, OptCacheWarmup)
			if o.warmup != nil && convoCtx != nil {
				o.warmup(convoCtx.UserID)
			}
			// A warm cache converts generation turns into lookups.
			saved += avg.Reasoning / 4
		}
	}

	if over := avg.STT - o.target.MaxSTTLatency; over > 0 {
		// Routing audio to a closer node trims transport time.
		result.Optimizations = append(result.Optimizations, OptEdgeRouting)
		saved += over / 3
	}

	if saved > original {
		saved = original
	}
	result.OptimizedLatency = original - saved
	result.Improvement = saved
	if len(result.Optimizations) > 0 {
		result.Confidence = 0.6 + 0.1*float64(len(result.Optimizations))
		if result.Confidence > 0.9 {
			result.Confidence = 0.9
		}
	}

	o.log.Debug("latency_optimized",
		"original_ms", original.Milliseconds(),
		"optimized_ms", result.OptimizedLatency.Milliseconds(),
		"optimizations", result.Optimizations,
	)
	return result
}

// ParallelLookups runs independent read-only lookups concurrently and
// waits for all of them, honoring ctx cancellation. The turn pipeline
// uses it for the profile, whitelist and history fetches.
func (o *Optimizer) ParallelLookups(ctx context.Context, lookups ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, lookup := range lookups {
		lookup := lookup
		g.Go(func() error { return lookup(gctx) })
	}
	return g.Wait()
}
