package precompute

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/logging"
	"github.com/hanifadr/callward/pkg/predict"
	"github.com/hanifadr/callward/pkg/priority"
	"github.com/hanifadr/callward/pkg/profile"
	"github.com/hanifadr/callward/pkg/resilience"
)

// JobState tracks a job through its lifecycle.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Job asks the precomputer to warm cached responses for one user,
// seeded with the intent sequences the next call is likely to open with.
type Job struct {
	UserID      string
	LastIntents []string
	Profile     profile.UserProfile
	State       JobState
	EnqueuedAt  time.Time
	Attempts    int
}

// Config tunes the background precomputer.
type Config struct {
	Workers    int
	QueueHigh  int
	QueueLow   int
	Fairness   int
	MaxRetries int
	Backoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueHigh <= 0 {
		c.QueueHigh = 64
	}
	if c.QueueLow <= 0 {
		c.QueueLow = 256
	}
	if c.Fairness <= 0 {
		c.Fairness = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 50 * time.Millisecond
	}
	return c
}

// Stats is a point-in-time snapshot of precomputer throughput.
type Stats struct {
	Enqueued  int64
	Completed int64
	Failed    int64
	Dropped   int64
	Queue     priority.Stats
}

// Precomputer warms the response cache off the hot path. Imminent jobs
// (a call just ended, the caller will likely ring again) go on the high
// queue; speculative warmups go on the low queue and may be dropped
// under load.
type Precomputer struct {
	cfg       Config
	predictor *predict.Predictor
	cache     *cache.SmartCache
	queue     *priority.Queue[*Job]
	retry     resilience.RetryPolicy
	log       *slog.Logger

	enqueued  int64
	completed int64
	failed    int64
	dropped   int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func New(cfg Config, predictor *predict.Predictor, store *cache.SmartCache, log *slog.Logger) *Precomputer {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Precomputer{
		cfg:       cfg,
		predictor: predictor,
		cache:     store,
		queue:     priority.New[*Job](cfg.QueueHigh, cfg.QueueLow, cfg.Fairness),
		retry:     resilience.NewRetryPolicy(cfg.MaxRetries, cfg.Backoff),
		log:       logging.NewComponentLogger(log, "precompute"),
	}
}

// Start launches the worker pool. Workers exit when Stop is called.
func (p *Precomputer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.log.Info("precomputer started", "workers", p.cfg.Workers)
}

// Stop closes the queue and waits for in-flight jobs to finish.
// The worker context is canceled only after the drain so queued jobs
// still warm the cache instead of failing on a dead context.
func (p *Precomputer) Stop() {
	p.stopOnce.Do(func() {
		p.queue.Close()
		p.wg.Wait()
		if p.cancel != nil {
			p.cancel()
		}
		p.log.Info("precomputer stopped",
			"completed", atomic.LoadInt64(&p.completed),
			"failed", atomic.LoadInt64(&p.failed),
			"dropped", atomic.LoadInt64(&p.dropped))
	})
}

// Schedule enqueues a warmup job. Urgent jobs survive load; speculative
// jobs are dropped when the low queue is full. Returns false on drop.
func (p *Precomputer) Schedule(job Job, urgent bool) bool {
	job.State = JobPending
	job.EnqueuedAt = time.Now()
	j := &job

	var ok bool
	if urgent {
		ok = p.queue.TryPushHigh(j)
	} else {
		ok = p.queue.TryPushLow(j)
	}
	if !ok {
		atomic.AddInt64(&p.dropped, 1)
		p.log.Debug("precompute job dropped", "user_id", job.UserID, "urgent", urgent)
		return false
	}
	atomic.AddInt64(&p.enqueued, 1)
	return true
}

func (p *Precomputer) Snapshot() Stats {
	return Stats{
		Enqueued:  atomic.LoadInt64(&p.enqueued),
		Completed: atomic.LoadInt64(&p.completed),
		Failed:    atomic.LoadInt64(&p.failed),
		Dropped:   atomic.LoadInt64(&p.dropped),
		Queue:     p.queue.Stats(),
	}
}

func (p *Precomputer) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		job, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.process(ctx, job)
	}
}

func (p *Precomputer) process(ctx context.Context, job *Job) {
	job.State = JobProcessing
	err := p.retry.Do(func() error {
		job.Attempts++
		return p.warm(ctx, job)
	})
	if err != nil {
		job.State = JobFailed
		atomic.AddInt64(&p.failed, 1)
		p.log.Warn("precompute job failed",
			"user_id", job.UserID, "attempts", job.Attempts, "error", err)
		return
	}
	job.State = JobCompleted
	atomic.AddInt64(&p.completed, 1)
}

func (p *Precomputer) warm(ctx context.Context, job *Job) error {
	entry, ok := p.predictor.Precompute(job.UserID, job.LastIntents, job.Profile)
	if !ok {
		return nil
	}
	p.cache.Warmup(ctx, []cache.Entry{entry})
	return ctx.Err()
}
