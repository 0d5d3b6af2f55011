package convo

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hanifadr/callward/pkg/errorsx"
)

// Manager owns the conversation context lifecycle. All mutation of one
// call's context goes through the per-call lock, so turn processing for a
// single call is strictly serialized while different calls stay parallel.
type Manager struct {
	mu    sync.RWMutex
	calls map[string]*callEntry

	lmu       sync.Mutex
	listeners []StageListener

	log *slog.Logger
	now func() time.Time
}

type callEntry struct {
	mu  sync.Mutex
	ctx *Context
}

func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		calls: make(map[string]*callEntry),
		log:   log,
		now:   time.Now,
	}
}

// Create opens a context for a call. It fails when a live context for the
// same callID already exists.
func (m *Manager) Create(seed Seed) (*Context, error) {
	if seed.CallID == "" {
		return nil, errorsx.Wrap(errors.New("empty call id"), errorsx.ReasonBadInput)
	}
	now := m.now()
	ctx := &Context{
		CallID:      seed.CallID,
		UserID:      seed.UserID,
		CallerPhone: seed.CallerPhone,
		State: State{
			Stage:          StageInitial,
			UserEngagement: 0.5,
			Emotional:      EmotionalState{Current: "neutral", Trend: TrendStable},
		},
		StartTime:    now,
		LastActivity: now,
		Metadata:     make(map[string]string),
	}

	m.mu.Lock()
	if _, ok := m.calls[seed.CallID]; ok {
		m.mu.Unlock()
		return nil, errorsx.Wrap(errors.New("context already exists for "+seed.CallID), errorsx.ReasonContextExists)
	}
	m.calls[seed.CallID] = &callEntry{ctx: ctx}
	m.mu.Unlock()

	m.log.Info("context_created", "call_id", seed.CallID, "user_id", seed.UserID)
	return ctx.clone(), nil
}

// Get returns a snapshot of the context for a call.
func (m *Manager) Get(callID string) (*Context, error) {
	entry, err := m.entry(callID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ctx.clone(), nil
}

// Update applies fn to the live context under the per-call lock and
// refreshes LastActivity. Stage changes are reported to listeners after
// the lock is released.
func (m *Manager) Update(callID string, fn func(*Context) error) (*Context, error) {
	entry, err := m.entry(callID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	before := entry.ctx.State.Stage
	if err := fn(entry.ctx); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	entry.ctx.LastActivity = m.now()
	after := entry.ctx.State.Stage
	snapshot := entry.ctx.clone()
	entry.mu.Unlock()

	if before != after {
		m.notify(StageChange{
			CallID:    callID,
			FromStage: before,
			ToStage:   after,
			Timestamp: snapshot.LastActivity,
			Reason:    "update",
		})
	}
	return snapshot, nil
}

// History returns one page of turns, oldest first. Pages are 1-based.
func (m *Manager) History(callID string, page, limit int) ([]Turn, int, error) {
	entry, err := m.entry(callID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	total := len(entry.ctx.History)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return append([]Turn(nil), entry.ctx.History[start:end]...), total, nil
}

// Archive removes a terminal-stage context from the live set and returns
// it. Deletion/retention of the archived value is the caller's policy.
func (m *Manager) Archive(callID string) (*Context, error) {
	entry, err := m.entry(callID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if !entry.ctx.State.Stage.Terminal() {
		entry.mu.Unlock()
		return nil, errorsx.Wrap(errors.New("call "+callID+" not in a terminal stage"), errorsx.ReasonBadInput)
	}
	snapshot := entry.ctx.clone()
	entry.mu.Unlock()

	m.mu.Lock()
	delete(m.calls, callID)
	m.mu.Unlock()

	m.log.Info("context_archived", "call_id", callID, "turns", snapshot.State.TurnCount)
	return snapshot, nil
}

// IdleCalls lists calls whose last activity is before the cutoff.
func (m *Manager) IdleCalls(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []string
	for id, entry := range m.calls {
		entry.mu.Lock()
		if entry.ctx.LastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
		entry.mu.Unlock()
	}
	return idle
}

// ActiveCalls lists the IDs of live contexts.
func (m *Manager) ActiveCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.calls))
	for id := range m.calls {
		ids = append(ids, id)
	}
	return ids
}

// Active returns the number of live contexts.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// AddStageListener registers a listener for stage change events.
func (m *Manager) AddStageListener(l StageListener) {
	m.lmu.Lock()
	m.listeners = append(m.listeners, l)
	m.lmu.Unlock()
}

func (m *Manager) entry(callID string) (*callEntry, error) {
	m.mu.RLock()
	entry, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return nil, errorsx.Wrap(errors.New("no context for call "+callID), errorsx.ReasonContextNotFound)
	}
	return entry, nil
}

func (m *Manager) notify(ev StageChange) {
	m.lmu.Lock()
	listeners := make([]StageListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.lmu.Unlock()
	for _, l := range listeners {
		l.OnStageChange(ev)
	}
}
