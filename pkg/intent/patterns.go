package intent

import (
	"sync"
	"time"
)

// PatternStore keeps per-user historical intent observations. It is the
// learned half of the classifier blend and is shared across calls, so all
// access is concurrency-safe.
type PatternStore struct {
	mu    sync.RWMutex
	users map[string]*userPattern
}

type userPattern struct {
	counts      map[string]int
	total       int
	spamFlagged map[string]bool
	lastSeen    time.Time
}

func NewPatternStore() *PatternStore {
	return &PatternStore{users: make(map[string]*userPattern)}
}

// Predict returns the caller's historically dominant category for this
// user with a frequency-based confidence. Users without history get
// unknown with zero confidence.
func (s *PatternStore) Predict(userID string) (string, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok || p.total == 0 {
		return CategoryUnknown, 0
	}
	best := CategoryUnknown
	bestCount := 0
	for cat, n := range p.counts {
		if n > bestCount {
			best, bestCount = cat, n
		}
	}
	return best, float64(bestCount) / float64(p.total)
}

// Record adds one observed classification outcome for a user.
func (s *PatternStore) Record(userID, category string, flaggedSpam bool) {
	if userID == "" || category == "" || category == CategoryUnknown {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[userID]
	if !ok {
		p = &userPattern{counts: make(map[string]int), spamFlagged: make(map[string]bool)}
		s.users[userID] = p
	}
	p.counts[category]++
	p.total++
	if flaggedSpam {
		p.spamFlagged[category] = true
	}
	p.lastSeen = time.Now()
}

// SpamFlagged reports whether the user already marked this category as spam.
func (s *PatternStore) SpamFlagged(userID, category string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return false
	}
	return p.spamFlagged[category]
}

// FlagSpam marks a category as spam for the user without recording an
// observation, used when importing profile history.
func (s *PatternStore) FlagSpam(userID string, categories ...string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[userID]
	if !ok {
		p = &userPattern{counts: make(map[string]int), spamFlagged: make(map[string]bool)}
		s.users[userID] = p
	}
	for _, cat := range categories {
		if cat != "" {
			p.spamFlagged[cat] = true
		}
	}
}

// Observations returns the total recorded outcomes for a user.
func (s *PatternStore) Observations(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.users[userID]; ok {
		return p.total
	}
	return 0
}
