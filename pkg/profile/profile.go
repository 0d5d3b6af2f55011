package profile

import (
	"context"
	"sync"
)

// Personality selects the response style for a user.
const (
	PersonalityPolite       = "polite"
	PersonalityDirect       = "direct"
	PersonalityHumorous     = "humorous"
	PersonalityProfessional = "professional"
)

// UserProfile is read-mostly configuration supplied by the profile store.
// This core consumes it but does not own it.
type UserProfile struct {
	UserID         string
	Personality    string
	SpeechStyle    string
	SpamCategories []string
	MaxTurns       int
	MaxDurationSec int
}

// Normalized returns the profile with an explicit personality.
func (p UserProfile) Normalized() UserProfile {
	switch p.Personality {
	case PersonalityPolite, PersonalityDirect, PersonalityHumorous, PersonalityProfessional:
	default:
		p.Personality = PersonalityPolite
	}
	return p
}

// Store is the read-only user/profile collaborator.
type Store interface {
	Lookup(ctx context.Context, userID string) (UserProfile, bool, error)
}

// RiskStatus is the whitelist/risk collaborator's verdict on a caller.
type RiskStatus struct {
	Whitelisted bool
	RiskScore   float64 // [0,1], higher is riskier
	Source      string
}

// WhitelistService is the read-only caller risk collaborator.
type WhitelistService interface {
	Status(ctx context.Context, phone string) (RiskStatus, error)
}

// MemoryStore is an in-process Store for composition and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]UserProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]UserProfile)}
}

func (s *MemoryStore) Put(p UserProfile) {
	s.mu.Lock()
	s.profiles[p.UserID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) Lookup(_ context.Context, userID string) (UserProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok, nil
}

// MemoryWhitelist is an in-process WhitelistService.
type MemoryWhitelist struct {
	mu      sync.RWMutex
	entries map[string]RiskStatus
}

func NewMemoryWhitelist() *MemoryWhitelist {
	return &MemoryWhitelist{entries: make(map[string]RiskStatus)}
}

func (w *MemoryWhitelist) Put(phone string, status RiskStatus) {
	w.mu.Lock()
	w.entries[phone] = status
	w.mu.Unlock()
}

func (w *MemoryWhitelist) Status(_ context.Context, phone string) (RiskStatus, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if status, ok := w.entries[phone]; ok {
		return status, nil
	}
	return RiskStatus{Source: "default"}, nil
}
