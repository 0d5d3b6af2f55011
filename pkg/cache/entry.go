package cache

import "time"

// Priority hints for eviction and reporting.
const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
)

// Entry is one cached value with its bookkeeping. An entry is visible to
// readers only while now < Timestamp + TTL; expiry is checked on read, so
// an expired entry is logically absent even before the sweeper removes it.
type Entry struct {
	Key         string
	Value       any
	Timestamp   time.Time
	TTL         time.Duration
	AccessCount int64
	LastAccess  time.Time
	Tags        []string
	Priority    int
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.Timestamp.Add(e.TTL))
}
