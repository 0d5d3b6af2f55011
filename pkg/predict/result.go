package predict

import (
	"strings"
	"time"

	"github.com/hanifadr/callward/pkg/intent"
)

// ResponseType tells where a suggested response came from.
type ResponseType string

const (
	// ResponseTypePrecomputed means the result was served from the cache,
	// whether placed there by the live path or by the precomputer.
	ResponseTypePrecomputed ResponseType = "precomputed"
	// ResponseTypeTemplate means the response was selected from the
	// static per-personality phrasing tables.
	ResponseTypeTemplate ResponseType = "template"
	// ResponseTypeGenerated means the response was freshly produced by
	// the generator.
	ResponseTypeGenerated ResponseType = "generated"
)

// Result is an immutable prediction outcome. Cacheable results may be
// stored verbatim under their composite key.
type Result struct {
	Intent            intent.Intent
	Confidence        float64
	SuggestedResponse string
	ResponseType      ResponseType
	Cacheable         bool
	TTL               time.Duration
}

// CacheKey derives the composite cache key from the user, the most
// recent intents (up to two, oldest first) and the personality. The call
// ID is deliberately absent so identical situations across calls share
// entries.
func CacheKey(userID string, lastIntents []string, personality string) string {
	if len(lastIntents) > 2 {
		lastIntents = lastIntents[len(lastIntents)-2:]
	}
	return "predict:v1:" + userID + ":" + strings.Join(lastIntents, ",") + ":" + personality
}
