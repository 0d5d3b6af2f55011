package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	base := errors.New("backing store down")
	err := Wrap(base, ReasonCacheBackend)
	if Reason(err) != ReasonCacheBackend {
		t.Fatalf("reason = %s, want %s", Reason(err), ReasonCacheBackend)
	}
	if !errors.Is(err, base) {
		t.Fatalf("wrapped error lost the cause")
	}

	// Wrapping again must not replace the original reason.
	again := Wrap(fmt.Errorf("outer: %w", err), ReasonPredictFailed)
	if Reason(again) != ReasonCacheBackend {
		t.Fatalf("reason overwritten on rewrap: %s", Reason(again))
	}
}

func TestPublic(t *testing.T) {
	if !Public(New(ReasonContextNotFound)) {
		t.Fatalf("context_not_found should be public")
	}
	if Public(New(ReasonClassifyFailed)) {
		t.Fatalf("classify_failed must degrade, not propagate")
	}
	if Public(nil) {
		t.Fatalf("nil error is not public")
	}
}
