package termination

import (
	"testing"
	"time"

	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/intent"
)

func callCtx(turns int, category string) *convo.Context {
	c := &convo.Context{
		CallID:       "call-1",
		StartTime:    time.Now(),
		LastActivity: time.Now(),
		Metadata:     map[string]string{},
	}
	for i := 0; i < turns; i++ {
		c.History = append(c.History, convo.Turn{
			Speaker: convo.SpeakerCaller,
			Text:    "t",
			Intent:  category,
		})
		c.State.TurnCount++
	}
	return c
}

func TestPersistenceTriggersAtThreshold(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	d := m.ShouldTerminate(callCtx(2, intent.CategoryLoanOffer), "")
	if d.ShouldTerminate {
		t.Fatalf("terminated below the persistence threshold")
	}

	d = m.ShouldTerminate(callCtx(3, intent.CategoryLoanOffer), "")
	if !d.ShouldTerminate || d.Reason != ReasonExcessivePersistence {
		t.Fatalf("decision = %+v, want excessive_persistence", d)
	}
}

func TestMaxDurationSticky(t *testing.T) {
	m := NewManager(Config{MaxDuration: time.Minute}, nil)
	c := callCtx(1, intent.CategoryUnknown)
	c.StartTime = time.Now().Add(-2 * time.Minute)

	first := m.ShouldTerminate(c, "")
	if !first.ShouldTerminate || first.Reason != ReasonMaxDuration {
		t.Fatalf("decision = %+v, want max_duration", first)
	}
	// Later turns in the same call keep terminating for the same reason.
	c.State.TurnCount++
	second := m.ShouldTerminate(c, "")
	if !second.ShouldTerminate || second.Reason != ReasonMaxDuration {
		t.Fatalf("max_duration not sticky: %+v", second)
	}
}

func TestUserRequestBeatsEverything(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	c := callCtx(5, intent.CategoryLoanOffer)
	c.Metadata["user_request"] = "true"
	d := m.ShouldTerminate(c, "")
	if d.Reason != ReasonUserRequest || d.Urgency != UrgencyHigh {
		t.Fatalf("decision = %+v, want user_request/high", d)
	}
}

func TestFrustrationReason(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	c := callCtx(1, intent.CategoryUnknown)
	c.State.Emotional.Trend = convo.TrendDegrading
	c.State.Emotional.AvgValence = -0.7
	d := m.ShouldTerminate(c, "")
	if !d.ShouldTerminate || d.Reason != ReasonHighFrustration {
		t.Fatalf("decision = %+v, want high_frustration", d)
	}
}

func TestScoreThresholdReason(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	c := callCtx(1, intent.CategoryUnknown)
	c.State.TerminationScore = 2.0
	d := m.ShouldTerminate(c, "")
	if !d.ShouldTerminate || d.Reason != ReasonIneffectiveResponses {
		t.Fatalf("decision = %+v, want ineffective_responses", d)
	}
}

func TestAccrueMonotonic(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	state := &convo.State{LastIntent: intent.CategoryLoanOffer, UserEngagement: 0.5}

	prev := state.TerminationScore
	for i := 0; i < 5; i++ {
		m.Accrue(state, intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.9})
		if state.TerminationScore < prev {
			t.Fatalf("termination score decreased: %f -> %f", prev, state.TerminationScore)
		}
		prev = state.TerminationScore
	}
	if state.TerminationScore == 0 {
		t.Fatalf("persistence did not accrue")
	}
	if state.UserEngagement >= 0.5 {
		t.Fatalf("engagement should decay under persistence")
	}
}

func TestRunBrokenByCategorySwitch(t *testing.T) {
	c := callCtx(2, intent.CategoryLoanOffer)
	c.History = append(c.History, convo.Turn{Speaker: convo.SpeakerCaller, Intent: intent.CategorySalesCall})
	c.State.TurnCount++
	c.History = append(c.History, convo.Turn{Speaker: convo.SpeakerCaller, Intent: intent.CategorySalesCall})
	c.State.TurnCount++
	if run := consecutiveSameCategory(c); run != 2 {
		t.Fatalf("run = %d, want 2", run)
	}
}
