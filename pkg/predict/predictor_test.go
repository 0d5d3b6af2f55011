package predict

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/profile"
)

func testContext(userID string, turns ...convo.Turn) *convo.Context {
	return &convo.Context{
		CallID:  "call-1",
		UserID:  userID,
		History: turns,
		State:   convo.State{Stage: convo.StageIdentification, TurnCount: len(turns)},
	}
}

func loanTurn(text string) convo.Turn {
	return convo.Turn{Speaker: convo.SpeakerCaller, Text: text, Timestamp: time.Now(), Intent: intent.CategoryLoanOffer}
}

func TestDirectRejectionIsShort(t *testing.T) {
	p := NewPredictor(DefaultConfig(), nil, nil, nil, nil)
	ctx := testContext("u1", convo.Turn{
		Speaker: convo.SpeakerCaller,
		Text:    "你好，我是XX银行的客服，推荐信用卡",
	})
	got := p.Predict(context.Background(), ctx, profile.UserProfile{Personality: profile.PersonalityDirect}, intent.Intent{})
	if got.SuggestedResponse == "" {
		t.Fatalf("empty response")
	}
	if n := utf8.RuneCountInString(got.SuggestedResponse); n > 20 {
		t.Fatalf("direct response too long: %d runes (%q)", n, got.SuggestedResponse)
	}
	if got.Intent.Category != intent.CategoryLoanOffer && got.Intent.Category != intent.CategorySalesCall {
		t.Fatalf("intent = %s", got.Intent.Category)
	}
	if got.Intent.Confidence < 0.3 {
		t.Fatalf("confidence = %f, want >= 0.3", got.Intent.Confidence)
	}
}

func TestPredictIdempotentAndCached(t *testing.T) {
	c := cache.New()
	p := NewPredictor(DefaultConfig(), nil, c, nil, nil)
	ctx := testContext("u1", loanTurn("需要贷款吗，利息很低"))
	prof := profile.UserProfile{Personality: profile.PersonalityPolite}

	first := p.Predict(context.Background(), ctx, prof, intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.8})
	if first.ResponseType != ResponseTypeTemplate || !first.Cacheable {
		t.Fatalf("first prediction: %+v", first)
	}

	second := p.Predict(context.Background(), ctx, prof, intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.8})
	if second.SuggestedResponse != first.SuggestedResponse {
		t.Fatalf("responses differ: %q vs %q", first.SuggestedResponse, second.SuggestedResponse)
	}
	if second.ResponseType != ResponseTypePrecomputed {
		t.Fatalf("second call type = %s, want precomputed", second.ResponseType)
	}
}

func TestCacheKeySharedAcrossCalls(t *testing.T) {
	c := cache.New()
	p := NewPredictor(DefaultConfig(), nil, c, nil, nil)
	prof := profile.UserProfile{Personality: profile.PersonalityDirect}
	cur := intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.9}

	callA := testContext("u1", loanTurn("贷款吗"))
	callA.CallID = "call-a"
	p.Predict(context.Background(), callA, prof, cur)

	callB := testContext("u1", loanTurn("贷款吗"))
	callB.CallID = "call-b"
	got := p.Predict(context.Background(), callB, prof, cur)
	if got.ResponseType != ResponseTypePrecomputed {
		t.Fatalf("second call first lookup type = %s, want precomputed", got.ResponseType)
	}
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }
func (failingGenerator) Generate(context.Context, llm.Prompt) (llm.Reply, error) {
	return llm.Reply{}, errors.New("model unavailable")
}

func TestGenerationFailureFallsBack(t *testing.T) {
	p := NewPredictor(DefaultConfig(), nil, nil, failingGenerator{}, nil)
	ctx := testContext("u1", convo.Turn{Speaker: convo.SpeakerCaller, Text: "喂？"})
	got := p.Predict(context.Background(), ctx, profile.UserProfile{Personality: profile.PersonalityPolite}, intent.Unknown())
	if got.SuggestedResponse == "" {
		t.Fatalf("fallback must produce a response")
	}
	if got.Confidence >= 0.5 {
		t.Fatalf("fallback confidence = %f, want < 0.5", got.Confidence)
	}
	if got.Cacheable {
		t.Fatalf("fallback must not be cached")
	}
}

type canned struct{ text string }

func (c canned) Name() string { return "canned" }
func (c canned) Generate(context.Context, llm.Prompt) (llm.Reply, error) {
	return llm.Reply{Text: c.text}, nil
}

func TestLowConfidenceUsesGenerator(t *testing.T) {
	p := NewPredictor(DefaultConfig(), nil, nil, canned{text: "请问您找谁？"}, nil)
	ctx := testContext("u1", convo.Turn{Speaker: convo.SpeakerCaller, Text: "喂喂喂"})
	got := p.Predict(context.Background(), ctx, profile.UserProfile{Personality: profile.PersonalityPolite}, intent.Unknown())
	if got.ResponseType != ResponseTypeGenerated {
		t.Fatalf("type = %s, want generated", got.ResponseType)
	}
	if got.Cacheable {
		t.Fatalf("generated responses are not cacheable")
	}
}

func TestStageEscalationPhrasing(t *testing.T) {
	p := NewPredictor(DefaultConfig(), nil, nil, nil, nil)
	ctx := testContext("u1", loanTurn("再考虑下贷款吧"))
	ctx.State.Stage = convo.StageFinalWarning
	got := p.Predict(context.Background(), ctx, profile.UserProfile{Personality: profile.PersonalityDirect}, intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.9})
	want, _ := templateFor(profile.PersonalityDirect, intent.CategoryLoanOffer, convo.StageFinalWarning, ctx.State.TurnCount)
	if got.SuggestedResponse != want {
		t.Fatalf("response %q, want final-warning phrasing %q", got.SuggestedResponse, want)
	}
}

func TestPrecomputeMatchesLiveKey(t *testing.T) {
	c := cache.New()
	p := NewPredictor(DefaultConfig(), nil, c, nil, nil)
	prof := profile.UserProfile{Personality: profile.PersonalityPolite}

	entry, ok := p.Precompute("u1", []string{intent.CategoryLoanOffer}, prof)
	if !ok {
		t.Fatalf("precompute declined")
	}
	c.Warmup(context.Background(), []cache.Entry{entry})

	ctx := testContext("u1", loanTurn("贷款了解一下"))
	got := p.Predict(context.Background(), ctx, prof, intent.Intent{Category: intent.CategoryLoanOffer, Confidence: 0.9})
	if got.ResponseType != ResponseTypePrecomputed {
		t.Fatalf("precomputed entry not reused on live path, got %s", got.ResponseType)
	}
}

func TestUpdateBehaviorPatternAsync(t *testing.T) {
	classifier := intent.NewClassifier(intent.DefaultWeights(), intent.NewPatternStore(), nil)
	p := NewPredictor(DefaultConfig(), classifier, nil, nil, nil)
	p.UpdateBehaviorPattern("u1", intent.CategorySalesCall, true)

	deadline := time.After(time.Second)
	for classifier.Patterns().Observations("u1") == 0 {
		select {
		case <-deadline:
			t.Fatalf("pattern update never landed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
