package pipeline

import (
	"context"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/hanifadr/callward/pkg/cache"
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/emotion"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/metrics"
	"github.com/hanifadr/callward/pkg/predict"
	"github.com/hanifadr/callward/pkg/profile"
	"github.com/hanifadr/callward/pkg/providers/mock"
	"github.com/hanifadr/callward/pkg/termination"
)

type fixture struct {
	ctrl     *Controller
	obs      *metrics.MemoryObserver
	profiles *profile.MemoryStore
	wl       *profile.MemoryWhitelist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	obs := metrics.NewMemoryObserver()
	profiles := profile.NewMemoryStore()
	wl := profile.NewMemoryWhitelist()
	classifier := intent.NewClassifier(intent.DefaultWeights(), intent.NewPatternStore(), nil)
	predictor := predict.NewPredictor(predict.DefaultConfig(), classifier, cache.New(),
		mock.NewGenerator(mock.GeneratorConfig{}), nil)

	ctrl := NewController(Config{}, Deps{
		Contexts:   convo.NewManager(nil),
		Classifier: classifier,
		Analyzer:   emotion.NewAnalyzer(emotion.DefaultConfig(), nil),
		Predictor:  predictor,
		Terminator: termination.NewManager(termination.DefaultConfig(), nil),
		Profiles:   profiles,
		Whitelist:  wl,
		Observer:   obs,
	})
	return &fixture{ctrl: ctrl, obs: obs, profiles: profiles, wl: wl}
}

func (f *fixture) startCall(t *testing.T, callID, userID string) {
	t.Helper()
	if _, err := f.ctrl.StartCall(context.Background(), convo.Seed{
		CallID: callID, UserID: userID, CallerPhone: "+8613800000000",
	}); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
}

func TestPersistentLoanCallTerminatesByThirdTurn(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1", "user-1")

	loanPitch := "我们银行有低息贷款产品，利率很优惠，推荐您办理"

	r1, err := f.ctrl.ProcessTurn(context.Background(), "call-1", loanPitch, nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if r1.NextState.Stage != convo.StageIdentification {
		t.Fatalf("after turn 1 stage = %v, want identification", r1.NextState.Stage)
	}
	if r1.Intent.Category != intent.CategoryLoanOffer {
		t.Fatalf("turn 1 category = %q", r1.Intent.Category)
	}

	r2, err := f.ctrl.ProcessTurn(context.Background(), "call-1", loanPitch, nil)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if r2.NextState.Stage != convo.StageHandlingLoan {
		t.Fatalf("after turn 2 stage = %v, want handling_loan", r2.NextState.Stage)
	}

	r3, err := f.ctrl.ProcessTurn(context.Background(), "call-1", loanPitch, nil)
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if !r3.Termination.ShouldTerminate {
		t.Fatal("turn 3 should terminate")
	}
	if r3.Termination.Reason != termination.ReasonExcessivePersistence {
		t.Fatalf("reason = %q, want excessive_persistence", r3.Termination.Reason)
	}
	if !r3.NextState.Stage.Terminal() {
		t.Fatalf("stage after termination = %v, want terminal", r3.NextState.Stage)
	}
}

func TestProfileSpamHistoryFeedsClassifier(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(profile.UserProfile{
		UserID:         "user-9",
		SpamCategories: []string{intent.CategoryLoanOffer},
	})
	f.startCall(t, "call-9", "user-9")

	r, err := f.ctrl.ProcessTurn(context.Background(), "call-9", "我们银行有低息贷款产品，推荐您办理", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !f.ctrl.classifier.Patterns().SpamFlagged("user-9", intent.CategoryLoanOffer) {
		t.Fatal("profile spam history not imported into the pattern store")
	}
	if r.Intent.Category != intent.CategoryLoanOffer {
		t.Fatalf("category = %q, want loan_offer", r.Intent.Category)
	}
	// 0.6 keyword + 0.1 spam bonus beats the keyword-only score.
	if r.Intent.Confidence < 0.7 {
		t.Fatalf("confidence = %v, want >= 0.7 with spam bonus", r.Intent.Confidence)
	}
}

func TestDirectPersonalityGetsShortRejection(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(profile.UserProfile{UserID: "user-2", Personality: profile.PersonalityDirect})
	f.startCall(t, "call-2", "user-2")

	r, err := f.ctrl.ProcessTurn(context.Background(), "call-2", "你好，我是XX银行的客服，推荐信用卡", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if r.Intent.Category != intent.CategorySalesCall && r.Intent.Category != intent.CategoryLoanOffer {
		t.Fatalf("category = %q", r.Intent.Category)
	}
	if r.Intent.Confidence < 0.3 {
		t.Fatalf("confidence = %v, want >= 0.3", r.Intent.Confidence)
	}
	if n := utf8.RuneCountInString(r.Response); n == 0 || n > 20 {
		t.Fatalf("direct response length = %d runes: %q", n, r.Response)
	}
}

func TestEveryTurnGetsAResponse(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-3", "user-3")

	for i, text := range []string{"呃", "那个", "嗯嗯嗯"} {
		r, err := f.ctrl.ProcessTurn(context.Background(), "call-3", text, nil)
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if r.Response == "" {
			t.Fatalf("turn %d produced empty response", i+1)
		}
	}
}

func TestTurnCountMatchesCallerTurns(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-4", "user-4")

	const turns = 6
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.ctrl.ProcessTurn(context.Background(), "call-4", "请问你需要贷款吗", nil)
		}()
	}
	wg.Wait()

	cc, err := f.ctrl.Contexts().Get("call-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var callerTurns int
	for _, turn := range cc.History {
		if turn.Speaker == convo.SpeakerCaller {
			callerTurns++
		}
	}
	if cc.State.TurnCount != callerTurns {
		t.Fatalf("turnCount = %d, caller turns in history = %d", cc.State.TurnCount, callerTurns)
	}
	if len(cc.History) != 2*callerTurns {
		t.Fatalf("history = %d entries, want %d", len(cc.History), 2*callerTurns)
	}
}

func TestUserRequestedTerminationWinsImmediately(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-5", "user-5")

	if err := f.ctrl.RequestTermination("call-5"); err != nil {
		t.Fatalf("RequestTermination: %v", err)
	}
	r, err := f.ctrl.ProcessTurn(context.Background(), "call-5", "我们有理财产品推荐", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if r.Termination.Reason != termination.ReasonUserRequest {
		t.Fatalf("reason = %q, want user_request", r.Termination.Reason)
	}
	if r.NextState.Stage != convo.StageHangUp {
		t.Fatalf("stage = %v, want hang_up", r.NextState.Stage)
	}
}

func TestWhitelistedCallerFlagged(t *testing.T) {
	f := newFixture(t)
	f.wl.Put("+8613800000000", profile.RiskStatus{Whitelisted: true, Source: "contacts"})
	f.startCall(t, "call-6", "user-6")

	cc, err := f.ctrl.Contexts().Get("call-6")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cc.Metadata["whitelisted"] != "true" {
		t.Fatalf("expected whitelisted metadata, got %v", cc.Metadata)
	}
}

func TestEndCallArchivesContext(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-7", "user-7")
	if _, err := f.ctrl.ProcessTurn(context.Background(), "call-7", "推荐个贷款", nil); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	archived, err := f.ctrl.EndCall(context.Background(), "call-7", "completed")
	if err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if !archived.State.Stage.Terminal() {
		t.Fatalf("archived stage = %v", archived.State.Stage)
	}
	if f.ctrl.Contexts().Active() != 0 {
		t.Fatalf("expected no live contexts, got %d", f.ctrl.Contexts().Active())
	}
	if _, err := f.ctrl.ProcessTurn(context.Background(), "call-7", "还在吗", nil); err == nil {
		t.Fatal("expected error processing turn on archived call")
	}
}

func TestTurnEmitsStageEvents(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-8", "user-8")
	if _, err := f.ctrl.ProcessTurn(context.Background(), "call-8", "推荐股票投资", nil); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	for _, name := range []string{metrics.EventTurnStart, metrics.EventClassifyDone, metrics.EventPredictDone, metrics.EventTurnDone} {
		events := f.obs.Named(name)
		if len(events) != 1 {
			t.Fatalf("event %q recorded %d times, want 1", name, len(events))
		}
		if events[0].Tags["call_id"] != "call-8" {
			t.Fatalf("event %q missing call_id tag: %v", name, events[0].Tags)
		}
	}
}

func TestTurnResultCarriesResponseType(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-10", "user-10")

	r, err := f.ctrl.ProcessTurn(context.Background(), "call-10", "推荐个贷款", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	switch r.ResponseType {
	case predict.ResponseTypePrecomputed, predict.ResponseTypeTemplate, predict.ResponseTypeGenerated:
	default:
		t.Fatalf("response type = %q", r.ResponseType)
	}

	events := f.obs.Named(metrics.EventPredictDone)
	if len(events) != 1 || events[0].Tags["response_type"] != string(r.ResponseType) {
		t.Fatalf("predict_done events = %+v", events)
	}
}
