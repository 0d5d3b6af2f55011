package intent

import (
	"context"
	"testing"
	"time"

	"github.com/hanifadr/callward/pkg/convo"
)

func callerTurn(text string) convo.Turn {
	return convo.Turn{Speaker: convo.SpeakerCaller, Text: text, Timestamp: time.Now()}
}

func TestClassifyBankCreditCardOpening(t *testing.T) {
	c := NewClassifier(DefaultWeights(), nil, nil)
	got := c.Classify(context.Background(), "user-1", []convo.Turn{
		callerTurn("你好，我是XX银行的客服，推荐信用卡"),
	})
	if got.Category != CategoryLoanOffer && got.Category != CategorySalesCall {
		t.Fatalf("category = %s, want loan_offer or sales_call", got.Category)
	}
	if got.Confidence < 0.3 {
		t.Fatalf("confidence = %f, want >= 0.3", got.Confidence)
	}
}

func TestClassifyNoSignal(t *testing.T) {
	c := NewClassifier(DefaultWeights(), nil, nil)
	got := c.Classify(context.Background(), "user-1", []convo.Turn{
		callerTurn("呃，那个，请问你是谁"),
	})
	if got.Category != CategoryUnknown || got.Confidence != 0 {
		t.Fatalf("expected unknown/0, got %s/%f", got.Category, got.Confidence)
	}
}

func TestClassifyUsesLastThreeTurnsOnly(t *testing.T) {
	c := NewClassifier(DefaultWeights(), nil, nil)
	turns := []convo.Turn{
		callerTurn("投资理财稳赚"),
		callerTurn("第一句"),
		callerTurn("第二句"),
		callerTurn("第三句"),
	}
	got := c.Classify(context.Background(), "user-1", turns)
	if got.Category == CategoryInvestmentPitch {
		t.Fatalf("turn outside the 3-turn window influenced classification")
	}
}

func TestPatternSignalBreaksWeakKeywords(t *testing.T) {
	store := NewPatternStore()
	for i := 0; i < 5; i++ {
		store.Record("user-1", CategoryInvestmentPitch, false)
	}
	c := NewClassifier(DefaultWeights(), store, nil)
	got := c.Classify(context.Background(), "user-1", []convo.Turn{
		callerTurn("有个收益的事情跟你说"),
	})
	if got.Category != CategoryInvestmentPitch {
		t.Fatalf("category = %s, want investment_pitch via pattern history", got.Category)
	}
	// 0.6*kw + 0.4*1.0 must beat kw-only categories.
	if got.Confidence <= 0.4 {
		t.Fatalf("confidence = %f, want > 0.4", got.Confidence)
	}
}

func TestSpamBonusAndCap(t *testing.T) {
	store := NewPatternStore()
	for i := 0; i < 10; i++ {
		store.Record("user-1", CategoryLoanOffer, true)
	}
	c := NewClassifier(DefaultWeights(), store, nil)
	got := c.Classify(context.Background(), "user-1", []convo.Turn{
		callerTurn("低息贷款，放款快，额度高，利息低，贷款贷款"),
	})
	if got.Category != CategoryLoanOffer {
		t.Fatalf("category = %s, want loan_offer", got.Category)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("confidence = %f, want capped at 0.95", got.Confidence)
	}
}

func TestRepeatedPitchKeepsStrongestKeywordCategory(t *testing.T) {
	c := NewClassifier(DefaultWeights(), nil, nil)
	pitch := "我们银行有低息贷款产品，利率很优惠，推荐您办理"
	var turns []convo.Turn
	for i := 0; i < 3; i++ {
		turns = append(turns, callerTurn(pitch))
		// Anonymous caller, no pattern history: repeated pitches
		// saturate the clamp, raw counts must still decide.
		got := c.Classify(context.Background(), "", turns)
		if got.Category != CategoryLoanOffer {
			t.Fatalf("turn %d: category = %s, want loan_offer", i+1, got.Category)
		}
	}
}

func TestSubCategory(t *testing.T) {
	c := NewClassifier(DefaultWeights(), nil, nil)
	got := c.Classify(context.Background(), "user-1", []convo.Turn{
		callerTurn("我们银行信用卡额度很高"),
	})
	if got.Category == CategoryLoanOffer && got.SubCategory != "credit_card" {
		t.Fatalf("subcategory = %q, want credit_card", got.SubCategory)
	}
}

func TestPatternStoreDefaults(t *testing.T) {
	store := NewPatternStore()
	cat, conf := store.Predict("nobody")
	if cat != CategoryUnknown || conf != 0 {
		t.Fatalf("empty history should predict unknown/0")
	}
	store.Record("u", CategoryUnknown, false)
	if store.Observations("u") != 0 {
		t.Fatalf("unknown outcomes must not be recorded")
	}
}
