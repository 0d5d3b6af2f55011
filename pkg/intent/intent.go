package intent

// Category labels for classified caller intent.
const (
	CategorySalesCall       = "sales_call"
	CategoryLoanOffer       = "loan_offer"
	CategoryInvestmentPitch = "investment_pitch"
	CategorySpam            = "spam"
	CategoryUnknown         = "unknown"
)

// Categories lists every known non-unknown category.
var Categories = []string{CategorySalesCall, CategoryLoanOffer, CategoryInvestmentPitch, CategorySpam}

// Intent is the classification of a caller turn. Value type; recomputed
// each turn, never mutated after creation.
type Intent struct {
	Category      string
	Confidence    float64
	SubCategory   string
	EmotionalTone string
	Urgency       string
}

// Unknown is the default classification when no signal is available.
func Unknown() Intent {
	return Intent{Category: CategoryUnknown, Confidence: 0}
}
