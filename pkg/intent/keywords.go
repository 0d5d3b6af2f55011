package intent

// keyword carries a per-keyword weight inside its category set.
type keyword struct {
	term   string
	weight float64
}

// Category keyword sets. Calls screened by this system are predominantly
// Mandarin with occasional English, so both are covered. Weights favor
// terms that rarely appear outside their category.
var categoryKeywords = map[string][]keyword{
	CategorySalesCall: {
		{"推荐", 1.0},
		{"优惠", 1.0},
		{"促销", 1.2},
		{"活动", 0.8},
		{"产品", 0.8},
		{"客服", 0.8},
		{"了解一下", 0.8},
		{"promotion", 1.0},
		{"discount", 1.0},
		{"special offer", 1.2},
	},
	CategoryLoanOffer: {
		{"贷款", 1.4},
		{"信用卡", 1.2},
		{"银行", 1.0},
		{"利息", 1.2},
		{"额度", 1.2},
		{"放款", 1.4},
		{"低息", 1.4},
		{"loan", 1.4},
		{"credit card", 1.2},
		{"interest rate", 1.0},
	},
	CategoryInvestmentPitch: {
		{"投资", 1.4},
		{"理财", 1.4},
		{"股票", 1.2},
		{"基金", 1.2},
		{"收益", 1.0},
		{"回报", 1.0},
		{"稳赚", 1.6},
		{"investment", 1.4},
		{"stocks", 1.2},
		{"returns", 0.8},
	},
	CategorySpam: {
		{"中奖", 1.6},
		{"免费领取", 1.4},
		{"点击", 1.0},
		{"退订", 1.2},
		{"verification code", 1.2},
		{"prize", 1.4},
		{"winner", 1.4},
		{"free", 0.8},
	},
}

// subCategories gives a finer label when specific markers appear.
var subCategories = map[string][]keyword{
	CategoryLoanOffer:       {{"信用卡", 0}, {"credit card", 0}},
	CategoryInvestmentPitch: {{"股票", 0}, {"stocks", 0}},
}

var subCategoryLabel = map[string]string{
	CategoryLoanOffer:       "credit_card",
	CategoryInvestmentPitch: "securities",
}
