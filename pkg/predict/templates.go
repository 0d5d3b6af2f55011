package predict

import (
	"github.com/hanifadr/callward/pkg/convo"
	"github.com/hanifadr/callward/pkg/intent"
	"github.com/hanifadr/callward/pkg/profile"
)

// Static phrasing tables, one per personality and intent category.
// Direct phrasings stay short (at most 20 runes) because that style is
// meant to shut the pitch down, not converse.
var templates = map[string]map[string][]string{
	profile.PersonalityPolite: {
		intent.CategorySalesCall: {
			"谢谢你的介绍，不过我们真的不需要，再见。",
			"感谢来电，但我没有这方面的需要。",
		},
		intent.CategoryLoanOffer: {
			"谢谢，我暂时没有贷款需求，再见。",
			"感谢好意，我不需要办理贷款或信用卡。",
		},
		intent.CategoryInvestmentPitch: {
			"谢谢，我对理财产品不感兴趣，再见。",
			"感谢介绍，不过我不做这类投资。",
		},
		intent.CategorySpam: {
			"不好意思，我不需要这些服务，再见。",
		},
		intent.CategoryUnknown: {
			"您好，请问您是哪位？有什么事吗？",
		},
	},
	profile.PersonalityDirect: {
		intent.CategorySalesCall: {
			"不需要，别再打了。",
			"没兴趣，再见。",
		},
		intent.CategoryLoanOffer: {
			"不需要贷款，再见。",
			"不办卡不贷款，别打了。",
		},
		intent.CategoryInvestmentPitch: {
			"不投资，别打了。",
		},
		intent.CategorySpam: {
			"别再发这些了，再见。",
		},
		intent.CategoryUnknown: {
			"你是谁？有什么事？",
		},
	},
	profile.PersonalityHumorous: {
		intent.CategorySalesCall: {
			"我穷得连优惠都买不起，饶了我吧。",
		},
		intent.CategoryLoanOffer: {
			"我这信用，银行见了都摇头，不用了。",
		},
		intent.CategoryInvestmentPitch: {
			"我的钱包比脸还干净，没法投资啦。",
		},
		intent.CategorySpam: {
			"中奖这种好事，还是留给别人吧。",
		},
		intent.CategoryUnknown: {
			"猜猜我是谁?不如先说你是谁吧。",
		},
	},
	profile.PersonalityProfessional: {
		intent.CategorySalesCall: {
			"我们暂无相关采购计划，请勿再来电。",
		},
		intent.CategoryLoanOffer: {
			"本人无融资需求，请将号码移出名单。",
		},
		intent.CategoryInvestmentPitch: {
			"本人不参与任何投资推介，请勿再来电。",
		},
		intent.CategorySpam: {
			"请立即停止向本号码发送营销信息。",
		},
		intent.CategoryUnknown: {
			"请说明您的单位和来电事由。",
		},
	},
}

// Escalation phrasings once the call has moved past handling.
var stageTemplates = map[string]map[convo.Stage]string{
	profile.PersonalityPolite: {
		convo.StageFirmRejection: "我已经说过不需要了，请不要再打来了。",
		convo.StageFinalWarning:  "请立即停止来电，否则我只能挂断了。",
	},
	profile.PersonalityDirect: {
		convo.StageFirmRejection: "说了不需要，别再打。",
		convo.StageFinalWarning:  "再打就投诉你，挂了。",
	},
	profile.PersonalityHumorous: {
		convo.StageFirmRejection: "都说到第三遍了，换个剧本吧?",
		convo.StageFinalWarning:  "再聊要收咨询费了，再见。",
	},
	profile.PersonalityProfessional: {
		convo.StageFirmRejection: "已明确拒绝，请将本号码加入免打扰名单。",
		convo.StageFinalWarning:  "若再来电，本人将向有关部门投诉。",
	},
}

// templateFor picks a phrasing for the personality, category and stage.
// Selection is deterministic in the turn count so an unchanged context
// yields an identical response.
func templateFor(personality, category string, stage convo.Stage, turnCount int) (string, bool) {
	if byStage, ok := stageTemplates[personality]; ok {
		if text, ok := byStage[stage]; ok {
			return text, true
		}
	}
	byCategory, ok := templates[personality]
	if !ok {
		return "", false
	}
	variants, ok := byCategory[category]
	if !ok || len(variants) == 0 {
		variants, ok = byCategory[intent.CategoryUnknown]
		if !ok || len(variants) == 0 {
			return "", false
		}
	}
	if turnCount < 0 {
		turnCount = 0
	}
	return variants[turnCount%len(variants)], true
}
