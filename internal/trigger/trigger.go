// Package trigger decides whether a transaction should surface a
// recommendation at all.
//
// Classification is pure: cooldown throttling is the serving layer's
// job and arrives here only as an upstream precondition.
package trigger

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Thresholds for the trigger checks, in cascade order.
const (
	gapPctStrong     = 10.0 // reward gap worth naming outright
	extraMinStrong   = 0.1
	extraStandalone  = 0.5 // dollar benefit alone justifies a nudge
	largeTxnAmount   = 100.0
	gapPctLargeTxn   = 5.0
	maxConfidence    = 0.9
	idleConfidence   = 0.5
	extraConfidence  = 0.7
	largeTxnConfid   = 0.6
	baseConfidence   = 0.5
)

// Classify runs the ordered trigger checks over a reward analysis.
func Classify(analysis *domain.RewardAnalysis) domain.TriggerResult {
	result := domain.TriggerResult{
		SuggestedCardID: analysis.BestCardReward.CardID,
		ExtraReward:     analysis.ExtraRewardAmt,
	}

	switch {
	case analysis.RewardGapPct > gapPctStrong && analysis.ExtraRewardAmt > extraMinStrong:
		result.Recommend = true
		result.Confidence = baseConfidence + analysis.RewardGapPct/100
		if result.Confidence > maxConfidence {
			result.Confidence = maxConfidence
		}
		result.Reasoning = fmt.Sprintf("Found %.1f%% better reward rate", analysis.RewardGapPct)

	case analysis.ExtraRewardAmt > extraStandalone:
		result.Recommend = true
		result.Confidence = extraConfidence
		result.Reasoning = fmt.Sprintf("Potential extra $%.2f in rewards", analysis.ExtraRewardAmt)

	case analysis.TransactionAmount > largeTxnAmount && analysis.RewardGapPct > gapPctLargeTxn:
		result.Recommend = true
		result.Confidence = largeTxnConfid
		result.Reasoning = "Large transaction with better card available"

	default:
		result.Confidence = idleConfidence
		result.Reasoning = "No significant benefit found"
	}

	return result
}

// Cooldown is the canned response for users inside a cooldown window.
func Cooldown() domain.TriggerResult {
	return domain.TriggerResult{
		Recommend:  false,
		Confidence: 0,
		Reasoning:  "User in cooldown period",
	}
}
