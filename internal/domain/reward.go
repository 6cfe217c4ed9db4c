package domain

// CardReward is the computed reward for a single (card, transaction) pair.
// Derived per request, never persisted.
type CardReward struct {
	CardID   string `json:"cardId"`
	CardName string `json:"cardName"`

	BaseRate       float64 `json:"baseRate"`
	BonusRate      float64 `json:"bonusRate"`
	ApplicableRate float64 `json:"applicableRate"`

	// RewardUnits is the raw earn: points/miles for unit cards, dollars
	// for cashback.
	RewardUnits float64 `json:"rewardUnits"`

	// RewardAmount is the cash-equivalent dollar value of the reward.
	RewardAmount float64 `json:"rewardAmount"`

	AnnualFee float64 `json:"annualFee"`

	// NetBenefit is RewardAmount minus an amortized share of the annual
	// fee. Reserved for portfolio-level comparisons; transaction ranking
	// orders by RewardAmount.
	NetBenefit float64 `json:"netBenefit"`

	PointValueCent float64 `json:"pointValueCent"`
	RewardType     string  `json:"rewardType"`
}

// RewardAnalysis is the cross-card comparison for one transaction.
type RewardAnalysis struct {
	TransactionAmount   float64 `json:"transactionAmount"`
	TransactionCategory string  `json:"transactionCategory"`

	// CurrentCardReward is nil when the transaction's current card does
	// not resolve to a catalog entry.
	CurrentCardReward *CardReward `json:"currentCardReward,omitempty"`
	BestCardReward    CardReward  `json:"bestCardReward"`

	BestRate float64 `json:"bestRate"`

	// RewardGapPct is the percentage gap between the best and current
	// cards' pure rewards (fee amortization excluded). 0 when no current
	// card resolves or the current pure reward is 0.
	RewardGapPct float64 `json:"rewardGapPct"`

	// ExtraRewardAmt is the dollar value the user leaves on the table.
	// With no current card it is the best card's full reward.
	ExtraRewardAmt float64 `json:"extraRewardAmt"`

	// NumBetterCards counts cards whose RewardAmount strictly exceeds
	// the current card's (all cards when no current card resolves).
	NumBetterCards int `json:"numBetterCards"`

	// AllCardRewards is the full list, descending by RewardAmount.
	AllCardRewards []CardReward `json:"allCardRewards"`
}
