// Package reward computes cash-equivalent rewards per card and the
// cross-card gap analysis for a transaction.
//
// Everything here is pure arithmetic over the immutable catalog: no I/O,
// no randomness, no shared state. Concurrent calls need no coordination.
package reward

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultBaselineMonthlySpend normalizes annual fee amortization when no
// baseline is configured.
const DefaultBaselineMonthlySpend = 1000.0

// Calculator scores transactions against the card catalog.
type Calculator struct {
	catalog *catalog.Catalog

	// baselineMonthlySpend drives the amortized annual-fee share in
	// NetBenefit. Amount-independent so a single large transaction is
	// not penalized disproportionately.
	baselineMonthlySpend float64
}

// NewCalculator creates a calculator over the given catalog.
// baselineMonthlySpend <= 0 falls back to the default.
func NewCalculator(cat *catalog.Catalog, baselineMonthlySpend float64) *Calculator {
	if baselineMonthlySpend <= 0 {
		baselineMonthlySpend = DefaultBaselineMonthlySpend
	}
	return &Calculator{
		catalog:              cat,
		baselineMonthlySpend: baselineMonthlySpend,
	}
}

// RateForCategory returns the card's reward rate for a category: the
// bonus rate on an exact match, honoring the online_shopping→shopping
// alias and the generic rotating key, otherwise the base rate.
func RateForCategory(card *domain.Card, category string) float64 {
	if rate, ok := card.BonusCategories[category]; ok {
		return rate
	}
	if category == "online_shopping" {
		if rate, ok := card.BonusCategories["shopping"]; ok {
			return rate
		}
	}
	return card.BaseRatePct
}

// RewardFor computes the reward a card earns on a transaction.
func (c *Calculator) RewardFor(card *domain.Card, amount float64, category string) domain.CardReward {
	baseRate := card.BaseRatePct
	bonusRate := RateForCategory(card, category)

	// Bonus categories never pay less than base.
	applicableRate := bonusRate
	if baseRate > applicableRate {
		applicableRate = baseRate
	}

	// Raw earn: units per dollar for points/miles, percent for cashback.
	var units float64
	if card.EarnsUnits() {
		units = amount * applicableRate
	} else {
		units = amount * applicableRate / 100
	}

	// Per-period bonus cap. The excess above the cap earns at the base
	// rate instead; cumulative spend tracking belongs upstream, callers
	// supply already-capped amounts when period tracking is needed.
	if card.BonusCapAmt > 0 && bonusRate > baseRate {
		maxBonusUnits := card.BonusCapAmt * bonusRate / 100
		if units > maxBonusUnits {
			excess := units - maxBonusUnits
			units = maxBonusUnits + excess*baseRate/bonusRate
		}
	}

	rewardAmount := units * card.PointValueCent / 100

	// Amortize the annual fee over an estimated transaction count
	// derived from the baseline monthly spend.
	annualTxns := 1.0
	if amount > 0 {
		annualTxns = 12 * c.baselineMonthlySpend / amount
	}
	feeShare := 0.0
	if annualTxns > 0 {
		feeShare = card.AnnualFee / annualTxns
	}

	return domain.CardReward{
		CardID:         card.ID,
		CardName:       card.DisplayName(),
		BaseRate:       baseRate,
		BonusRate:      bonusRate,
		ApplicableRate: applicableRate,
		RewardUnits:    units,
		RewardAmount:   rewardAmount,
		AnnualFee:      card.AnnualFee,
		NetBenefit:     rewardAmount - feeShare,
		PointValueCent: card.PointValueCent,
		RewardType:     card.RewardType,
	}
}

// AnalyzeTransaction computes rewards for every catalog card and the gap
// between the best card and the user's current card.
//
// An unknown currentCardID is treated as "no current card", not an
// error. An empty catalog is a configuration error.
func (c *Calculator) AnalyzeTransaction(amount float64, category, currentCardID string) (*domain.RewardAnalysis, error) {
	if c.catalog == nil || c.catalog.Len() == 0 {
		return nil, fmt.Errorf("cannot analyze transaction: %w", catalog.ErrEmpty)
	}

	cards := c.catalog.Cards()
	rewards := make([]domain.CardReward, 0, len(cards))
	for _, card := range cards {
		rewards = append(rewards, c.RewardFor(card, amount, category))
	}

	// Descending by reward amount. Input is ordered by card id, so the
	// stable sort gives a deterministic id tiebreak. Transaction ranking
	// uses RewardAmount, not NetBenefit; net benefit is reserved for
	// portfolio-level comparisons.
	sort.SliceStable(rewards, func(i, j int) bool {
		return rewards[i].RewardAmount > rewards[j].RewardAmount
	})

	best := rewards[0]

	var current *domain.CardReward
	if currentCardID != "" {
		for i := range rewards {
			if rewards[i].CardID == currentCardID {
				current = &rewards[i]
				break
			}
		}
	}

	analysis := &domain.RewardAnalysis{
		TransactionAmount:   amount,
		TransactionCategory: category,
		CurrentCardReward:   current,
		BestCardReward:      best,
		BestRate:            best.ApplicableRate,
		AllCardRewards:      rewards,
	}

	if current != nil {
		// Gap metrics use pure rewards, excluding fee amortization.
		currentPure := pureReward(amount, *current)
		bestPure := pureReward(amount, best)

		if currentPure > 0 {
			analysis.RewardGapPct = (bestPure - currentPure) / currentPure * 100
		}
		analysis.ExtraRewardAmt = bestPure - currentPure

		for _, r := range rewards {
			if r.RewardAmount > current.RewardAmount {
				analysis.NumBetterCards++
			}
		}
	} else {
		// No baseline: the full best reward is "extra".
		analysis.ExtraRewardAmt = best.RewardAmount
		analysis.NumBetterCards = len(rewards)
	}

	return analysis, nil
}

// pureReward is the fee-free dollar value at the applicable rate,
// ignoring bonus caps.
func pureReward(amount float64, r domain.CardReward) float64 {
	if r.RewardType == domain.RewardPoints || r.RewardType == domain.RewardMiles {
		return amount * r.ApplicableRate * r.PointValueCent / 100
	}
	return amount * r.ApplicableRate / 100
}
