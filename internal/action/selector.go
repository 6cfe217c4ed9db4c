// Package action decides whether to recommend adding a card, switching
// away from one, or doing nothing.
//
// The decision is an ordered rule cascade: rules are evaluated in order
// and the first match wins. The cascade is data, not control flow, so
// adding or reordering rules is a table edit and each rule is
// independently testable. Every outcome carries its rule tag in
// metadata. The whole selector is pure: no I/O, no randomness.
package action

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Default thresholds for the cascade.
const (
	// DefaultMaxCardsPerUser is the wallet capacity before the selector
	// prefers switching over adding.
	DefaultMaxCardsPerUser = 5

	// DefaultSwitchBenefitThreshold is the estimated annual benefit
	// required to suggest a switch on spending-profile evidence alone.
	DefaultSwitchBenefitThreshold = 100.0

	// minExtraReward is the floor below which no recommendation is
	// worth surfacing, in dollars.
	minExtraReward = 0.02

	// moderateExtraReward justifies a portfolio-expansion add.
	moderateExtraReward = 0.05
)

// highValueCategories favor adding a specialist card.
var highValueCategories = map[string]bool{
	"dining":    true,
	"travel":    true,
	"groceries": true,
}

// categorySpecialists maps a category to the cards recognized as strong
// for it. Owning any of them counts as coverage.
var categorySpecialists = map[string][]string{
	"dining":    {"american_express_gold_card", "capital_one_savor", "chase_sapphire_preferred"},
	"travel":    {"chase_sapphire_preferred", "chase_sapphire_reserve", "capital_one_venture_rewards"},
	"groceries": {"blue_cash_preferred_card", "american_express_gold_card"},
	"gas":       {"blue_cash_preferred_card", "discover_it_cash_back"},
}

// plainCashbackCards are flat-rate cards the worst-card heuristic
// prefers to switch away from when specialized cards are owned.
var plainCashbackCards = []string{
	"citi_double_cash_card",
	"wells_fargo_active_cash_card",
	"capital_one_quicksilver",
}

// Input is everything a selection needs. AnnualSpending maps categories
// to annual dollars and may be nil when no profile is known.
type Input struct {
	Analysis       *domain.RewardAnalysis
	OwnedCardIDs   []string
	AnnualSpending map[string]float64
}

// rule pairs a predicate with a resolver. Order in the table is the
// evaluation order.
type rule struct {
	name    string
	match   func(s *Selector, in *Input) bool
	resolve func(s *Selector, in *Input) *domain.ActionRecommendation
}

// Selector runs the action cascade.
type Selector struct {
	maxCardsPerUser        int
	switchBenefitThreshold float64
	rules                  []rule
}

// NewSelector creates a selector with default thresholds.
func NewSelector() *Selector {
	s := &Selector{
		maxCardsPerUser:        DefaultMaxCardsPerUser,
		switchBenefitThreshold: DefaultSwitchBenefitThreshold,
	}
	s.rules = []rule{
		{name: "already_has_best_card", match: matchAlreadyHasBest, resolve: resolveAlreadyHasBest},
		{name: "insufficient_benefit", match: matchInsufficientBenefit, resolve: resolveInsufficientBenefit},
		{name: "max_cards_reached", match: matchMaxCardsReached, resolve: resolveMaxCardsReached},
		{name: "category_specialization", match: matchCategorySpecialization, resolve: resolveCategorySpecialization},
		{name: "high_annual_benefit", match: matchHighAnnualBenefit, resolve: resolveHighAnnualBenefit},
		{name: "portfolio_expansion", match: matchPortfolioExpansion, resolve: resolvePortfolioExpansion},
		{name: "optimize_existing_portfolio", match: matchOptimizePortfolio, resolve: resolveOptimizePortfolio},
		{name: "fallback_add", match: matchAlways, resolve: resolveFallbackAdd},
	}
	return s
}

// Select runs the cascade and returns the first matching rule's
// recommendation. Deterministic for identical inputs.
func (s *Selector) Select(in *Input) *domain.ActionRecommendation {
	for _, r := range s.rules {
		if r.match(s, in) {
			rec := r.resolve(s, in)
			rec.Metadata["rule"] = r.name
			return rec
		}
	}
	// Unreachable: the fallback rule always matches.
	return resolveFallbackAdd(s, in)
}

// RuleNames returns the cascade order, for observability.
func (s *Selector) RuleNames() []string {
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.name
	}
	return names
}

func newRecommendation(action domain.ActionType, cardID, reasoning string, confidence float64) *domain.ActionRecommendation {
	return &domain.ActionRecommendation{
		Action:     action,
		CardID:     cardID,
		Reasoning:  reasoning,
		Confidence: confidence,
		Metadata:   map[string]any{},
	}
}

func ownsCard(owned []string, cardID string) bool {
	for _, id := range owned {
		if id == cardID {
			return true
		}
	}
	return false
}

// Rule 1: the best card is already in the wallet.

func matchAlreadyHasBest(_ *Selector, in *Input) bool {
	return ownsCard(in.OwnedCardIDs, in.Analysis.BestCardReward.CardID)
}

func resolveAlreadyHasBest(_ *Selector, in *Input) *domain.ActionRecommendation {
	return newRecommendation(domain.ActionNone, in.Analysis.BestCardReward.CardID,
		"User already has the optimal card for this transaction", 0.0)
}

// Rule 2: the benefit is too small to bother anyone with.

func matchInsufficientBenefit(_ *Selector, in *Input) bool {
	return in.Analysis.ExtraRewardAmt < minExtraReward
}

func resolveInsufficientBenefit(_ *Selector, in *Input) *domain.ActionRecommendation {
	rec := newRecommendation(domain.ActionNone, in.Analysis.BestCardReward.CardID,
		"Benefit too small to justify recommendation", 0.0)
	rec.Metadata["extra_reward"] = in.Analysis.ExtraRewardAmt
	return rec
}

// Rule 3: wallet at capacity, switch away from the worst card.

func matchMaxCardsReached(s *Selector, in *Input) bool {
	return len(in.OwnedCardIDs) >= s.maxCardsPerUser
}

func resolveMaxCardsReached(_ *Selector, in *Input) *domain.ActionRecommendation {
	worst := worstOwnedCard(in.OwnedCardIDs)
	rec := newRecommendation(domain.ActionSwitch, in.Analysis.BestCardReward.CardID,
		fmt.Sprintf("Switch from %s to maximize rewards (wallet at capacity)", worst), 0.8)
	rec.Metadata["from_card"] = worst
	rec.Metadata["to_card"] = in.Analysis.BestCardReward.CardID
	rec.Metadata["current_card_count"] = len(in.OwnedCardIDs)
	return rec
}

// Rule 4: high-value category with no specialist coverage.

func matchCategorySpecialization(_ *Selector, in *Input) bool {
	category := in.Analysis.TransactionCategory
	if !highValueCategories[category] {
		return false
	}
	for _, specialist := range categorySpecialists[category] {
		if ownsCard(in.OwnedCardIDs, specialist) {
			return false
		}
	}
	return true
}

func resolveCategorySpecialization(_ *Selector, in *Input) *domain.ActionRecommendation {
	category := in.Analysis.TransactionCategory
	rec := newRecommendation(domain.ActionAdd, in.Analysis.BestCardReward.CardID,
		fmt.Sprintf("Add specialized card for %s category", category), 0.9)
	rec.Metadata["category"] = category
	rec.Metadata["specialists_available"] = categorySpecialists[category]
	return rec
}

// Rule 5: the spending profile suggests a sizable annual gain from
// switching.

func matchHighAnnualBenefit(s *Selector, in *Input) bool {
	if in.AnnualSpending == nil {
		return false
	}
	return estimateAnnualBenefit(in.Analysis.BestCardReward.CardID, in.AnnualSpending) >= s.switchBenefitThreshold
}

func resolveHighAnnualBenefit(_ *Selector, in *Input) *domain.ActionRecommendation {
	benefit := estimateAnnualBenefit(in.Analysis.BestCardReward.CardID, in.AnnualSpending)
	var fromCard string
	if in.Analysis.CurrentCardReward != nil {
		fromCard = in.Analysis.CurrentCardReward.CardID
	}
	rec := newRecommendation(domain.ActionSwitch, in.Analysis.BestCardReward.CardID,
		fmt.Sprintf("Switch for estimated $%.0f annual benefit", benefit), 0.85)
	rec.Metadata["estimated_benefit"] = benefit
	rec.Metadata["from_card"] = fromCard
	rec.Metadata["to_card"] = in.Analysis.BestCardReward.CardID
	return rec
}

// Rule 6: moderate benefit and room in the wallet.

func matchPortfolioExpansion(_ *Selector, in *Input) bool {
	return in.Analysis.ExtraRewardAmt >= moderateExtraReward && len(in.OwnedCardIDs) < 3
}

func resolvePortfolioExpansion(_ *Selector, in *Input) *domain.ActionRecommendation {
	rec := newRecommendation(domain.ActionAdd, in.Analysis.BestCardReward.CardID,
		"Add card to complement existing portfolio", 0.6)
	rec.Metadata["extra_reward"] = in.Analysis.ExtraRewardAmt
	rec.Metadata["current_cards"] = len(in.OwnedCardIDs)
	return rec
}

// Rule 7: 3-4 cards owned, prefer consolidating.

func matchOptimizePortfolio(_ *Selector, in *Input) bool {
	return len(in.OwnedCardIDs) >= 3
}

func resolveOptimizePortfolio(_ *Selector, in *Input) *domain.ActionRecommendation {
	leastUsed := leastUsedCard(in.OwnedCardIDs)
	rec := newRecommendation(domain.ActionSwitch, in.Analysis.BestCardReward.CardID,
		"Switch from underutilized card for better rewards", 0.7)
	rec.Metadata["from_card"] = leastUsed
	rec.Metadata["to_card"] = in.Analysis.BestCardReward.CardID
	return rec
}

// Rule 8: fallback.

func matchAlways(_ *Selector, _ *Input) bool { return true }

func resolveFallbackAdd(_ *Selector, in *Input) *domain.ActionRecommendation {
	return newRecommendation(domain.ActionAdd, in.Analysis.BestCardReward.CardID,
		"Consider adding this card for better rewards", 0.4)
}

// worstOwnedCard prefers a known plain-cashback card, falling back to
// the first owned card. Real usage data would replace this heuristic.
func worstOwnedCard(owned []string) string {
	if len(owned) == 0 {
		return ""
	}
	for _, id := range owned {
		for _, plain := range plainCashbackCards {
			if id == plain {
				return id
			}
		}
	}
	return owned[0]
}

// leastUsedCard assumes the first owned card absent usage data.
func leastUsedCard(owned []string) string {
	if len(owned) == 0 {
		return ""
	}
	return owned[0]
}

// estimateAnnualBenefit is a deliberately rough multiplier estimate
// keyed off card-name heuristics, not the full ranking engine.
func estimateAnnualBenefit(newCardID string, annualSpending map[string]float64) float64 {
	var total float64
	for _, amt := range annualSpending {
		total += amt
	}

	id := strings.ToLower(newCardID)
	newMultiplier := 1.5
	switch {
	case strings.Contains(id, "sapphire"):
		newMultiplier = 2.0
	case strings.Contains(id, "gold"):
		newMultiplier = 1.8
	case strings.Contains(id, "double_cash"):
		newMultiplier = 1.4
	}
	const currentMultiplier = 1.0

	benefit := total * 0.01 * (newMultiplier - currentMultiplier)
	if benefit < 0 {
		return 0
	}
	return benefit
}
