// Package ranking orders candidate cards for a recurring spending
// profile.
//
// Scores are deterministic: equal scores break ties by card id. A small
// score jitter can be enabled with an explicit seed for product surfaces
// that want variety, but it is never on by default.
package ranking

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/reward"
)

// Composite score weights and clamps.
const (
	benefitWeight       = 0.5
	effectivenessWeight = 0.3
	signupBonusWeight   = 0.2

	// High spenders carry annual fees more easily.
	highSpendAnnualTotal = 36000.0

	scoreFloor = 0.1
	scoreCeil  = 1.0
)

// Engine ranks catalog cards against a spending pattern.
type Engine struct {
	catalog *catalog.Catalog
	jitter  *rand.Rand
}

// NewEngine creates a deterministic ranking engine.
func NewEngine(cat *catalog.Catalog) *Engine {
	return &Engine{catalog: cat}
}

// NewEngineWithJitter creates an engine that adds a small seeded jitter
// to scores. Reproducible for a fixed seed and call sequence.
func NewEngineWithJitter(cat *catalog.Catalog, seed int64) *Engine {
	return &Engine{
		catalog: cat,
		jitter:  rand.New(rand.NewSource(seed)),
	}
}

// Rank scores every non-owned catalog card against the monthly spending
// pattern and returns the list in descending score order.
func (e *Engine) Rank(pattern domain.SpendingPattern, ownedCardIDs []string) ([]domain.RankedCard, error) {
	if e.catalog == nil || e.catalog.Len() == 0 {
		return nil, fmt.Errorf("cannot rank cards: %w", catalog.ErrEmpty)
	}

	owned := make(map[string]bool, len(ownedCardIDs))
	for _, id := range ownedCardIDs {
		owned[id] = true
	}

	totalAnnualSpending := pattern.AnnualTotal()

	var ranked []domain.RankedCard
	for _, card := range e.catalog.Cards() {
		if owned[card.ID] {
			continue
		}

		annualReward, breakdown := projectAnnualReward(card, pattern)
		netBenefit := annualReward - card.AnnualFee

		score := compositeScore(netBenefit, card.AnnualFee, totalAnnualSpending, card.SignupBonusValue)
		if e.jitter != nil {
			score = clamp(score + (e.jitter.Float64()-0.5)*0.1)
		}

		ranked = append(ranked, domain.RankedCard{
			CardID:            card.ID,
			Issuer:            card.Issuer,
			CardName:          card.DisplayName(),
			Score:             score,
			AnnualFee:         card.AnnualFee,
			SignupBonus:       card.SignupBonusValue,
			AnnualReward:      annualReward,
			NetBenefit:        netBenefit,
			CategoryBreakdown: breakdown,
			Reason:            reason(netBenefit, breakdown),
		})
	}

	// Strictly descending by score; ties broken by card id. The catalog
	// iterates in id order, so the stable sort keeps ties lexical.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked, nil
}

// projectAnnualReward applies the transaction rate-selection logic to
// each category of the pattern and annualizes.
func projectAnnualReward(card *domain.Card, pattern domain.SpendingPattern) (float64, map[string]float64) {
	breakdown := make(map[string]float64, len(pattern))
	var total float64

	for category, monthly := range pattern {
		if monthly <= 0 {
			continue
		}
		rate := reward.RateForCategory(card, category)
		if card.BaseRatePct > rate {
			rate = card.BaseRatePct
		}

		annual := monthly * 12
		var categoryReward float64
		if card.EarnsUnits() {
			categoryReward = annual * rate * card.PointValueCent / 100
		} else {
			categoryReward = annual * rate / 100
		}

		breakdown[category] = categoryReward
		total += categoryReward
	}

	return total, breakdown
}

// compositeScore combines benefit, effectiveness, signup bonus and fee
// penalty, each term clamped before combination.
func compositeScore(netBenefit, annualFee, totalAnnualSpending, signupBonus float64) float64 {
	benefitTerm := min(netBenefit/1000, 1.0) * benefitWeight

	var effectivenessTerm float64
	if totalAnnualSpending > 0 {
		effectiveness := (netBenefit + annualFee) / totalAnnualSpending
		effectivenessTerm = min(effectiveness*10, 1.0) * effectivenessWeight
	}

	signupTerm := min(signupBonus/2000, 1.0) * signupBonusWeight

	var feePenalty float64
	if totalAnnualSpending > highSpendAnnualTotal {
		feePenalty = min(annualFee/1000, 0.1)
	} else {
		feePenalty = min(annualFee/500, 0.2)
	}

	return clamp(benefitTerm + effectivenessTerm + signupTerm - feePenalty)
}

func clamp(score float64) float64 {
	if score < scoreFloor {
		return scoreFloor
	}
	if score > scoreCeil {
		return scoreCeil
	}
	return score
}

// reason surfaces the top contributing categories, or flags cards whose
// value is non-monetary.
func reason(netBenefit float64, breakdown map[string]float64) string {
	if netBenefit <= 0 {
		return "Consider if you value the card's additional benefits"
	}

	type contribution struct {
		category string
		amount   float64
	}
	contributions := make([]contribution, 0, len(breakdown))
	for category, amount := range breakdown {
		contributions = append(contributions, contribution{category, amount})
	}
	sort.Slice(contributions, func(i, j int) bool {
		if contributions[i].amount != contributions[j].amount {
			return contributions[i].amount > contributions[j].amount
		}
		return contributions[i].category < contributions[j].category
	})

	if len(contributions) == 0 {
		return fmt.Sprintf("Estimated annual benefit: $%.0f", netBenefit)
	}
	if len(contributions) >= 2 && contributions[1].amount > 0 {
		return fmt.Sprintf("Excellent rewards for your %s and %s spending",
			titleCategory(contributions[0].category), titleCategory(contributions[1].category))
	}
	return fmt.Sprintf("Excellent rewards for your %s spending", titleCategory(contributions[0].category))
}

func titleCategory(category string) string {
	out := []byte(category)
	upper := true
	for i, ch := range out {
		if ch == '_' {
			out[i] = ' '
			upper = true
			continue
		}
		if upper && ch >= 'a' && ch <= 'z' {
			out[i] = ch - ('a' - 'A')
		}
		upper = false
	}
	return string(out)
}
