// Package portfolio projects rewards over a spending horizon and
// reviews card portfolios for add/switch opportunities.
package portfolio

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranking"
	"github.com/opensource-finance/kestrel/internal/reward"
)

// ErrCardNotFound is returned when an estimate targets a card the
// catalog does not know.
var ErrCardNotFound = errors.New("card not found in catalog")

// ErrNoOwnedCards is returned when a review names no catalog card.
var ErrNoOwnedCards = errors.New("no valid current cards found")

// Review heuristics.
const (
	basePortfolioScore = 0.6
	maxFeeBurdenHit    = 0.3
	smallPortfolio     = 3
	feeBurdenThreshold = 0.02 // fees above 2% of spending prompt a switch
	highFeeCard        = 200.0
	addImpact          = 0.15
	switchImpact       = 0.20
	maxAddSuggestions  = 2
)

// Optimizer reviews portfolios against the catalog.
type Optimizer struct {
	catalog *catalog.Catalog
	ranker  *ranking.Engine
}

// NewOptimizer creates a portfolio optimizer.
func NewOptimizer(cat *catalog.Catalog) *Optimizer {
	return &Optimizer{
		catalog: cat,
		ranker:  ranking.NewEngine(cat),
	}
}

// EstimateRewards projects the reward a card earns on a spending
// profile, annualized over the horizon. Uses the same per-category rate
// selection as transaction scoring.
func (o *Optimizer) EstimateRewards(cardID string, projected map[string]float64, horizonMonths int) (*domain.RewardEstimate, error) {
	if o.catalog == nil || o.catalog.Len() == 0 {
		return nil, fmt.Errorf("cannot estimate rewards: %w", catalog.ErrEmpty)
	}
	card, ok := o.catalog.Get(cardID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	if horizonMonths <= 0 {
		horizonMonths = 12
	}

	breakdown := make(map[string]float64, len(projected))
	var total float64
	for category, amount := range projected {
		if amount <= 0 {
			continue
		}
		rate := reward.RateForCategory(card, category)
		if card.BaseRatePct > rate {
			rate = card.BaseRatePct
		}

		var categoryReward float64
		if card.EarnsUnits() {
			categoryReward = amount * rate * card.PointValueCent / 100
		} else {
			categoryReward = amount * rate / 100
		}
		breakdown[category] = categoryReward
		total += categoryReward
	}

	return &domain.RewardEstimate{
		CardID:                cardID,
		EstimatedAnnualReward: total * 12 / float64(horizonMonths),
		CategoryBreakdown:     breakdown,
	}, nil
}

// Review scores the current portfolio and proposes adds/switches.
func (o *Optimizer) Review(currentCardIDs []string, pattern domain.SpendingPattern, maxCards int) (*domain.PortfolioReview, error) {
	if o.catalog == nil || o.catalog.Len() == 0 {
		return nil, fmt.Errorf("cannot review portfolio: %w", catalog.ErrEmpty)
	}
	if maxCards <= 0 {
		maxCards = 5
	}

	var owned []*domain.Card
	for _, id := range currentCardIDs {
		if card, ok := o.catalog.Get(id); ok {
			owned = append(owned, card)
		}
	}
	if len(owned) == 0 {
		return nil, ErrNoOwnedCards
	}

	totalSpending := pattern.MonthlyTotal()
	var totalFees float64
	for _, card := range owned {
		totalFees += card.AnnualFee
	}

	// Fee burden drags the portfolio score; zero spend short-circuits
	// to no burden rather than dividing by zero.
	currentScore := basePortfolioScore
	if totalSpending > 0 {
		burden := totalFees / totalSpending
		hit := burden * 0.5
		if hit > maxFeeBurdenHit {
			hit = maxFeeBurdenHit
		}
		currentScore -= hit
	}

	var suggestions []domain.PortfolioSuggestion

	// A small portfolio gets the best-ranked non-owned cards.
	if len(owned) < smallPortfolio && len(owned) < maxCards {
		ranked, err := o.ranker.Rank(pattern, currentCardIDs)
		if err != nil {
			return nil, err
		}
		for i, rc := range ranked {
			if i >= maxAddSuggestions {
				break
			}
			suggestions = append(suggestions, domain.PortfolioSuggestion{
				Action:      domain.ActionAdd,
				CardID:      rc.CardID,
				CardName:    rc.CardName,
				Reasoning:   "Diversify your portfolio with specialized rewards",
				ImpactScore: addImpact,
				AnnualFee:   rc.AnnualFee,
			})
		}
	}

	// High fees relative to spend prompt switching off the priciest card.
	if totalSpending > 0 && totalFees > totalSpending*feeBurdenThreshold {
		if victim := highestFeeCard(owned); victim != nil && victim.AnnualFee > highFeeCard {
			suggestions = append(suggestions, domain.PortfolioSuggestion{
				Action:           domain.ActionSwitch,
				CardID:           victim.ID,
				CardName:         victim.DisplayName(),
				Reasoning:        "Consider switching from high-fee card due to spending pattern",
				ImpactScore:      switchImpact,
				AnnualFeeSavings: victim.AnnualFee,
			})
		}
	}

	optimized := currentScore
	for _, s := range suggestions {
		optimized += s.ImpactScore
	}
	if optimized > 1.0 {
		optimized = 1.0
	}

	return &domain.PortfolioReview{
		Suggestions:    suggestions,
		CurrentScore:   currentScore,
		OptimizedScore: optimized,
	}, nil
}

func highestFeeCard(cards []*domain.Card) *domain.Card {
	var best *domain.Card
	for _, c := range cards {
		if best == nil || c.AnnualFee > best.AnnualFee {
			best = c
		}
	}
	return best
}
