// Package domain defines the core entities and interfaces for Kestrel.
package domain

import (
	"time"
)

// Card is a catalog entry describing a credit card product.
// Cards are loaded once at startup and treated as immutable for the
// lifetime of a scoring session.
type Card struct {
	ID      string `json:"cardId"`
	Issuer  string `json:"issuer"`
	Network string `json:"network"`

	// Reward structure
	RewardType string `json:"rewardType"` // "cashback", "points", or "miles"

	// BaseRatePct is the reward rate for non-bonus spend, in percentage
	// points per dollar (cashback) or units per dollar (points/miles).
	BaseRatePct float64 `json:"baseRatePct"`

	// BonusCategories maps a spending category to a rate override.
	// A category is bonused only when its rate exceeds BaseRatePct.
	BonusCategories map[string]float64 `json:"bonusCategories"`

	// BonusCapAmt is the dollar spend threshold after which the bonus
	// rate reverts to base within the period. 0 means uncapped.
	BonusCapAmt float64 `json:"bonusCapAmt"`

	// Fees and incentives
	AnnualFee        float64 `json:"annualFee"`
	SignupBonusValue float64 `json:"signupBonusValue"`
	SignupReqSpend   float64 `json:"signupReqSpend"`
	ForeignTxFeePct  float64 `json:"foreignTxFeePct"`

	// PointValueCent is the redemption value of one point/mile, in cents.
	PointValueCent float64 `json:"pointValueCent"`

	// Eligibility
	CreditScoreMin    int    `json:"creditScoreMin"`
	EligibilityRegion string `json:"eligibilityRegion"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Reward type constants.
const (
	RewardCashback = "cashback"
	RewardPoints   = "points"
	RewardMiles    = "miles"
)

// EarnsUnits reports whether the card earns points or miles rather than
// direct cashback. Unit-earning cards interpret rates as units per dollar.
func (c *Card) EarnsUnits() bool {
	return c.RewardType == RewardPoints || c.RewardType == RewardMiles
}

// DisplayName returns a human-readable card name derived from issuer and id.
func (c *Card) DisplayName() string {
	if c.Issuer == "" {
		return titleFromID(c.ID)
	}
	return c.Issuer + " " + titleFromID(c.ID)
}

func titleFromID(id string) string {
	out := make([]byte, 0, len(id))
	upper := true
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if ch == '_' {
			out = append(out, ' ')
			upper = true
			continue
		}
		if upper && ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		upper = false
		out = append(out, ch)
	}
	return string(out)
}
