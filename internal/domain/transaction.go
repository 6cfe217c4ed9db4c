package domain

import (
	"time"
)

// Transaction represents a single spend event to be scored against the
// card catalog.
type Transaction struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// Amount in dollars. Expected positive; zero is handled gracefully
	// by the reward arithmetic (never a divide-by-zero).
	Amount float64 `json:"amount"`

	// Category is a free-form spending category ("dining", "travel", ...).
	Category string `json:"category"`

	// CurrentCardID optionally names the card the user paid with.
	// It may reference no card the catalog knows.
	CurrentCardID string `json:"currentCardId,omitempty"`

	Merchant  string    `json:"merchant,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// SpendingPattern maps a spending category to a monthly dollar amount.
type SpendingPattern map[string]float64

// MonthlyTotal returns the total monthly spend across all categories.
func (p SpendingPattern) MonthlyTotal() float64 {
	var total float64
	for _, amt := range p {
		total += amt
	}
	return total
}

// AnnualTotal returns the annualized total spend.
func (p SpendingPattern) AnnualTotal() float64 {
	return p.MonthlyTotal() * 12
}
