package domain

import "time"

// ActionType is the recommended change to a user's card portfolio.
type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionSwitch ActionType = "switch"
	ActionNone   ActionType = "none"
)

// ActionRecommendation is the output of the action selection cascade.
// Metadata always carries a "rule" tag naming the matched rule so that
// decisions are observable and independently testable.
type ActionRecommendation struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`

	Action     ActionType     `json:"action"`
	CardID     string         `json:"cardId"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"` // 0.0 to 1.0
	Metadata   map[string]any `json:"metadata"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Rule returns the metadata rule tag, or "" if absent.
func (r *ActionRecommendation) Rule() string {
	if v, ok := r.Metadata["rule"].(string); ok {
		return v
	}
	return ""
}

// RankedCard is one entry in a personalized ranking.
type RankedCard struct {
	CardID       string  `json:"cardId"`
	Issuer       string  `json:"issuer"`
	CardName     string  `json:"cardName"`
	Score        float64 `json:"rankingScore"` // clamped to [0.1, 1.0]
	AnnualFee    float64 `json:"annualFee"`
	SignupBonus  float64 `json:"signupBonus"`
	AnnualReward float64 `json:"annualReward"`
	NetBenefit   float64 `json:"netBenefit"`

	// CategoryBreakdown is the projected annual reward per category.
	CategoryBreakdown map[string]float64 `json:"categoryBreakdown,omitempty"`

	Reason string `json:"reason"`
}

// TriggerResult says whether a transaction should surface a
// recommendation at all.
type TriggerResult struct {
	Recommend       bool    `json:"recommendFlag"`
	Confidence      float64 `json:"confidenceScore"`
	SuggestedCardID string  `json:"suggestedCardId"`
	ExtraReward     float64 `json:"extraReward"`
	Reasoning       string  `json:"reasoning"`
}

// RewardEstimate projects rewards for one card over a spending horizon.
type RewardEstimate struct {
	CardID                string             `json:"cardId"`
	EstimatedAnnualReward float64            `json:"estimatedAnnualReward"`
	CategoryBreakdown     map[string]float64 `json:"categoryBreakdown"`
}

// PortfolioSuggestion is one add/switch proposal from the optimizer.
type PortfolioSuggestion struct {
	Action           ActionType `json:"action"`
	CardID           string     `json:"cardId"`
	CardName         string     `json:"cardName,omitempty"`
	Reasoning        string     `json:"reasoning"`
	ImpactScore      float64    `json:"impactScore"`
	AnnualFee        float64    `json:"annualFee,omitempty"`
	AnnualFeeSavings float64    `json:"annualFeeSavings,omitempty"`
}

// PortfolioReview is the full optimizer output.
type PortfolioReview struct {
	Suggestions    []PortfolioSuggestion `json:"recommendations"`
	CurrentScore   float64               `json:"currentPortfolioScore"`
	OptimizedScore float64               `json:"optimizedPortfolioScore"`
}

// ScreenRule is a stored CEL eligibility expression evaluated against
// (card, applicant) pairs before ranking.
type ScreenRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Applicant carries the fields screen rules may reference.
type Applicant struct {
	CreditScore int    `json:"creditScore"`
	Region      string `json:"region"`
}
