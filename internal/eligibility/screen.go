// Package eligibility provides the CEL-based applicant screening engine.
//
// Screens are boolean CEL expressions evaluated per (card, applicant)
// pair before ranking, so users are never shown cards they cannot get.
package eligibility

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultScreenID names the built-in screen installed when no stored
// rules exist.
const DefaultScreenID = "default_credit_and_region"

// DefaultScreenExpression gates on the card's published credit score
// floor and issuing region. An empty region on the card means the card
// is available everywhere.
const DefaultScreenExpression = `credit_score >= int(card.credit_score_min) && ` +
	`(card.eligibility_region == "" || region == card.eligibility_region)`

// ErrNotBool is returned when a screen expression does not evaluate to
// a boolean.
var ErrNotBool = errors.New("screen expression must return bool")

// compiledScreen holds a pre-compiled CEL program.
type compiledScreen struct {
	rule    *domain.ScreenRule
	program cel.Program
}

// Screener compiles and evaluates screen rules.
type Screener struct {
	mu      sync.RWMutex
	env     *cel.Env
	screens map[string]*compiledScreen
}

// NewScreener creates a screening engine with the default screen
// pre-loaded.
func NewScreener() (*Screener, error) {
	env, err := cel.NewEnv(
		cel.Variable("card", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("credit_score", cel.IntType),
		cel.Variable("region", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &Screener{
		env:     env,
		screens: make(map[string]*compiledScreen),
	}

	if err := s.LoadRule(&domain.ScreenRule{
		ID:         DefaultScreenID,
		Name:       "Credit score and region",
		Expression: DefaultScreenExpression,
		Enabled:    true,
	}); err != nil {
		return nil, err
	}

	return s, nil
}

// ValidateRule compiles a rule without loading it.
func (s *Screener) ValidateRule(rule *domain.ScreenRule) error {
	if rule == nil {
		return fmt.Errorf("screen rule is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.compile(rule)
	return err
}

// LoadRule compiles and installs a rule. Replaces any rule with the
// same id.
func (s *Screener) LoadRule(rule *domain.ScreenRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compiled, err := s.compile(rule)
	if err != nil {
		return err
	}
	s.screens[rule.ID] = compiled

	return nil
}

// ReloadRules swaps the full rule set atomically. Disabled rules are
// skipped. Used to hot-reload stored rules.
func (s *Screener) ReloadRules(rules []*domain.ScreenRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*compiledScreen, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := s.compile(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	s.screens = next

	return nil
}

// RemoveRule drops a loaded rule. Unknown ids are a no-op.
func (s *Screener) RemoveRule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.screens, id)
}

// ScreenCount returns the number of loaded screens.
func (s *Screener) ScreenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.screens)
}

// LoadedRules returns the currently loaded rule configurations.
func (s *Screener) LoadedRules() []*domain.ScreenRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*domain.ScreenRule, 0, len(s.screens))
	for _, compiled := range s.screens {
		rules = append(rules, compiled.rule)
	}
	return rules
}

// Eligible reports whether the applicant passes every loaded screen for
// the card. Evaluation errors fail closed.
func (s *Screener) Eligible(card *domain.Card, applicant *domain.Applicant) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.screens) == 0 {
		return true
	}

	activation := map[string]any{
		"card": map[string]any{
			"id":                 card.ID,
			"issuer":             card.Issuer,
			"reward_type":        string(card.RewardType),
			"annual_fee":         card.AnnualFee,
			"credit_score_min":   card.CreditScoreMin,
			"eligibility_region": card.EligibilityRegion,
		},
		"credit_score": applicant.CreditScore,
		"region":       applicant.Region,
	}

	for _, screen := range s.screens {
		out, _, err := screen.program.Eval(activation)
		if err != nil {
			return false
		}
		pass, ok := out.(types.Bool)
		if !ok || !bool(pass) {
			return false
		}
	}

	return true
}

// Filter returns the subset of cards the applicant is eligible for,
// preserving order. A nil applicant skips screening entirely.
func (s *Screener) Filter(cards []*domain.Card, applicant *domain.Applicant) []*domain.Card {
	if applicant == nil {
		return cards
	}

	eligible := make([]*domain.Card, 0, len(cards))
	for _, card := range cards {
		if s.Eligible(card, applicant) {
			eligible = append(eligible, card)
		}
	}
	return eligible
}

func (s *Screener) compile(rule *domain.ScreenRule) (*compiledScreen, error) {
	ast, issues := s.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screen %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("screen %s: %w, got %s", rule.ID, ErrNotBool, ast.OutputType())
	}

	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screen %s: %w", rule.ID, err)
	}

	return &compiledScreen{rule: rule, program: program}, nil
}
