package eligibility

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testCard() *domain.Card {
	return &domain.Card{
		ID:                "american_express_gold_card",
		Issuer:            "American Express",
		RewardType:        domain.RewardPoints,
		AnnualFee:         250,
		CreditScoreMin:    700,
		EligibilityRegion: "US",
	}
}

func TestDefaultScreen(t *testing.T) {
	s, err := NewScreener()
	if err != nil {
		t.Fatalf("NewScreener failed: %v", err)
	}

	tests := []struct {
		name      string
		applicant domain.Applicant
		want      bool
	}{
		{"QualifiedApplicant", domain.Applicant{CreditScore: 750, Region: "US"}, true},
		{"ExactScoreFloor", domain.Applicant{CreditScore: 700, Region: "US"}, true},
		{"ScoreTooLow", domain.Applicant{CreditScore: 650, Region: "US"}, false},
		{"WrongRegion", domain.Applicant{CreditScore: 750, Region: "CA"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Eligible(testCard(), &tc.applicant); got != tc.want {
				t.Errorf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("CardWithoutRegion", func(t *testing.T) {
		card := testCard()
		card.EligibilityRegion = ""
		if !s.Eligible(card, &domain.Applicant{CreditScore: 750, Region: "DE"}) {
			t.Error("regionless card should be available everywhere")
		}
	})
}

func TestLoadRuleRejectsInvalidExpressions(t *testing.T) {
	s, err := NewScreener()
	if err != nil {
		t.Fatalf("NewScreener failed: %v", err)
	}

	tests := []struct {
		name       string
		expression string
	}{
		{"SyntaxError", `credit_score >=`},
		{"UnknownVariable", `income > 50000.0`},
		{"NonBoolResult", `credit_score + 100`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.LoadRule(&domain.ScreenRule{
				ID:         "bad_rule",
				Expression: tc.expression,
				Enabled:    true,
			})
			if err == nil {
				t.Errorf("expected compile error for %q", tc.expression)
			}
		})
	}

	// A failed load must not leave a partial rule behind.
	if s.ScreenCount() != 1 {
		t.Errorf("expected only the default screen, got %d", s.ScreenCount())
	}
}

func TestCustomScreenTightensEligibility(t *testing.T) {
	s, err := NewScreener()
	if err != nil {
		t.Fatalf("NewScreener failed: %v", err)
	}

	// No premium cards for thin-file applicants.
	err = s.LoadRule(&domain.ScreenRule{
		ID:         "premium_fee_gate",
		Expression: `card.annual_fee < 100.0 || credit_score >= 740`,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	borderline := &domain.Applicant{CreditScore: 710, Region: "US"}
	if s.Eligible(testCard(), borderline) {
		t.Error("premium gate should exclude a 710 score from a $250 fee card")
	}

	strong := &domain.Applicant{CreditScore: 760, Region: "US"}
	if !s.Eligible(testCard(), strong) {
		t.Error("strong applicant should pass both screens")
	}
}

func TestReloadRulesSwapsAtomically(t *testing.T) {
	s, err := NewScreener()
	if err != nil {
		t.Fatalf("NewScreener failed: %v", err)
	}

	err = s.ReloadRules([]*domain.ScreenRule{
		{ID: "score_only", Expression: `credit_score >= 600`, Enabled: true},
		{ID: "disabled_rule", Expression: `false`, Enabled: false},
	})
	if err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	if s.ScreenCount() != 1 {
		t.Errorf("expected 1 loaded screen after reload, got %d", s.ScreenCount())
	}

	// The default region screen is gone, so region no longer matters.
	if !s.Eligible(testCard(), &domain.Applicant{CreditScore: 650, Region: "CA"}) {
		t.Error("reloaded rule set should admit a 650 score in any region")
	}
}

func TestFilter(t *testing.T) {
	s, err := NewScreener()
	if err != nil {
		t.Fatalf("NewScreener failed: %v", err)
	}

	easy := &domain.Card{ID: "starter_card", CreditScoreMin: 580, EligibilityRegion: "US"}
	hard := testCard()

	got := s.Filter([]*domain.Card{easy, hard}, &domain.Applicant{CreditScore: 640, Region: "US"})
	if len(got) != 1 || got[0].ID != "starter_card" {
		t.Errorf("expected only starter_card, got %d cards", len(got))
	}

	t.Run("NilApplicantSkipsScreening", func(t *testing.T) {
		got := s.Filter([]*domain.Card{easy, hard}, nil)
		if len(got) != 2 {
			t.Errorf("nil applicant should skip screening, got %d cards", len(got))
		}
	})
}
