package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const catalogHeader = "card_id,issuer,network,reward_type,base_rate_pct,bonus_categories,bonus_cap_amt,annual_fee,signup_bonus_value,signup_req_spend,foreign_tx_fee_pct,point_value_cent,credit_score_min,eligibility_region"

func validRows() []string {
	return []string{
		`citi_double_cash_card,Citi,Mastercard,cashback,2.0,{},0,0,200,1500,3.0,1.0,650,US`,
		`american_express_gold_card,American Express,American Express,points,1.0,"{""dining"": 4.0, ""groceries"": 4.0}",25000,250,1000,4000,0,1.8,700,US`,
		`chase_sapphire_preferred,Chase,Visa,points,1.0,"{""travel"": 2.0, ""dining"": 2.0}",0,95,750,4000,0,1.5,700,US`,
	}
}

func buildCSV(rows ...string) string {
	return catalogHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func TestLoadValidCatalog(t *testing.T) {
	cat, violations, err := Load(strings.NewReader(buildCSV(validRows()...)), Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %d: %v", len(violations), violations)
	}
	if cat.Len() != 3 {
		t.Fatalf("expected 3 cards, got %d", cat.Len())
	}

	t.Run("BonusCategoriesDecodedOnce", func(t *testing.T) {
		amex, ok := cat.Get("american_express_gold_card")
		if !ok {
			t.Fatal("amex gold not found")
		}
		if amex.BonusCategories["dining"] != 4.0 {
			t.Errorf("expected dining bonus 4.0, got %v", amex.BonusCategories["dining"])
		}
		if amex.BonusCapAmt != 25000 {
			t.Errorf("expected bonus cap 25000, got %.0f", amex.BonusCapAmt)
		}
	})

	t.Run("OrderedByCardID", func(t *testing.T) {
		cards := cat.Cards()
		for i := 1; i < len(cards); i++ {
			if cards[i-1].ID >= cards[i].ID {
				t.Errorf("cards not ordered: %s before %s", cards[i-1].ID, cards[i].ID)
			}
		}
	})
}

func TestLoadLenientSkipsBadRow(t *testing.T) {
	rows := validRows()
	// Bonus cell is not a mapping: the row fails, the rest load.
	rows = append(rows, `broken_card,Acme,Visa,cashback,1.5,not-json,0,0,0,0,0,1.0,650,US`)

	cat, violations, err := Load(strings.NewReader(buildCSV(rows...)), Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != 3 {
		t.Errorf("expected bad row skipped, got %d cards", cat.Len())
	}
	if len(violations) == 0 {
		t.Fatal("expected violations for bad row")
	}
	if violations[0].CardID != "broken_card" || violations[0].Field != "bonus_categories" {
		t.Errorf("unexpected violation: %+v", violations[0])
	}
	if _, ok := cat.Get("broken_card"); ok {
		t.Error("broken card should not be in catalog")
	}
}

func TestLoadStrictAbortsOnBadRow(t *testing.T) {
	rows := validRows()
	rows = append(rows, `broken_card,Acme,Visa,cashback,1.5,not-json,0,0,0,0,0,1.0,650,US`)

	_, _, err := Load(strings.NewReader(buildCSV(rows...)), Options{Strict: true})
	if err == nil {
		t.Fatal("expected strict load to fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestValidationViolationsBatched(t *testing.T) {
	// One row with several problems: all violations are reported, not
	// just the first.
	row := `bad_card,Acme,Visa,crypto,-1.0,{},0,-95,0,0,0,1.0,200,US`

	cat, violations, err := Load(strings.NewReader(buildCSV(append(validRows(), row)...)), Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != 3 {
		t.Errorf("expected 3 valid cards, got %d", cat.Len())
	}

	fields := make(map[string]bool)
	for _, v := range violations {
		fields[v.Field] = true
	}
	for _, want := range []string{"annual_fee", "base_rate_pct", "credit_score_min", "reward_type"} {
		if !fields[want] {
			t.Errorf("missing violation for %s (got %v)", want, violations)
		}
	}
}

func TestLoadEmptyCatalog(t *testing.T) {
	_, _, err := Load(strings.NewReader(catalogHeader+"\n"), Options{})
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestLoadMissingHeaderColumn(t *testing.T) {
	csv := "card_id,issuer\nfoo,Acme\n"
	_, _, err := Load(strings.NewReader(csv), Options{})
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestFromCards(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if _, err := FromCards(nil); !errors.Is(err, ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
	})

	t.Run("DuplicateIDsCollapsed", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "a", RewardType: domain.RewardCashback},
			{ID: "a", RewardType: domain.RewardPoints},
			{ID: "b", RewardType: domain.RewardCashback},
		}
		cat, err := FromCards(cards)
		if err != nil {
			t.Fatalf("FromCards failed: %v", err)
		}
		if cat.Len() != 2 {
			t.Errorf("expected 2 cards after dedup, got %d", cat.Len())
		}
		got, _ := cat.Get("a")
		if got.RewardType != domain.RewardCashback {
			t.Error("first occurrence should win")
		}
	})
}
