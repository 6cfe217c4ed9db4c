package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.FromCards([]*domain.Card{
		{
			ID: "citi_double_cash_card", Issuer: "Citi", Network: "Mastercard",
			RewardType: domain.RewardCashback, BaseRatePct: 2.0,
			BonusCategories: map[string]float64{},
			PointValueCent:  1.0, CreditScoreMin: 650, EligibilityRegion: "US",
			SignupBonusValue: 200,
		},
		{
			ID: "american_express_gold_card", Issuer: "American Express", Network: "American Express",
			RewardType: domain.RewardPoints, BaseRatePct: 1.0,
			BonusCategories: map[string]float64{"dining": 4.0, "groceries": 4.0},
			BonusCapAmt:     25000, AnnualFee: 250, PointValueCent: 1.8,
			CreditScoreMin: 700, EligibilityRegion: "US", SignupBonusValue: 1000,
		},
		{
			ID: "chase_ink_business_preferred", Issuer: "Chase", Network: "Visa",
			RewardType: domain.RewardPoints, BaseRatePct: 1.0,
			BonusCategories: map[string]float64{"travel": 3.0, "shopping": 3.0},
			AnnualFee:       95, PointValueCent: 1.25,
			CreditScoreMin: 720, EligibilityRegion: "US",
		},
		{
			ID: "discover_it_cash_back", Issuer: "Discover", Network: "Discover",
			RewardType: domain.RewardCashback, BaseRatePct: 1.0,
			BonusCategories: map[string]float64{"rotating": 5.0},
			BonusCapAmt:     1500, PointValueCent: 1.0,
			CreditScoreMin: 600, EligibilityRegion: "US",
		},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return cat
}

func TestRateForCategory(t *testing.T) {
	cat := testCatalog(t)
	amex, _ := cat.Get("american_express_gold_card")
	ink, _ := cat.Get("chase_ink_business_preferred")
	discover, _ := cat.Get("discover_it_cash_back")

	tests := []struct {
		name     string
		card     *domain.Card
		category string
		want     float64
	}{
		{"ExactBonusMatch", amex, "dining", 4.0},
		{"NonBonusFallsBackToBase", amex, "other", 1.0},
		{"OnlineShoppingAlias", ink, "online_shopping", 3.0},
		{"RotatingKey", discover, "rotating", 5.0},
		{"RotatingDoesNotLeak", discover, "dining", 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RateForCategory(tc.card, tc.category); got != tc.want {
				t.Errorf("RateForCategory(%s, %s) = %.2f, want %.2f", tc.card.ID, tc.category, got, tc.want)
			}
		})
	}
}

func TestRewardForUncappedNonBonus(t *testing.T) {
	// Zero-fee card, no cap, category "other": applicable rate must be
	// exactly the base rate.
	cat := testCatalog(t)
	citi, _ := cat.Get("citi_double_cash_card")
	calc := NewCalculator(cat, 0)

	r := calc.RewardFor(citi, 100, "other")
	if r.ApplicableRate != citi.BaseRatePct {
		t.Errorf("expected applicable rate %.2f, got %.2f", citi.BaseRatePct, r.ApplicableRate)
	}
	if r.AnnualFee != 0 || r.NetBenefit != r.RewardAmount {
		t.Errorf("zero-fee card should have no amortization: %+v", r)
	}
}

func TestRewardForBonusCap(t *testing.T) {
	cat := testCatalog(t)
	amex, _ := cat.Get("american_express_gold_card")
	calc := NewCalculator(cat, 0)

	// cap units = 25000 * 4 / 100 = 1000 points; $250 dining earns
	// 1000 points, exactly at the cap.
	atCap := calc.RewardFor(amex, 250, "dining")
	if math.Abs(atCap.RewardUnits-1000) > 1e-9 {
		t.Errorf("expected 1000 units at cap, got %.2f", atCap.RewardUnits)
	}

	t.Run("ExcessEarnsAtBaseRate", func(t *testing.T) {
		// $500 would earn 2000 raw points; the 1000 excess blends at
		// base/bonus = 1/4: 1000 + 1000*0.25 = 1250.
		over := calc.RewardFor(amex, 500, "dining")
		if math.Abs(over.RewardUnits-1250) > 1e-9 {
			t.Errorf("expected 1250 capped units, got %.2f", over.RewardUnits)
		}
	})

	t.Run("SubLinearGrowthPastCap", func(t *testing.T) {
		below := calc.RewardFor(amex, 125, "dining")
		above := calc.RewardFor(amex, 500, "dining")
		// Below-cap growth is linear; past the cap doubling spend must
		// grow the reward strictly less than proportionally.
		if above.RewardAmount/atCap.RewardAmount >= atCap.RewardAmount/below.RewardAmount {
			t.Errorf("expected sub-linear growth past cap: below=%.2f at=%.2f above=%.2f",
				below.RewardAmount, atCap.RewardAmount, above.RewardAmount)
		}
	})

	t.Run("CapIgnoredForNonBonusCategory", func(t *testing.T) {
		r := calc.RewardFor(amex, 100000, "other")
		if math.Abs(r.RewardUnits-100000) > 1e-9 {
			t.Errorf("cap must not apply at base rate, got %.2f units", r.RewardUnits)
		}
	})
}

func TestAnalyzeTransactionDiningScenario(t *testing.T) {
	// $250 dining on a 2% flat cashback card: the AmEx Gold (4 pts/$ on
	// dining at 1.8 cents/pt) must win with a positive gap.
	calc := NewCalculator(testCatalog(t), 0)

	analysis, err := calc.AnalyzeTransaction(250, "dining", "citi_double_cash_card")
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}

	if analysis.BestCardReward.CardID != "american_express_gold_card" {
		t.Errorf("expected amex gold best, got %s", analysis.BestCardReward.CardID)
	}
	if analysis.ExtraRewardAmt <= 0 {
		t.Errorf("expected positive extra reward, got %.4f", analysis.ExtraRewardAmt)
	}
	if analysis.RewardGapPct <= 0 {
		t.Errorf("expected positive reward gap, got %.2f", analysis.RewardGapPct)
	}
	if analysis.CurrentCardReward == nil {
		t.Fatal("current card should resolve")
	}

	t.Run("BestDominatesAll", func(t *testing.T) {
		for _, r := range analysis.AllCardRewards {
			if r.RewardAmount > analysis.BestCardReward.RewardAmount {
				t.Errorf("card %s beats best: %.4f > %.4f", r.CardID, r.RewardAmount, analysis.BestCardReward.RewardAmount)
			}
		}
	})

	t.Run("SortedDescending", func(t *testing.T) {
		rewards := analysis.AllCardRewards
		for i := 1; i < len(rewards); i++ {
			if rewards[i-1].RewardAmount < rewards[i].RewardAmount {
				t.Errorf("rewards not sorted at %d", i)
			}
		}
	})

	t.Run("NumBetterCards", func(t *testing.T) {
		count := 0
		for _, r := range analysis.AllCardRewards {
			if r.RewardAmount > analysis.CurrentCardReward.RewardAmount {
				count++
			}
		}
		if analysis.NumBetterCards != count {
			t.Errorf("NumBetterCards = %d, want %d", analysis.NumBetterCards, count)
		}
	})
}

func TestAnalyzeTransactionGapNeverNegative(t *testing.T) {
	calc := NewCalculator(testCatalog(t), 0)

	for _, category := range []string{"dining", "travel", "groceries", "gas", "other", "rotating"} {
		for _, current := range []string{"citi_double_cash_card", "american_express_gold_card", "discover_it_cash_back"} {
			analysis, err := calc.AnalyzeTransaction(80, category, current)
			if err != nil {
				t.Fatalf("AnalyzeTransaction failed: %v", err)
			}
			if analysis.RewardGapPct < 0 {
				t.Errorf("%s/%s: negative gap %.2f", category, current, analysis.RewardGapPct)
			}
		}
	}
}

func TestAnalyzeTransactionUnknownCurrentCard(t *testing.T) {
	calc := NewCalculator(testCatalog(t), 0)

	analysis, err := calc.AnalyzeTransaction(100, "dining", "card_nobody_has_heard_of")
	if err != nil {
		t.Fatalf("unknown current card must not be an error: %v", err)
	}
	if analysis.CurrentCardReward != nil {
		t.Error("unknown card should resolve to no current card")
	}
	if analysis.RewardGapPct != 0 {
		t.Errorf("expected gap 0 without baseline, got %.2f", analysis.RewardGapPct)
	}
	if analysis.ExtraRewardAmt != analysis.BestCardReward.RewardAmount {
		t.Errorf("extra reward should be the full best reward, got %.4f", analysis.ExtraRewardAmt)
	}
	if analysis.NumBetterCards != len(analysis.AllCardRewards) {
		t.Errorf("expected all %d cards counted, got %d", len(analysis.AllCardRewards), analysis.NumBetterCards)
	}
}

func TestAnalyzeTransactionZeroAmount(t *testing.T) {
	calc := NewCalculator(testCatalog(t), 0)

	analysis, err := calc.AnalyzeTransaction(0, "dining", "citi_double_cash_card")
	if err != nil {
		t.Fatalf("zero amount must be handled gracefully: %v", err)
	}
	if analysis.RewardGapPct != 0 {
		t.Errorf("zero current reward must short-circuit gap to 0, got %.2f", analysis.RewardGapPct)
	}
	for _, r := range analysis.AllCardRewards {
		if r.RewardAmount != 0 {
			t.Errorf("card %s earned %.4f on zero spend", r.CardID, r.RewardAmount)
		}
	}
}

func TestAnalyzeTransactionEmptyCatalog(t *testing.T) {
	calc := NewCalculator(nil, 0)
	if _, err := calc.AnalyzeTransaction(100, "dining", ""); !errors.Is(err, catalog.ErrEmpty) {
		t.Errorf("expected ErrEmpty configuration error, got %v", err)
	}
}

func TestNetBenefitAmortization(t *testing.T) {
	cat := testCatalog(t)
	amex, _ := cat.Get("american_express_gold_card")
	calc := NewCalculator(cat, 1000)

	// 12 * $1000 baseline / $100 txn = 120 txns/year; $250 fee spread
	// over 120 txns is ~$2.08 per transaction.
	r := calc.RewardFor(amex, 100, "dining")
	wantShare := 250.0 / 120.0
	if math.Abs((r.RewardAmount-r.NetBenefit)-wantShare) > 1e-9 {
		t.Errorf("fee share = %.4f, want %.4f", r.RewardAmount-r.NetBenefit, wantShare)
	}
}
