//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel reward
// scoring engine.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Transaction → Reward Analysis → Trigger/Action → Recommendation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: A single spend event (amount, category, current card)
//
// 2. REWARD ANALYSIS: Every catalog card is scored for the transaction.
//    The applicable rate is max(base rate, category bonus rate); points
//    and miles convert to dollars at the card's point value.
//
// 3. TRIGGER: Decides whether the reward gap is worth interrupting the
//    user for. Users inside a cooldown window are never re-notified.
//
// 4. ACTION: An ordered rule cascade picks add/switch/none for the
//    best card, with a confidence score and the matched rule tag.
//
// REQUIRED DATA (seeded automatically on first start):
//
// The server must be running with the default card catalog loaded from
// data/card_catalog.csv. These tests assume the stock 12-card catalog:
//
// | Card ID                     | Type     | Notable rates              |
// |-----------------------------|----------|----------------------------|
// | american_express_gold_card  | points   | 4x dining/groceries, 1.8c  |
// | citi_double_cash_card       | cashback | 2% flat                    |
// | chase_sapphire_reserve      | points   | 3x travel/dining, 1.5c     |
// | wells_fargo_active_cash_card| cashback | 2% flat                    |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type TransactionInfo struct {
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	CurrentCardID string  `json:"currentCardId,omitempty"`
}

type CardReward struct {
	CardID       string  `json:"cardId"`
	RewardAmount float64 `json:"rewardAmount"`
	RewardType   string  `json:"rewardType"`
}

type AnalyzeResponse struct {
	TransactionAmount   float64     `json:"transactionAmount"`
	TransactionCategory string      `json:"transactionCategory"`
	CurrentCardReward   *CardReward `json:"currentCardReward"`
	BestCardReward      CardReward  `json:"bestCardReward"`
	RewardGapPct        float64     `json:"rewardGapPct"`
	ExtraRewardAmt      float64     `json:"extraRewardAmt"`
	NumBetterCards      int         `json:"numBetterCards"`
	AllCardRewards      []CardReward `json:"allCardRewards"`
}

type TriggerResponse struct {
	Recommend       bool    `json:"recommendFlag"`
	Confidence      float64 `json:"confidenceScore"`
	SuggestedCardID string  `json:"suggestedCardId"`
	ExtraReward     float64 `json:"extraReward"`
	Reasoning       string  `json:"reasoning"`
}

type ActionResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Action     string         `json:"action"`
	CardID     string         `json:"cardId"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

type RankingResponse struct {
	Rankings []struct {
		CardID string  `json:"cardId"`
		Score  float64 `json:"rankingScore"`
	} `json:"rankings"`
	Count int `json:"count"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, config TestConfig, path string, reqBody any, out any) int {
	t.Helper()

	body, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}

	return resp.StatusCode
}

// ============================================================================
// SCENARIO 1: Suboptimal Dining Transaction
// ============================================================================

func TestDiningOnFlatCashback_BetterCardFound(t *testing.T) {
	/*
	   SCENARIO: A $100 dining charge on a 2% flat cashback card

	   EXPECTED BEHAVIOR:
	   - Citi Double Cash earns $2.00 (2% of $100)
	   - Amex Gold earns 400 points worth $7.20 (4x at 1.8c/pt)
	   - Gap: (7.20 - 2.00) / 2.00 = 260%
	   - Several catalog cards beat 2% on dining

	   WHY THIS MATTERS:
	   This is the core product loop: find the reward value the user is
	   leaving on the table on every single purchase.
	*/
	config := getTestConfig()

	var analysis AnalyzeResponse
	status := postJSON(t, config, "/api/v1/analyze-transaction", map[string]any{
		"transaction": TransactionInfo{
			Amount:        100.00,
			Category:      "dining",
			CurrentCardID: "citi_double_cash_card",
		},
	}, &analysis)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if analysis.BestCardReward.CardID != "american_express_gold_card" {
		t.Errorf("Expected amex gold as best dining card, got %s", analysis.BestCardReward.CardID)
	}

	if analysis.ExtraRewardAmt < 5.0 {
		t.Errorf("Expected extra reward above $5, got %.2f", analysis.ExtraRewardAmt)
	}

	if analysis.NumBetterCards < 1 {
		t.Errorf("Expected at least one better card, got %d", analysis.NumBetterCards)
	}

	// The full list must be sorted by reward, best first.
	for i := 1; i < len(analysis.AllCardRewards); i++ {
		if analysis.AllCardRewards[i-1].RewardAmount < analysis.AllCardRewards[i].RewardAmount {
			t.Error("AllCardRewards not sorted descending by reward amount")
			break
		}
	}

	t.Logf("✓ Dining analysis: best=%s, gap=%.1f%%, extra=$%.2f",
		analysis.BestCardReward.CardID, analysis.RewardGapPct, analysis.ExtraRewardAmt)
}

// ============================================================================
// SCENARIO 2: Already Optimal
// ============================================================================

func TestDiningOnBestCard_NothingBetter(t *testing.T) {
	/*
	   SCENARIO: The same $100 dining charge, already on the Amex Gold

	   EXPECTED BEHAVIOR:
	   - No card strictly beats 4x dining at 1.8c
	   - numBetterCards = 0, extra reward ≈ 0
	*/
	config := getTestConfig()

	var analysis AnalyzeResponse
	status := postJSON(t, config, "/api/v1/analyze-transaction", map[string]any{
		"transaction": TransactionInfo{
			Amount:        100.00,
			Category:      "dining",
			CurrentCardID: "american_express_gold_card",
		},
	}, &analysis)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if analysis.NumBetterCards != 0 {
		t.Errorf("Expected no better cards, got %d", analysis.NumBetterCards)
	}

	if analysis.ExtraRewardAmt > 0.001 {
		t.Errorf("Expected zero extra reward, got %.4f", analysis.ExtraRewardAmt)
	}

	t.Logf("✓ Optimal card confirmed: best=%s", analysis.BestCardReward.CardID)
}

// ============================================================================
// SCENARIO 3: Trigger Classification and Cooldown
// ============================================================================

func TestTriggerCooldown_SecondCallSuppressed(t *testing.T) {
	/*
	   SCENARIO: Two back-to-back suboptimal transactions for one user

	   EXPECTED BEHAVIOR:
	   - First call: 260% gap → recommend with capped confidence 0.9
	   - Second call: user is in cooldown → no recommendation, zero
	     confidence, cooldown reasoning

	   WHY THIS MATTERS:
	   Without the cooldown every coffee would ping the user. The window
	   is per user, so other users are unaffected.
	*/
	config := getTestConfig()

	userID := fmt.Sprintf("it-cooldown-%d", time.Now().UnixNano())
	reqBody := map[string]any{
		"userId": userID,
		"transaction": TransactionInfo{
			Amount:        100.00,
			Category:      "dining",
			CurrentCardID: "citi_double_cash_card",
		},
	}

	var first TriggerResponse
	if status := postJSON(t, config, "/api/v1/trigger-classify", reqBody, &first); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if !first.Recommend {
		t.Fatalf("Expected first call to recommend, got reasoning %q", first.Reasoning)
	}
	if first.Confidence != 0.9 {
		t.Errorf("Expected confidence capped at 0.9, got %.2f", first.Confidence)
	}

	var second TriggerResponse
	if status := postJSON(t, config, "/api/v1/trigger-classify", reqBody, &second); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if second.Recommend {
		t.Error("Expected cooldown to suppress the second recommendation")
	}
	if second.Reasoning != "User in cooldown period" {
		t.Errorf("Expected cooldown reasoning, got %q", second.Reasoning)
	}

	t.Logf("✓ Cooldown verified: first=%.2f, second suppressed", first.Confidence)
}

// ============================================================================
// SCENARIO 4: Action Selection
// ============================================================================

func TestSelectAction_CategorySpecialization(t *testing.T) {
	/*
	   SCENARIO: Dining spend with no dining specialist in the wallet

	   EXPECTED BEHAVIOR:
	   - category_specialization rule fires (dining is high value, no
	     specialist owned) → "add" the best dining card at 0.9
	*/
	config := getTestConfig()

	var rec ActionResponse
	status := postJSON(t, config, "/api/v1/select-action", map[string]any{
		"userId": fmt.Sprintf("it-action-%d", time.Now().UnixNano()),
		"transaction": TransactionInfo{
			Amount:        100.00,
			Category:      "dining",
			CurrentCardID: "citi_double_cash_card",
		},
		"ownedCardIds": []string{"citi_double_cash_card"},
	}, &rec)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if rec.Action != "add" {
		t.Errorf("Expected add, got %s", rec.Action)
	}
	if rec.CardID != "american_express_gold_card" {
		t.Errorf("Expected amex gold, got %s", rec.CardID)
	}
	if rec.Metadata["rule"] != "category_specialization" {
		t.Errorf("Expected category_specialization rule, got %v", rec.Metadata["rule"])
	}
	if rec.ID == "" {
		t.Error("Expected a persisted recommendation id")
	}

	t.Logf("✓ Action selected: %s %s (rule=%v, confidence=%.2f)",
		rec.Action, rec.CardID, rec.Metadata["rule"], rec.Confidence)
}

// ============================================================================
// SCENARIO 5: Personalized Ranking With Eligibility Screening
// ============================================================================

func TestPersonalizedRanking_ScreensByCreditScore(t *testing.T) {
	/*
	   SCENARIO: The same spending profile ranked for two applicants

	   EXPECTED BEHAVIOR:
	   - No applicant: all 12 catalog cards ranked
	   - 620 credit score: only cards with floors at or below 620 remain
	     (the Discover cards and Wells Fargo, floors 580-600)
	*/
	config := getTestConfig()

	pattern := map[string]float64{
		"dining":    800,
		"groceries": 400,
		"gas":       100,
	}

	var unscreened RankingResponse
	status := postJSON(t, config, "/api/v1/personalized-ranking", map[string]any{
		"userId":          "it-ranking-001",
		"spendingPattern": pattern,
	}, &unscreened)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	var screened RankingResponse
	status = postJSON(t, config, "/api/v1/personalized-ranking", map[string]any{
		"userId":          "it-ranking-001",
		"spendingPattern": pattern,
		"applicant":       map[string]any{"creditScore": 620, "region": "US"},
	}, &screened)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if screened.Count >= unscreened.Count {
		t.Errorf("Expected screening to shrink the list: %d vs %d",
			screened.Count, unscreened.Count)
	}

	for _, rc := range screened.Rankings {
		if rc.CardID == "chase_sapphire_reserve" || rc.CardID == "american_express_gold_card" {
			t.Errorf("High-floor card %s should be screened out at 620", rc.CardID)
		}
	}

	t.Logf("✓ Screening verified: %d cards unscreened, %d at 620 score",
		unscreened.Count, screened.Count)
}

// ============================================================================
// SCENARIO 6: Reward Estimation
// ============================================================================

func TestEstimateRewards_Annualizes(t *testing.T) {
	/*
	   SCENARIO: $3,000 of dining projected over 6 months on the Amex Gold

	   EXPECTED BEHAVIOR:
	   - 4x points at 1.8c on $3,000 = $216 over the horizon
	   - Annualized: 216 * 12 / 6 = $432
	*/
	config := getTestConfig()

	var estimate struct {
		CardID                string             `json:"cardId"`
		EstimatedAnnualReward float64            `json:"estimatedAnnualReward"`
		CategoryBreakdown     map[string]float64 `json:"categoryBreakdown"`
	}
	status := postJSON(t, config, "/api/v1/estimate-rewards", map[string]any{
		"cardId":            "american_express_gold_card",
		"projectedSpending": map[string]float64{"dining": 3000},
		"horizonMonths":     6,
	}, &estimate)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if estimate.EstimatedAnnualReward < 431.9 || estimate.EstimatedAnnualReward > 432.1 {
		t.Errorf("Expected annualized reward ~432, got %.2f", estimate.EstimatedAnnualReward)
	}

	t.Logf("✓ Estimate: $%.2f/year from dining", estimate.EstimatedAnnualReward)
}

func TestEstimateRewards_UnknownCard(t *testing.T) {
	config := getTestConfig()

	status := postJSON(t, config, "/api/v1/estimate-rewards", map[string]any{
		"cardId":            "no_such_card",
		"projectedSpending": map[string]float64{"dining": 3000},
	}, nil)

	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown card, got %d", status)
	}
}

// ============================================================================
// SCENARIO 7: Portfolio Optimization
// ============================================================================

func TestOptimizePortfolio_SmallPortfolio(t *testing.T) {
	/*
	   SCENARIO: A one-card portfolio with meaningful category spend

	   EXPECTED BEHAVIOR:
	   - Fewer than 3 cards → the optimizer proposes the best-ranked
	     non-owned cards as adds
	   - Optimized score >= current score, both within [0, 1]
	*/
	config := getTestConfig()

	var review struct {
		Suggestions []struct {
			Action string  `json:"action"`
			CardID string  `json:"cardId"`
			Impact float64 `json:"impactScore"`
		} `json:"recommendations"`
		CurrentScore   float64 `json:"currentPortfolioScore"`
		OptimizedScore float64 `json:"optimizedPortfolioScore"`
	}
	status := postJSON(t, config, "/api/v1/optimize-portfolio", map[string]any{
		"currentCards":    []string{"citi_double_cash_card"},
		"spendingPattern": map[string]float64{"dining": 800, "groceries": 400},
	}, &review)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if len(review.Suggestions) == 0 {
		t.Fatal("Expected add suggestions for a one-card portfolio")
	}
	for _, s := range review.Suggestions {
		if s.Action != "add" {
			t.Errorf("Expected only adds for a small fee-free portfolio, got %s", s.Action)
		}
	}
	if review.OptimizedScore < review.CurrentScore {
		t.Error("Optimized score must not regress")
	}
	if review.OptimizedScore > 1.0 {
		t.Errorf("Optimized score must be clamped to 1.0, got %.4f", review.OptimizedScore)
	}

	t.Logf("✓ Portfolio review: %.2f → %.2f with %d suggestions",
		review.CurrentScore, review.OptimizedScore, len(review.Suggestions))
}

// ============================================================================
// SCENARIO 8: Input Validation
// ============================================================================

func TestMissingCategory_Error(t *testing.T) {
	config := getTestConfig()

	status := postJSON(t, config, "/api/v1/analyze-transaction", map[string]any{
		"transaction": map[string]any{"amount": 100.0},
	}, nil)

	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing category, got %d", status)
	}
}

func TestMissingUserID_Error(t *testing.T) {
	config := getTestConfig()

	status := postJSON(t, config, "/api/v1/trigger-classify", map[string]any{
		"transaction": TransactionInfo{Amount: 100, Category: "dining"},
	}, nil)

	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing userId, got %d", status)
	}
}

// ============================================================================
// SCENARIO 9: Trace Propagation
// ============================================================================

func TestTraceHeaders(t *testing.T) {
	/*
	   SCENARIO: Every response carries request and trace identifiers

	   This ensures the observability contract is stable for clients.
	*/
	config := getTestConfig()

	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Missing X-Request-ID header")
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("Missing X-Trace-ID header")
	}

	t.Logf("✓ Trace headers present: request=%s", resp.Header.Get("X-Request-ID"))
}
