// Package catalog loads and validates the card reference data.
//
// The catalog is parsed once at startup from a tabular source (CSV file
// or repository rows) into an immutable in-memory collection. Scoring
// code treats it as read-only for the life of the process.
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrEmpty is returned when a load produces no usable cards. An empty
// catalog is a configuration error: reward analysis is undefined without
// at least one card.
var ErrEmpty = errors.New("card catalog is empty")

// Violation describes a single validation failure for a catalog row.
type Violation struct {
	Row     int    `json:"row"` // 1-based data row number
	CardID  string `json:"cardId,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("row %d (%s): %s: %s", v.Row, v.CardID, v.Field, v.Message)
}

// ValidationError aggregates row violations. In strict mode a load
// returns it as the error; in lenient mode violating rows are skipped
// and the violations are reported alongside the loaded catalog.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "catalog validation failed: " + e.Violations[0].String()
	}
	return fmt.Sprintf("catalog validation failed: %d violations (first: %s)",
		len(e.Violations), e.Violations[0].String())
}

// Catalog is the validated, immutable card collection.
type Catalog struct {
	cards []*domain.Card
	byID  map[string]*domain.Card
}

// Options control catalog loading.
type Options struct {
	// Strict aborts the whole load on the first bad row instead of
	// skipping it.
	Strict bool
}

// Load parses CSV card data from r.
//
// In lenient mode (default) each bad row fails only that card: the row is
// skipped and its violations are collected in the returned slice. In
// strict mode any bad row aborts the load with a *ValidationError.
func Load(r io.Reader, opts Options) (*Catalog, []Violation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("catalog header missing column %q", required)
		}
	}

	var (
		cards      []*domain.Card
		violations []Violation
	)

	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			v := Violation{Row: row, Field: "-", Message: err.Error()}
			if opts.Strict {
				return nil, nil, &ValidationError{Violations: []Violation{v}}
			}
			violations = append(violations, v)
			continue
		}

		card, rowViolations := parseRow(row, record, col)
		if len(rowViolations) > 0 {
			if opts.Strict {
				return nil, nil, &ValidationError{Violations: rowViolations}
			}
			violations = append(violations, rowViolations...)
			continue
		}
		cards = append(cards, card)
	}

	cat, err := FromCards(cards)
	if err != nil {
		return nil, violations, err
	}
	return cat, violations, nil
}

// LoadFile loads a catalog from a CSV file on disk.
func LoadFile(path string, opts Options) (*Catalog, []Violation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// FromCards builds a catalog from already-decoded cards, e.g. repository
// rows. Returns ErrEmpty when no cards are supplied.
func FromCards(cards []*domain.Card) (*Catalog, error) {
	if len(cards) == 0 {
		return nil, ErrEmpty
	}
	byID := make(map[string]*domain.Card, len(cards))
	ordered := make([]*domain.Card, 0, len(cards))
	for _, c := range cards {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = c
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Catalog{cards: ordered, byID: byID}, nil
}

// Cards returns the catalog entries ordered by card id. Callers must not
// mutate the returned cards.
func (c *Catalog) Cards() []*domain.Card {
	return c.cards
}

// Get looks up a card by id.
func (c *Catalog) Get(cardID string) (*domain.Card, bool) {
	card, ok := c.byID[cardID]
	return card, ok
}

// Len returns the number of cards in the catalog.
func (c *Catalog) Len() int {
	return len(c.cards)
}

var requiredColumns = []string{
	"card_id", "issuer", "network", "reward_type", "base_rate_pct",
	"bonus_categories", "bonus_cap_amt", "annual_fee", "signup_bonus_value",
	"signup_req_spend", "foreign_tx_fee_pct", "point_value_cent",
	"credit_score_min", "eligibility_region",
}

// Sanity bounds. base_rate_pct has a generous upper bound, not a hard
// domain limit; credit scores follow the FICO range.
const (
	maxBaseRatePct = 10.0
	minCreditScore = 300
	maxCreditScore = 850
)

func parseRow(row int, record []string, col map[string]int) (*domain.Card, []Violation) {
	var violations []Violation

	get := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	cardID := get("card_id")
	fail := func(field, msg string) {
		violations = append(violations, Violation{Row: row, CardID: cardID, Field: field, Message: msg})
	}

	for _, name := range requiredColumns {
		if get(name) == "" && name != "bonus_categories" {
			fail(name, "required field is empty")
		}
	}

	num := func(field string) float64 {
		raw := get(field)
		if raw == "" {
			return 0
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fail(field, "not a number: "+raw)
			return 0
		}
		return val
	}

	card := &domain.Card{
		ID:                cardID,
		Issuer:            get("issuer"),
		Network:           get("network"),
		RewardType:        get("reward_type"),
		BaseRatePct:       num("base_rate_pct"),
		BonusCapAmt:       num("bonus_cap_amt"),
		AnnualFee:         num("annual_fee"),
		SignupBonusValue:  num("signup_bonus_value"),
		SignupReqSpend:    num("signup_req_spend"),
		ForeignTxFeePct:   num("foreign_tx_fee_pct"),
		PointValueCent:    num("point_value_cent"),
		EligibilityRegion: get("eligibility_region"),
	}

	if raw := get("credit_score_min"); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			fail("credit_score_min", "not an integer: "+raw)
		} else {
			card.CreditScoreMin = score
		}
	}

	if raw := get("updated_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			card.UpdatedAt = ts
		}
	}

	// The bonus-category cell holds a serialized category→rate mapping.
	// Decode it once here; it is never re-parsed per request.
	bonus, err := decodeBonusCategories(get("bonus_categories"))
	if err != nil {
		fail("bonus_categories", err.Error())
	} else {
		card.BonusCategories = bonus
	}

	violations = append(violations, validateCard(row, card)...)
	if len(violations) > 0 {
		return nil, violations
	}
	return card, nil
}

func decodeBonusCategories(raw string) (map[string]float64, error) {
	if raw == "" || raw == "{}" {
		return map[string]float64{}, nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("bonus categories must decode to a category→rate mapping: %v", err)
	}
	return out, nil
}

func validateCard(row int, card *domain.Card) []Violation {
	var violations []Violation
	fail := func(field, msg string) {
		violations = append(violations, Violation{Row: row, CardID: card.ID, Field: field, Message: msg})
	}

	if card.AnnualFee < 0 {
		fail("annual_fee", fmt.Sprintf("must be >= 0, got %.2f", card.AnnualFee))
	}
	if card.BaseRatePct < 0 || card.BaseRatePct > maxBaseRatePct {
		fail("base_rate_pct", fmt.Sprintf("must be within [0, %.0f], got %.2f", maxBaseRatePct, card.BaseRatePct))
	}
	if card.CreditScoreMin < minCreditScore || card.CreditScoreMin > maxCreditScore {
		fail("credit_score_min", fmt.Sprintf("must be within [%d, %d], got %d", minCreditScore, maxCreditScore, card.CreditScoreMin))
	}
	switch card.RewardType {
	case domain.RewardCashback, domain.RewardPoints, domain.RewardMiles:
	default:
		fail("reward_type", "must be cashback, points, or miles")
	}
	return violations
}
