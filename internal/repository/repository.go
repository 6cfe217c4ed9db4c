// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCard upserts a catalog card.
func (r *SQLRepository) SaveCard(ctx context.Context, card *domain.Card) error {
	if card == nil || card.ID == "" {
		return fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}

	bonusCategories, _ := json.Marshal(card.BonusCategories)

	updatedAt := card.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO cards (
			id, issuer, network, reward_type, base_rate_pct, bonus_categories,
			bonus_cap_amt, annual_fee, signup_bonus_value, signup_req_spend,
			foreign_tx_fee_pct, point_value_cent, credit_score_min,
			eligibility_region, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issuer = excluded.issuer,
			network = excluded.network,
			reward_type = excluded.reward_type,
			base_rate_pct = excluded.base_rate_pct,
			bonus_categories = excluded.bonus_categories,
			bonus_cap_amt = excluded.bonus_cap_amt,
			annual_fee = excluded.annual_fee,
			signup_bonus_value = excluded.signup_bonus_value,
			signup_req_spend = excluded.signup_req_spend,
			foreign_tx_fee_pct = excluded.foreign_tx_fee_pct,
			point_value_cent = excluded.point_value_cent,
			credit_score_min = excluded.credit_score_min,
			eligibility_region = excluded.eligibility_region,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		card.ID, card.Issuer, card.Network, string(card.RewardType),
		card.BaseRatePct, string(bonusCategories),
		card.BonusCapAmt, card.AnnualFee, card.SignupBonusValue, card.SignupReqSpend,
		card.ForeignTxFeePct, card.PointValueCent, card.CreditScoreMin,
		card.EligibilityRegion, updatedAt,
	)
	return err
}

// GetCard retrieves a card by id.
func (r *SQLRepository) GetCard(ctx context.Context, cardID string) (*domain.Card, error) {
	query := `
		SELECT id, issuer, network, reward_type, base_rate_pct, bonus_categories,
			   bonus_cap_amt, annual_fee, signup_bonus_value, signup_req_spend,
			   foreign_tx_fee_pct, point_value_cent, credit_score_min,
			   eligibility_region, updated_at
		FROM cards
		WHERE id = ?
	`

	card, err := scanCard(r.db.QueryRowContext(ctx, r.rebind(query), cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards retrieves all cards ordered by id.
func (r *SQLRepository) ListCards(ctx context.Context) ([]*domain.Card, error) {
	query := `
		SELECT id, issuer, network, reward_type, base_rate_pct, bonus_categories,
			   bonus_cap_amt, annual_fee, signup_bonus_value, signup_req_spend,
			   foreign_tx_fee_pct, point_value_cent, credit_score_min,
			   eligibility_region, updated_at
		FROM cards
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	return cards, rows.Err()
}

// DeleteCard removes a card from the catalog.
func (r *SQLRepository) DeleteCard(ctx context.Context, cardID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM cards WHERE id = ?`), cardID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (*domain.Card, error) {
	var card domain.Card
	var rewardType, bonusCategories string
	var network, region sql.NullString

	err := row.Scan(
		&card.ID, &card.Issuer, &network, &rewardType,
		&card.BaseRatePct, &bonusCategories,
		&card.BonusCapAmt, &card.AnnualFee, &card.SignupBonusValue, &card.SignupReqSpend,
		&card.ForeignTxFeePct, &card.PointValueCent, &card.CreditScoreMin,
		&region, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.Network = network.String
	card.EligibilityRegion = region.String
	card.RewardType = rewardType
	if err := json.Unmarshal([]byte(bonusCategories), &card.BonusCategories); err != nil {
		return nil, fmt.Errorf("failed to parse bonus categories for %s: %w", card.ID, err)
	}

	return &card, nil
}

// SaveScreenRule upserts an eligibility screen rule.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, rule *domain.ScreenRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO screen_rules (
			id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, enabled,
		createdAt, now,
	)
	return err
}

// GetScreenRule retrieves a screen rule by id.
func (r *SQLRepository) GetScreenRule(ctx context.Context, ruleID string) (*domain.ScreenRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM screen_rules
		WHERE id = ?
	`

	var rule domain.ScreenRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListScreenRules retrieves all enabled screen rules.
func (r *SQLRepository) ListScreenRules(ctx context.Context) ([]*domain.ScreenRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM screen_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreenRule
	for rows.Next() {
		var rule domain.ScreenRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveRecommendation stores an issued recommendation for the audit trail.
func (r *SQLRepository) SaveRecommendation(ctx context.Context, rec *domain.ActionRecommendation) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: recommendation id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(rec.Metadata)

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO recommendations (
			id, user_id, action, card_id, reasoning, confidence, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.UserID, string(rec.Action), rec.CardID,
		rec.Reasoning, rec.Confidence, string(metadata), createdAt,
	)
	return err
}

// GetRecommendation retrieves a recommendation by id.
func (r *SQLRepository) GetRecommendation(ctx context.Context, recID string) (*domain.ActionRecommendation, error) {
	query := `
		SELECT id, user_id, action, card_id, reasoning, confidence, metadata, created_at
		FROM recommendations
		WHERE id = ?
	`

	var rec domain.ActionRecommendation
	var action, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), recID).Scan(
		&rec.ID, &rec.UserID, &action, &rec.CardID,
		&rec.Reasoning, &rec.Confidence, &metadata, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Action = domain.ActionType(action)
	json.Unmarshal([]byte(metadata), &rec.Metadata)

	return &rec, nil
}

// ListRecommendationsByUser retrieves a user's recommendations since a
// timestamp, newest first.
func (r *SQLRepository) ListRecommendationsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.ActionRecommendation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, action, card_id, reasoning, confidence, metadata, created_at
		FROM recommendations
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.ActionRecommendation
	for rows.Next() {
		var rec domain.ActionRecommendation
		var action, metadata string

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &action, &rec.CardID,
			&rec.Reasoning, &rec.Confidence, &metadata, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.Action = domain.ActionType(action)
		json.Unmarshal([]byte(metadata), &rec.Metadata)
		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
