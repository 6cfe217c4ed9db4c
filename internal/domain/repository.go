package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Card catalog operations
	SaveCard(ctx context.Context, card *Card) error
	GetCard(ctx context.Context, cardID string) (*Card, error)
	ListCards(ctx context.Context) ([]*Card, error)
	DeleteCard(ctx context.Context, cardID string) error

	// Screen rule operations
	SaveScreenRule(ctx context.Context, rule *ScreenRule) error
	GetScreenRule(ctx context.Context, ruleID string) (*ScreenRule, error)
	ListScreenRules(ctx context.Context) ([]*ScreenRule, error)

	// Issued recommendations (audit trail)
	SaveRecommendation(ctx context.Context, rec *ActionRecommendation) error
	GetRecommendation(ctx context.Context, recID string) (*ActionRecommendation, error)
	ListRecommendationsByUser(ctx context.Context, userID string, since time.Time) ([]*ActionRecommendation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
