package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    issuer TEXT NOT NULL,
    network TEXT,
    reward_type TEXT NOT NULL,
    base_rate_pct REAL NOT NULL,
    bonus_categories TEXT NOT NULL,
    bonus_cap_amt REAL NOT NULL DEFAULT 0,
    annual_fee REAL NOT NULL DEFAULT 0,
    signup_bonus_value REAL NOT NULL DEFAULT 0,
    signup_req_spend REAL NOT NULL DEFAULT 0,
    foreign_tx_fee_pct REAL NOT NULL DEFAULT 0,
    point_value_cent REAL NOT NULL DEFAULT 1.0,
    credit_score_min INTEGER NOT NULL DEFAULT 0,
    eligibility_region TEXT,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_issuer ON cards(issuer);
CREATE INDEX IF NOT EXISTS idx_cards_reward_type ON cards(reward_type);
`

const schemaScreenRules = `
CREATE TABLE IF NOT EXISTS screen_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_rules_enabled ON screen_rules(enabled);
`

const schemaRecommendations = `
CREATE TABLE IF NOT EXISTS recommendations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    action TEXT NOT NULL,
    card_id TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    confidence REAL NOT NULL,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(user_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCards,
		schemaScreenRules,
		schemaRecommendations,
	}
}
