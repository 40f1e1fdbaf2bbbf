package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Create tables if they don't exist
	if err := CreateTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// schema lists the table definitions in dependency order. Offers and
// purchases reference intents without ON DELETE CASCADE so a referenced
// intent cannot be deleted.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		password VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL CHECK (role IN ('consumer', 'producer')),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS intents (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		budget_min DOUBLE PRECISION CHECK (budget_min >= 0),
		budget_max DOUBLE PRECISION CHECK (budget_max >= 0),
		features TEXT[] NOT NULL DEFAULT '{}',
		brands TEXT[] NOT NULL DEFAULT '{}',
		category TEXT,
		region TEXT,
		status VARCHAR(16) NOT NULL CHECK (status IN ('active', 'completed', 'expired')),
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (budget_min IS NULL OR budget_max IS NULL OR budget_min < budget_max)
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		id VARCHAR(36) PRIMARY KEY,
		intent_id VARCHAR(36) NOT NULL REFERENCES intents(id),
		producer_id VARCHAR(36) NOT NULL REFERENCES users(id),
		company TEXT NOT NULL,
		product TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL CHECK (price > 0),
		original_price DOUBLE PRECISION,
		expires_at TIMESTAMPTZ,
		status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'declined', 'expired')),
		decline_reason TEXT,
		decided_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (original_price IS NULL OR original_price > price)
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id VARCHAR(36) PRIMARY KEY,
		intent_id VARCHAR(36) NOT NULL UNIQUE REFERENCES intents(id),
		offer_id VARCHAR(36) REFERENCES offers(id),
		user_id VARCHAR(36) NOT NULL REFERENCES users(id),
		completed_at TIMESTAMPTZ NOT NULL,
		details JSONB NOT NULL DEFAULT '{}'
	)`,
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_intents_user_id ON intents(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_intents_status_created ON intents(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_offers_intent_id ON offers(intent_id)",
		"CREATE INDEX IF NOT EXISTS idx_offers_producer_id ON offers(producer_id)",
		"CREATE INDEX IF NOT EXISTS idx_offers_pending_expiry ON offers(expires_at) WHERE status = 'pending'",
		"CREATE INDEX IF NOT EXISTS idx_purchases_user_id ON purchases(user_id)",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
