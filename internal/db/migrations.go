package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'escrow_status') THEN
			CREATE TYPE escrow_status AS ENUM ('PENDING', 'IN_PROGRESS', 'RELEASED', 'REFUNDED', 'DISPUTED', 'EXPIRED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'milestone_status') THEN
			CREATE TYPE milestone_status AS ENUM ('NOT_STARTED', 'SUBMITTED', 'APPROVED', 'DISPUTED', 'RESOLVED', 'REJECTED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS escrow_counter (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		next_id BIGINT NOT NULL
	);`,
	`INSERT INTO escrow_counter (id, next_id) VALUES (1, 1) ON CONFLICT (id) DO NOTHING;`,
	`CREATE TABLE IF NOT EXISTS escrows (
		id BIGINT PRIMARY KEY CHECK (id > 0),
		depositor TEXT NOT NULL,
		beneficiary TEXT,
		arbiters JSONB NOT NULL DEFAULT '[]'::jsonb,
		required_confirmations INTEGER NOT NULL DEFAULT 0,
		asset TEXT,
		total_amount NUMERIC(39,0) NOT NULL CHECK (total_amount > 0),
		paid_amount NUMERIC(39,0) NOT NULL DEFAULT 0,
		platform_fee NUMERIC(39,0) NOT NULL DEFAULT 0,
		deadline BIGINT NOT NULL,
		status escrow_status NOT NULL DEFAULT 'PENDING',
		work_started BOOLEAN NOT NULL DEFAULT FALSE,
		created_seq BIGINT NOT NULL,
		milestone_count INTEGER NOT NULL,
		is_open_job BOOLEAN NOT NULL DEFAULT FALSE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		CONSTRAINT chk_escrow_paid CHECK (paid_amount >= 0 AND paid_amount <= total_amount)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_escrows_status ON escrows (status);`,
	`CREATE TABLE IF NOT EXISTS milestones (
		escrow_id BIGINT NOT NULL REFERENCES escrows(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount NUMERIC(39,0) NOT NULL,
		status milestone_status NOT NULL DEFAULT 'NOT_STARTED',
		submitted_at BIGINT NOT NULL DEFAULT 0,
		approved_at BIGINT NOT NULL DEFAULT 0,
		disputed_at BIGINT NOT NULL DEFAULT 0,
		disputed_by TEXT,
		dispute_reason TEXT,
		rejection_reason TEXT,
		resolution_outcome TEXT,
		resolution_beneficiary_amount NUMERIC(39,0),
		resolution_depositor_amount NUMERIC(39,0),
		resolved_by TEXT,
		resolved_at BIGINT,
		PRIMARY KEY (escrow_id, idx)
	);`,
	`CREATE TABLE IF NOT EXISTS user_escrows (
		seq BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		escrow_id BIGINT NOT NULL REFERENCES escrows(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_user_escrows_account ON user_escrows (account_id, seq);`,
	`CREATE TABLE IF NOT EXISTS custody_counters (
		asset_key TEXT PRIMARY KEY,
		escrowed NUMERIC(39,0) NOT NULL DEFAULT 0,
		accrued_fees NUMERIC(39,0) NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS account_balances (
		account_id TEXT NOT NULL,
		asset_key TEXT NOT NULL,
		amount NUMERIC(39,0) NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, asset_key)
	);`,
	`CREATE TABLE IF NOT EXISTS platform_settings (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		owner TEXT NOT NULL,
		fee_collector TEXT NOT NULL,
		platform_fee_bp INTEGER NOT NULL CHECK (platform_fee_bp BETWEEN 0 AND 1000),
		job_creation_paused BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE TABLE IF NOT EXISTS whitelisted_tokens (
		token TEXT PRIMARY KEY
	);`,
	`CREATE TABLE IF NOT EXISTS authorized_arbiters (
		account_id TEXT PRIMARY KEY
	);`,
	`CREATE TABLE IF NOT EXISTS job_applications (
		seq BIGSERIAL PRIMARY KEY,
		escrow_id BIGINT NOT NULL REFERENCES escrows(id) ON DELETE CASCADE,
		freelancer TEXT NOT NULL,
		cover_letter TEXT NOT NULL DEFAULT '',
		proposed_timeline BIGINT NOT NULL DEFAULT 0,
		applied_at BIGINT NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_job_applications_freelancer ON job_applications (escrow_id, freelancer);`,
	`CREATE TABLE IF NOT EXISTS reputations (
		account_id TEXT PRIMARY KEY,
		points BIGINT NOT NULL DEFAULT 0,
		completed_escrows BIGINT NOT NULL DEFAULT 0,
		rating_total BIGINT NOT NULL DEFAULT 0,
		rating_count BIGINT NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS ratings (
		escrow_id BIGINT PRIMARY KEY REFERENCES escrows(id) ON DELETE CASCADE,
		freelancer TEXT NOT NULL,
		client TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		review TEXT NOT NULL DEFAULT '',
		rated_at BIGINT NOT NULL
	);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
