/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
)

// schema is written in the subset of SQL shared by SQLite and Postgres.
// Timestamps are always bound from Go in UTC.
const schema = `
	-- One row per user, created lazily on first credit
	CREATE TABLE IF NOT EXISTS juice_balances (
		user_id TEXT PRIMARY KEY,
		balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		lifetime_purchased_cents BIGINT NOT NULL DEFAULT 0,
		lifetime_spent_cents BIGINT NOT NULL DEFAULT 0,
		lifetime_cashed_out_cents BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 1,
		last_activity_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- Append-only history of every balance mutation
	CREATE TABLE IF NOT EXISTS juice_ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		balance_before_cents BIGINT NOT NULL,
		balance_after_cents BIGINT NOT NULL,
		source_ref TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		exported_at TIMESTAMP,
		lease_owner TEXT,
		lease_expires_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created ON juice_ledger_entries(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_exported ON juice_ledger_entries(exported_at, created_at);

	CREATE TABLE IF NOT EXISTS juice_purchases (
		id TEXT PRIMARY KEY,
		external_ref TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		risk_score INTEGER CHECK (risk_score IS NULL OR (risk_score >= 0 AND risk_score <= 100)),
		fiat_amount_cents BIGINT NOT NULL CHECK (fiat_amount_cents > 0),
		juice_amount_cents BIGINT NOT NULL CHECK (juice_amount_cents > 0),
		settlement_delay_days INTEGER NOT NULL CHECK (settlement_delay_days >= 0 AND settlement_delay_days <= 120),
		clears_at TIMESTAMP NOT NULL,
		credited_at TIMESTAMP,
		status TEXT NOT NULL CHECK (status IN ('pending', 'clearing', 'credited', 'disputed', 'refunded')),
		lease_owner TEXT,
		lease_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_status_clears ON juice_purchases(status, clears_at);
	CREATE INDEX IF NOT EXISTS idx_purchases_user ON juice_purchases(user_id);

	CREATE TABLE IF NOT EXISTS juice_spends (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		destination TEXT NOT NULL,
		token TEXT NOT NULL,
		juice_amount_cents BIGINT NOT NULL CHECK (juice_amount_cents > 0),
		crypto_amount TEXT NOT NULL DEFAULT '',
		exchange_rate TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('pending', 'executing', 'completed', 'failed', 'refunded')),
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMP,
		next_retry_at TIMESTAMP,
		submitted_at TIMESTAMP,
		execution_ref TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		tokens_received TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMP,
		lease_owner TEXT,
		lease_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_spends_status_updated ON juice_spends(status, updated_at);
	CREATE INDEX IF NOT EXISTS idx_spends_user ON juice_spends(user_id);

	CREATE TABLE IF NOT EXISTS juice_cash_outs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		destination TEXT NOT NULL,
		token TEXT NOT NULL,
		juice_amount_cents BIGINT NOT NULL CHECK (juice_amount_cents > 0),
		crypto_amount TEXT NOT NULL DEFAULT '',
		exchange_rate TEXT NOT NULL DEFAULT '',
		available_at TIMESTAMP NOT NULL,
		cancelled_at TIMESTAMP,
		status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'cancelled', 'failed', 'refunded')),
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMP,
		next_retry_at TIMESTAMP,
		submitted_at TIMESTAMP,
		execution_ref TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		tokens_received TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMP,
		lease_owner TEXT,
		lease_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cash_outs_status_available ON juice_cash_outs(status, available_at);
	CREATE INDEX IF NOT EXISTS idx_cash_outs_user ON juice_cash_outs(user_id);

	CREATE TABLE IF NOT EXISTS pending_fiat_payments (
		id TEXT PRIMARY KEY,
		external_ref TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		destination TEXT NOT NULL,
		token TEXT NOT NULL,
		risk_score INTEGER CHECK (risk_score IS NULL OR (risk_score >= 0 AND risk_score <= 100)),
		fiat_amount_cents BIGINT NOT NULL CHECK (fiat_amount_cents > 0),
		settlement_delay_days INTEGER NOT NULL CHECK (settlement_delay_days >= 0 AND settlement_delay_days <= 120),
		settles_at TIMESTAMP NOT NULL,
		settlement_rate TEXT NOT NULL,
		crypto_amount TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending_settlement', 'settling', 'settled', 'disputed', 'refunded', 'failed')),
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMP,
		next_retry_at TIMESTAMP,
		submitted_at TIMESTAMP,
		execution_ref TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		tokens_received TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMP,
		lease_owner TEXT,
		lease_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fiat_payments_status_settles ON pending_fiat_payments(status, settles_at);

	-- Append-only dispute audit trail; resolution is written once
	CREATE TABLE IF NOT EXISTS fiat_payment_disputes (
		id TEXT PRIMARY KEY,
		external_ref TEXT NOT NULL,
		target_kind TEXT NOT NULL CHECK (target_kind IN ('purchase', 'fiat_payment')),
		target_id TEXT NOT NULL,
		reason_code TEXT NOT NULL DEFAULT '',
		provider_dispute_id TEXT NOT NULL DEFAULT '',
		status_at_dispute TEXT NOT NULL,
		resolution TEXT CHECK (resolution IS NULL OR resolution IN ('won', 'lost', 'withdrawn')),
		resolved_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_disputes_target ON fiat_payment_disputes(target_id);
	CREATE INDEX IF NOT EXISTS idx_disputes_provider ON fiat_payment_disputes(provider_dispute_id);
`

func (s *Service) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
