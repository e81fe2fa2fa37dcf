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

const (
	// Balance queries
	queryGetBalance = `
		SELECT user_id, balance_cents, lifetime_purchased_cents, lifetime_spent_cents,
		       lifetime_cashed_out_cents, version, last_activity_at, created_at, updated_at
		FROM juice_balances
		WHERE user_id = ?`

	queryCreditBalance = `
		INSERT INTO juice_balances (
			user_id, balance_cents, lifetime_purchased_cents, lifetime_spent_cents,
			lifetime_cashed_out_cents, version, last_activity_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			balance_cents = juice_balances.balance_cents + excluded.balance_cents,
			lifetime_purchased_cents = juice_balances.lifetime_purchased_cents + excluded.lifetime_purchased_cents,
			lifetime_spent_cents = juice_balances.lifetime_spent_cents + excluded.lifetime_spent_cents,
			lifetime_cashed_out_cents = juice_balances.lifetime_cashed_out_cents + excluded.lifetime_cashed_out_cents,
			version = juice_balances.version + 1,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at
		RETURNING balance_cents`

	queryDebitBalance = `
		UPDATE juice_balances
		SET balance_cents = balance_cents - ?,
		    lifetime_purchased_cents = lifetime_purchased_cents + ?,
		    lifetime_spent_cents = lifetime_spent_cents + ?,
		    lifetime_cashed_out_cents = lifetime_cashed_out_cents + ?,
		    version = version + 1,
		    last_activity_at = ?,
		    updated_at = ?
		WHERE user_id = ? AND balance_cents >= ?
		RETURNING balance_cents`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM juice_ledger_entries
		WHERE user_id = ?`

	// Ledger entry queries
	queryCheckDuplicateEntry = `
		SELECT id FROM juice_ledger_entries WHERE source_ref = ? LIMIT 1`

	queryInsertEntry = `
		INSERT INTO juice_ledger_entries (
			id, user_id, kind, amount_cents, balance_before_cents, balance_after_cents, source_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	entryColumns = `id, user_id, kind, amount_cents, balance_before_cents, balance_after_cents, source_ref, created_at, exported_at`

	queryGetLedgerHistory = `
		SELECT ` + entryColumns + `
		FROM juice_ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryGetEntry = `
		SELECT ` + entryColumns + `
		FROM juice_ledger_entries
		WHERE id = ?`

	queryMarkEntryExported = `
		UPDATE juice_ledger_entries
		SET exported_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND lease_owner = ? AND exported_at IS NULL`

	// Purchase queries
	purchaseColumns = `id, external_ref, user_id, risk_score, fiat_amount_cents, juice_amount_cents,
		settlement_delay_days, clears_at, credited_at, status, created_at, updated_at`

	queryInsertPurchase = `
		INSERT INTO juice_purchases (
			id, external_ref, user_id, risk_score, fiat_amount_cents, juice_amount_cents,
			settlement_delay_days, clears_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_ref) DO NOTHING`

	queryGetPurchase = `
		SELECT ` + purchaseColumns + `
		FROM juice_purchases
		WHERE id = ?`

	queryGetPurchaseByExternalRef = `
		SELECT ` + purchaseColumns + `
		FROM juice_purchases
		WHERE external_ref = ?`

	queryCapturePurchase = `
		UPDATE juice_purchases
		SET status = 'clearing', updated_at = ?
		WHERE id = ? AND status = 'pending'`

	queryCreditPurchase = `
		UPDATE juice_purchases
		SET status = 'credited', credited_at = ?, updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = 'clearing' AND lease_owner = ? AND clears_at <= ?
		RETURNING user_id, juice_amount_cents`

	queryDisputePurchase = `
		UPDATE juice_purchases
		SET status = 'disputed', updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = 'clearing'
		RETURNING external_ref`

	queryRefundPurchase = `
		UPDATE juice_purchases
		SET status = 'refunded', updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status IN ('pending', 'clearing')`

	// Spend queries
	spendColumns = `id, user_id, project_id, chain_id, destination, token, juice_amount_cents,
		crypto_amount, exchange_rate, status, ` + executionColumns + `, created_at, updated_at`

	queryInsertSpend = `
		INSERT INTO juice_spends (
			id, user_id, project_id, chain_id, destination, token, juice_amount_cents,
			crypto_amount, exchange_rate, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetSpend = `
		SELECT ` + spendColumns + `
		FROM juice_spends
		WHERE id = ?`

	// Cash-out queries
	cashOutColumns = `id, user_id, chain_id, destination, token, juice_amount_cents, crypto_amount,
		exchange_rate, available_at, cancelled_at, status, ` + executionColumns + `, created_at, updated_at`

	queryInsertCashOut = `
		INSERT INTO juice_cash_outs (
			id, user_id, chain_id, destination, token, juice_amount_cents,
			available_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetCashOut = `
		SELECT ` + cashOutColumns + `
		FROM juice_cash_outs
		WHERE id = ?`

	queryCancelCashOut = `
		UPDATE juice_cash_outs
		SET status = 'cancelled', cancelled_at = ?, updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND user_id = ? AND status = 'pending'
		RETURNING juice_amount_cents`

	queryStartCashOut = `
		UPDATE juice_cash_outs
		SET status = 'processing', exchange_rate = ?, crypto_amount = ?, submitted_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'pending' AND lease_owner = ?`

	// Direct fiat settlement queries
	fiatPaymentColumns = `id, external_ref, project_id, chain_id, destination, token, risk_score,
		fiat_amount_cents, settlement_delay_days, settles_at, settlement_rate, crypto_amount, status,
		` + executionColumns + `, created_at, updated_at`

	queryInsertFiatPayment = `
		INSERT INTO pending_fiat_payments (
			id, external_ref, project_id, chain_id, destination, token, risk_score,
			fiat_amount_cents, settlement_delay_days, settles_at, settlement_rate, crypto_amount,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_ref) DO NOTHING`

	queryGetFiatPayment = `
		SELECT ` + fiatPaymentColumns + `
		FROM pending_fiat_payments
		WHERE id = ?`

	queryGetFiatPaymentByExternalRef = `
		SELECT ` + fiatPaymentColumns + `
		FROM pending_fiat_payments
		WHERE external_ref = ?`

	queryStartSettlement = `
		UPDATE pending_fiat_payments
		SET status = 'settling', submitted_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'pending_settlement' AND lease_owner = ?`

	queryDisputeFiatPayment = `
		UPDATE pending_fiat_payments
		SET status = 'disputed', updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?
		RETURNING external_ref`

	queryRefundFiatPayment = `
		UPDATE pending_fiat_payments
		SET status = 'refunded', updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status IN ('pending_settlement', 'failed')`

	// Dispute queries
	disputeColumns = `id, external_ref, target_kind, target_id, reason_code, provider_dispute_id,
		status_at_dispute, resolution, resolved_at, created_at`

	queryInsertDispute = `
		INSERT INTO fiat_payment_disputes (
			id, external_ref, target_kind, target_id, reason_code, provider_dispute_id,
			status_at_dispute, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDispute = `
		SELECT ` + disputeColumns + `
		FROM fiat_payment_disputes
		WHERE id = ?`

	queryFindDisputeByProviderId = `
		SELECT ` + disputeColumns + `
		FROM fiat_payment_disputes
		WHERE provider_dispute_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	queryListDisputes = `
		SELECT ` + disputeColumns + `
		FROM fiat_payment_disputes
		WHERE target_id = ?
		ORDER BY created_at`

	queryResolveDispute = `
		UPDATE fiat_payment_disputes
		SET resolution = ?, resolved_at = ?
		WHERE id = ? AND resolution IS NULL`

	// Shared lifecycle columns for spends, cash-outs and direct settlements
	executionColumns = `retry_count, last_retry_at, next_retry_at, submitted_at, execution_ref,
		tx_hash, tokens_received, last_error, completed_at`
)
