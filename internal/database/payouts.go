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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// payoutTable describes how one payout kind maps onto the shared
// execution lifecycle.
type payoutTable struct {
	kind       models.PayoutKind
	table      string
	inflight   string
	completed  string
	failed     string
	refunded   string
	terminal   []string
	amountCol  string
	userCol    string
	refundKind models.EntryKind // empty when no balance is owed back
	refundRef  string
}

var payoutTables = map[models.PayoutKind]payoutTable{
	models.PayoutKindSpend: {
		kind:       models.PayoutKindSpend,
		table:      "juice_spends",
		inflight:   string(models.SpendStatusExecuting),
		completed:  string(models.SpendStatusCompleted),
		failed:     string(models.SpendStatusFailed),
		refunded:   string(models.SpendStatusRefunded),
		terminal:   []string{string(models.SpendStatusCompleted), string(models.SpendStatusRefunded)},
		amountCol:  "juice_amount_cents",
		userCol:    "user_id",
		refundKind: models.EntryKindSpendRefund,
		refundRef:  "spend-refund:",
	},
	models.PayoutKindCashOut: {
		kind:      models.PayoutKindCashOut,
		table:     "juice_cash_outs",
		inflight:  string(models.CashOutStatusProcessing),
		completed: string(models.CashOutStatusCompleted),
		failed:    string(models.CashOutStatusFailed),
		refunded:  string(models.CashOutStatusRefunded),
		terminal: []string{
			string(models.CashOutStatusCompleted), string(models.CashOutStatusCancelled), string(models.CashOutStatusRefunded),
		},
		amountCol:  "juice_amount_cents",
		userCol:    "user_id",
		refundKind: models.EntryKindCashOutRefund,
		refundRef:  "cash-out-refund:",
	},
	models.PayoutKindFiatPayment: {
		kind:      models.PayoutKindFiatPayment,
		table:     "pending_fiat_payments",
		inflight:  string(models.FiatPaymentStatusSettling),
		completed: string(models.FiatPaymentStatusSettled),
		failed:    string(models.FiatPaymentStatusFailed),
		refunded:  string(models.FiatPaymentStatusRefunded),
		terminal: []string{
			string(models.FiatPaymentStatusSettled), string(models.FiatPaymentStatusDisputed), string(models.FiatPaymentStatusRefunded),
		},
		amountCol: "fiat_amount_cents",
		userCol:   "''",
	},
}

// payoutKinds is the lookup order for FindPayout.
var payoutKinds = []models.PayoutKind{models.PayoutKindSpend, models.PayoutKindCashOut, models.PayoutKindFiatPayment}

func lookupPayoutTable(kind models.PayoutKind) (payoutTable, error) {
	t, ok := payoutTables[kind]
	if !ok {
		return payoutTable{}, fmt.Errorf("%w: unknown payout kind %q", store.ErrValidation, kind)
	}
	return t, nil
}

func (t payoutTable) selectColumns() string {
	return fmt.Sprintf("SELECT id, %s, status, chain_id, destination, token, %s, crypto_amount, %s FROM %s",
		t.userCol, t.amountCol, executionColumns, t.table)
}

// executionScan collects the nullable lifecycle columns.
type executionScan struct {
	lastRetryAt, nextRetryAt, submittedAt, completedAt sql.NullTime
}

func (x *executionScan) dest(e *models.Execution) []any {
	return []any{&e.RetryCount, &x.lastRetryAt, &x.nextRetryAt, &x.submittedAt, &e.ExecutionRef,
		&e.TxHash, &e.TokensReceived, &e.LastError, &x.completedAt}
}

func (x *executionScan) apply(e *models.Execution) {
	e.LastRetryAt = timePtr(x.lastRetryAt)
	e.NextRetryAt = timePtr(x.nextRetryAt)
	e.SubmittedAt = timePtr(x.submittedAt)
	e.CompletedAt = timePtr(x.completedAt)
}

func scanPayout(row scanner, kind models.PayoutKind) (*models.Payout, error) {
	p := models.Payout{Kind: kind}
	var amount int64
	var x executionScan
	dest := append([]any{&p.Id, &p.UserId, &p.Status, &p.ChainId, &p.Destination, &p.Token, &amount, &p.CryptoAmount},
		x.dest(&p.Execution)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := checkPayoutStatus(kind, p.Status); err != nil {
		return nil, err
	}
	p.Amount = fromCents(amount)
	x.apply(&p.Execution)
	return &p, nil
}

func checkPayoutStatus(kind models.PayoutKind, status string) error {
	var err error
	switch kind {
	case models.PayoutKindSpend:
		_, err = models.ParseSpendStatus(status)
	case models.PayoutKindCashOut:
		_, err = models.ParseCashOutStatus(status)
	case models.PayoutKindFiatPayment:
		_, err = models.ParseFiatPaymentStatus(status)
	default:
		err = fmt.Errorf("unknown payout kind %q", kind)
	}
	return err
}

func (s *Service) GetPayout(ctx context.Context, kind models.PayoutKind, id string) (*models.Payout, error) {
	return s.getPayout(ctx, s.db, kind, id)
}

func (s *Service) getPayout(ctx context.Context, q queryer, kind models.PayoutKind, id string) (*models.Payout, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	p, err := scanPayout(q.QueryRowContext(ctx, s.dialect.rebind(t.selectColumns()+" WHERE id = ?"), id), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return p, nil
}

// FindPayout locates a payout row by id across every payout kind.
func (s *Service) FindPayout(ctx context.Context, id string) (*models.Payout, error) {
	for _, kind := range payoutKinds {
		p, err := s.GetPayout(ctx, kind, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: payout %s", store.ErrNotFound, id)
}

func (s *Service) ListPayouts(ctx context.Context, kind models.PayoutKind, status string, limit int) ([]models.Payout, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(t.selectColumns()+" WHERE status = ? ORDER BY updated_at LIMIT ?"), status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", kind, err)
	}
	defer closeRows(rows)

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", kind, err)
	}
	return payouts, nil
}

// ClaimInFlight leases rows awaiting execution: never submitted, or
// submitted before resubmitBefore without a result.
func (s *Service) ClaimInFlight(ctx context.Context, kind models.PayoutKind, params store.ClaimParams, resubmitBefore time.Time) ([]string, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	return s.claimBatch(ctx, t.table, "status = ? AND (submitted_at IS NULL OR submitted_at <= ?)", "updated_at",
		[]any{t.inflight, utc(resubmitBefore)}, params)
}

// ClaimRetryable leases failed rows whose backoff has elapsed and that
// still have retries left.
func (s *Service) ClaimRetryable(ctx context.Context, kind models.PayoutKind, params store.ClaimParams, maxRetries int) ([]string, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	return s.claimBatch(ctx, t.table, "status = ? AND retry_count < ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", "updated_at",
		[]any{t.failed, maxRetries, utc(params.Now)}, params)
}

// BeginRetry moves a claimed failed row back in flight. The lease is kept
// for the execution that follows.
func (s *Service) BeginRetry(ctx context.Context, kind models.PayoutKind, id, owner string, now time.Time) (*models.Payout, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	now = utc(now)
	lease, leaseArgs := leaseClause(owner)
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, retry_count = retry_count + 1, last_retry_at = ?, next_retry_at = NULL,
		    submitted_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?%s`, t.table, lease)
	args := append([]any{t.inflight, now, now, id, t.failed}, leaseArgs...)
	if err := s.execTransition(ctx, t, query, args, id, owner, []string{t.failed}); err != nil {
		return nil, err
	}

	p, err := s.GetPayout(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Payout retry started",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.Int("retry_count", p.RetryCount))
	return p, nil
}

// MarkSubmitted records that the executor accepted the payment and a
// final result will arrive later.
func (s *Service) MarkSubmitted(ctx context.Context, kind models.PayoutKind, id, owner, executionRef string, now time.Time) error {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return err
	}
	now = utc(now)
	lease, leaseArgs := leaseClause(owner)
	query := fmt.Sprintf(`
		UPDATE %s
		SET submitted_at = ?, execution_ref = ?, updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?%s`, t.table, lease)
	args := append([]any{now, executionRef, now, id, t.inflight}, leaseArgs...)
	if err := s.execTransition(ctx, t, query, args, id, owner, []string{t.inflight}); err != nil {
		return err
	}
	zap.L().Info("Payout submitted",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.String("execution_ref", executionRef))
	return nil
}

func (s *Service) CompletePayout(ctx context.Context, kind models.PayoutKind, id, owner string, result models.ExecutionResult, now time.Time) error {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return err
	}
	now = utc(now)
	set := "status = ?, tx_hash = ?, tokens_received = ?, last_error = '', completed_at = ?, updated_at = ?"
	args := []any{t.completed, result.TxHash, result.TokensReceived, now, now}
	if result.ExecutionRef != "" {
		set += ", execution_ref = ?"
		args = append(args, result.ExecutionRef)
	}
	lease, leaseArgs := leaseClause(owner)
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?%s`, t.table, set, lease)
	args = append(args, id, t.inflight)
	args = append(args, leaseArgs...)
	if err := s.execTransition(ctx, t, query, args, id, owner, []string{t.inflight}); err != nil {
		return err
	}
	zap.L().Info("Payout completed",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.String("tx_hash", result.TxHash),
		zap.String("tokens_received", result.TokensReceived))
	return nil
}

func (s *Service) FailPayout(ctx context.Context, kind models.PayoutKind, id, owner, reason string, nextRetryAt *time.Time, now time.Time) error {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return err
	}
	now = utc(now)
	lease, leaseArgs := leaseClause(owner)
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, last_error = ?, next_retry_at = ?, submitted_at = NULL, updated_at = ?,
		    lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?%s`, t.table, lease)
	args := append([]any{t.failed, reason, nullTime(nextRetryAt), now, id, t.inflight}, leaseArgs...)
	if err := s.execTransition(ctx, t, query, args, id, owner, []string{t.inflight}); err != nil {
		return err
	}
	zap.L().Warn("Payout failed",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.String("reason", reason))
	return nil
}

// RecordTimeout counts an execution attempt that produced no answer. The
// row stays in flight for resubmission until the count exceeds maxRetries,
// then moves to failed. Returns the new retry count.
func (s *Service) RecordTimeout(ctx context.Context, kind models.PayoutKind, id, owner, reason string, maxRetries int, now time.Time) (int, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return 0, err
	}
	now = utc(now)
	lease, leaseArgs := leaseClause(owner)
	query := fmt.Sprintf(`
		UPDATE %s
		SET retry_count = retry_count + 1, last_retry_at = ?, last_error = ?, submitted_at = NULL,
		    status = CASE WHEN retry_count + 1 > ? THEN ? ELSE status END,
		    updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?%s
		RETURNING retry_count`, t.table, lease)
	args := append([]any{now, reason, maxRetries, t.failed, now, id, t.inflight}, leaseArgs...)

	var count int
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.transitionError(ctx, s.db, t.table, id, owner, []string{t.inflight}, t.terminal)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record %s timeout: %w", kind, err)
	}

	zap.L().Warn("Payout execution timed out",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.Int("retry_count", count),
		zap.Bool("exhausted", count > maxRetries))
	return count, nil
}

// ReleasePayout drops a lease without changing the row.
func (s *Service) ReleasePayout(ctx context.Context, kind models.PayoutKind, id, owner string, now time.Time) error {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET lease_owner = NULL, lease_expires_at = NULL WHERE id = ? AND lease_owner = ?`, t.table)
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), id, owner)
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", kind, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrLeaseLost, kind, id)
	}
	zap.L().Debug("Payout lease released",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id),
		zap.Time("at", utc(now)))
	return nil
}

// RefundPayout is the operator refund of a failed payout. Juice-funded
// payouts credit the user back in the same transaction.
func (s *Service) RefundPayout(ctx context.Context, kind models.PayoutKind, id string, now time.Time) (*models.Payout, error) {
	t, err := lookupPayoutTable(kind)
	if err != nil {
		return nil, err
	}
	now = utc(now)
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, updated_at = ?, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = ?
		RETURNING %s, %s`, t.table, t.userCol, t.amountCol)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var userId string
		var amount int64
		err := tx.QueryRowContext(ctx, s.dialect.rebind(query), t.refunded, now, id, t.failed).Scan(&userId, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			return s.transitionError(ctx, tx, t.table, id, "", []string{t.failed}, t.terminal)
		}
		if err != nil {
			return fmt.Errorf("failed to mark %s refunded: %w", kind, err)
		}
		if t.refundKind == "" {
			return nil
		}
		_, err = s.applyMove(ctx, tx, store.MoveParams{
			UserId:    userId,
			Amount:    fromCents(amount),
			Kind:      t.refundKind,
			SourceRef: t.refundRef + id,
			Now:       now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Payout refunded",
		zap.String("kind", string(kind)),
		zap.String("payout_id", id))
	return s.GetPayout(ctx, kind, id)
}

func (s *Service) execTransition(ctx context.Context, t payoutTable, query string, args []any, id, owner string, from []string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.kind, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, s.db, t.table, id, owner, from, t.terminal)
	}
	return nil
}
