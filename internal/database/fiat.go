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
	"slices"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/riskdelay"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tableFiatPayments = "pending_fiat_payments"

var fiatDisputable = []string{
	string(models.FiatPaymentStatusPendingSettlement),
	string(models.FiatPaymentStatusSettling),
	string(models.FiatPaymentStatusFailed),
}

// InsertFiatPayment records a direct settlement with its rate already
// locked. A repeated external reference returns the existing row together
// with store.ErrDuplicateExternalRef.
func (s *Service) InsertFiatPayment(ctx context.Context, p *models.PendingFiatPayment) (*models.PendingFiatPayment, error) {
	if p.ExternalRef == "" {
		return nil, fmt.Errorf("%w: external reference is required", store.ErrValidation)
	}
	if p.ProjectId == "" || p.ChainId == "" || p.BeneficiaryAddress == "" || p.Token == "" {
		return nil, fmt.Errorf("%w: settlement requires project, chain, beneficiary and token", store.ErrValidation)
	}
	if err := riskdelay.Validate(p.RiskScore); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if p.SettlementDelayDays < 0 || p.SettlementDelayDays > riskdelay.MaxDays {
		return nil, fmt.Errorf("%w: settlement delay %d out of range", store.ErrValidation, p.SettlementDelayDays)
	}
	if !p.SettlementRate.IsPositive() || p.CryptoAmount == "" {
		return nil, fmt.Errorf("%w: settlement requires a locked rate and crypto amount", store.ErrValidation)
	}
	cents, err := toCents(p.FiatAmount)
	if err != nil {
		return nil, err
	}
	if p.Id == "" {
		p.Id = uuid.New().String()
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryInsertFiatPayment),
		p.Id, p.ExternalRef, p.ProjectId, p.ChainId, p.BeneficiaryAddress, p.Token, p.RiskScore,
		cents, p.SettlementDelayDays, utc(p.SettlesAt), p.SettlementRate.String(), p.CryptoAmount,
		string(models.FiatPaymentStatusPendingSettlement), utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert fiat payment: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		existing, err := s.GetFiatPaymentByExternalRef(ctx, p.ExternalRef)
		if err != nil {
			return nil, err
		}
		return existing, fmt.Errorf("%w: %s", store.ErrDuplicateExternalRef, p.ExternalRef)
	}

	zap.L().Info("Fiat payment recorded",
		zap.String("fiat_payment_id", p.Id),
		zap.String("external_ref", p.ExternalRef),
		zap.String("project_id", p.ProjectId),
		zap.String("amount", p.FiatAmount.String()),
		zap.String("crypto_amount", p.CryptoAmount),
		zap.Time("settles_at", p.SettlesAt))

	return s.GetFiatPayment(ctx, p.Id)
}

func (s *Service) GetFiatPayment(ctx context.Context, id string) (*models.PendingFiatPayment, error) {
	return s.getFiatPayment(ctx, queryGetFiatPayment, id)
}

func (s *Service) GetFiatPaymentByExternalRef(ctx context.Context, externalRef string) (*models.PendingFiatPayment, error) {
	return s.getFiatPayment(ctx, queryGetFiatPaymentByExternalRef, externalRef)
}

func (s *Service) getFiatPayment(ctx context.Context, query, key string) (*models.PendingFiatPayment, error) {
	var p models.PendingFiatPayment
	var riskScore sql.NullInt64
	var cents int64
	var rate, status string
	var x executionScan
	dest := append([]any{&p.Id, &p.ExternalRef, &p.ProjectId, &p.ChainId, &p.BeneficiaryAddress, &p.Token,
		&riskScore, &cents, &p.SettlementDelayDays, &p.SettlesAt, &rate, &p.CryptoAmount, &status},
		x.dest(&p.Execution)...)
	dest = append(dest, &p.CreatedAt, &p.UpdatedAt)

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), key).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: fiat payment %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fiat payment: %w", err)
	}
	if p.Status, err = models.ParseFiatPaymentStatus(status); err != nil {
		return nil, err
	}
	if p.SettlementRate, err = parseRate(rate); err != nil {
		return nil, err
	}
	if riskScore.Valid {
		score := int(riskScore.Int64)
		p.RiskScore = &score
	}
	p.FiatAmount = fromCents(cents)
	x.apply(&p.Execution)
	return &p, nil
}

func (s *Service) ClaimDueFiatPayments(ctx context.Context, params store.ClaimParams) ([]string, error) {
	return s.claimBatch(ctx, tableFiatPayments, "status = ? AND settles_at <= ?", "settles_at",
		[]any{string(models.FiatPaymentStatusPendingSettlement), utc(params.Now)}, params)
}

// StartSettlement moves a matured payment to settling. The lease is kept
// for the execution that follows.
func (s *Service) StartSettlement(ctx context.Context, id, owner string, now time.Time) (*models.Payout, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryStartSettlement), utc(now), id, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to start settlement: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, s.db, tableFiatPayments, id, owner,
			[]string{string(models.FiatPaymentStatusPendingSettlement)}, payoutTables[models.PayoutKindFiatPayment].terminal)
	}
	zap.L().Info("Settlement started", zap.String("fiat_payment_id", id))
	return s.GetPayout(ctx, models.PayoutKindFiatPayment, id)
}

// DisputeFiatPayment freezes a payment that has not settled and records
// the dispute. It races settlement through the status CAS.
func (s *Service) DisputeFiatPayment(ctx context.Context, id string, notice models.DisputeNotice, now time.Time) (*models.FiatPaymentDispute, error) {
	now = utc(now)
	var dispute *models.FiatPaymentDispute
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT status FROM pending_fiat_payments WHERE id = ?`), id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: fiat payment %s", store.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read fiat payment: %w", err)
		}
		if !slices.Contains(fiatDisputable, current) {
			return s.transitionError(ctx, tx, tableFiatPayments, id, "", fiatDisputable,
				payoutTables[models.PayoutKindFiatPayment].terminal)
		}

		var externalRef string
		err = tx.QueryRowContext(ctx, s.dialect.rebind(queryDisputeFiatPayment), now, id, current).Scan(&externalRef)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: fiat payment %s", store.ErrConcurrentModification, id)
		}
		if err != nil {
			return fmt.Errorf("failed to mark fiat payment disputed: %w", err)
		}
		if notice.ExternalRef == "" {
			notice.ExternalRef = externalRef
		}
		dispute, err = s.insertDispute(ctx, tx, models.DisputeTargetFiatPayment, id, current, notice, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Fiat payment disputed",
		zap.String("fiat_payment_id", id),
		zap.String("dispute_id", dispute.Id),
		zap.String("status_at_dispute", dispute.StatusAtDispute),
		zap.String("reason_code", notice.ReasonCode))
	return dispute, nil
}

// RefundFiatPayment records a provider refund before settlement, or after
// a failed one.
func (s *Service) RefundFiatPayment(ctx context.Context, id string, now time.Time) (*models.PendingFiatPayment, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryRefundFiatPayment), utc(now), id)
	if err != nil {
		return nil, fmt.Errorf("failed to refund fiat payment: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, s.db, tableFiatPayments, id, "",
			[]string{string(models.FiatPaymentStatusPendingSettlement), string(models.FiatPaymentStatusFailed)},
			payoutTables[models.PayoutKindFiatPayment].terminal)
	}
	zap.L().Info("Fiat payment refunded", zap.String("fiat_payment_id", id))
	return s.GetFiatPayment(ctx, id)
}
