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
	"juice-ledger-go/internal/riskdelay"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tablePurchases = "juice_purchases"

var purchaseTerminal = []string{
	string(models.PurchaseStatusCredited),
	string(models.PurchaseStatusDisputed),
	string(models.PurchaseStatusRefunded),
}

// InsertPurchase records a new purchase. A repeated external reference
// returns the existing row together with store.ErrDuplicateExternalRef.
func (s *Service) InsertPurchase(ctx context.Context, p *models.JuicePurchase) (*models.JuicePurchase, error) {
	if p.ExternalRef == "" {
		return nil, fmt.Errorf("%w: external reference is required", store.ErrValidation)
	}
	if p.UserId == "" {
		return nil, fmt.Errorf("%w: user id is required", store.ErrValidation)
	}
	if err := riskdelay.Validate(p.RiskScore); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if p.SettlementDelayDays < 0 || p.SettlementDelayDays > riskdelay.MaxDays {
		return nil, fmt.Errorf("%w: settlement delay %d out of range", store.ErrValidation, p.SettlementDelayDays)
	}
	if p.Status != models.PurchaseStatusPending && p.Status != models.PurchaseStatusClearing {
		return nil, fmt.Errorf("%w: purchase cannot start as %s", store.ErrValidation, p.Status)
	}
	fiat, err := toCents(p.FiatAmount)
	if err != nil {
		return nil, err
	}
	juice, err := toCents(p.JuiceAmount)
	if err != nil {
		return nil, err
	}
	if p.Id == "" {
		p.Id = uuid.New().String()
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryInsertPurchase),
		p.Id, p.ExternalRef, p.UserId, p.RiskScore, fiat, juice,
		p.SettlementDelayDays, utc(p.ClearsAt), string(p.Status), utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		existing, err := s.GetPurchaseByExternalRef(ctx, p.ExternalRef)
		if err != nil {
			return nil, err
		}
		return existing, fmt.Errorf("%w: %s", store.ErrDuplicateExternalRef, p.ExternalRef)
	}

	zap.L().Info("Purchase recorded",
		zap.String("purchase_id", p.Id),
		zap.String("external_ref", p.ExternalRef),
		zap.String("user_id", p.UserId),
		zap.String("amount", p.FiatAmount.String()),
		zap.String("status", string(p.Status)),
		zap.Time("clears_at", p.ClearsAt))

	return s.GetPurchase(ctx, p.Id)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (*models.JuicePurchase, error) {
	return s.getPurchase(ctx, s.db, queryGetPurchase, id)
}

func (s *Service) GetPurchaseByExternalRef(ctx context.Context, externalRef string) (*models.JuicePurchase, error) {
	return s.getPurchase(ctx, s.db, queryGetPurchaseByExternalRef, externalRef)
}

func (s *Service) getPurchase(ctx context.Context, q queryer, query, key string) (*models.JuicePurchase, error) {
	var p models.JuicePurchase
	var riskScore sql.NullInt64
	var fiat, juice int64
	var creditedAt sql.NullTime
	var status string
	err := q.QueryRowContext(ctx, s.dialect.rebind(query), key).Scan(
		&p.Id, &p.ExternalRef, &p.UserId, &riskScore, &fiat, &juice,
		&p.SettlementDelayDays, &p.ClearsAt, &creditedAt, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: purchase %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if p.Status, err = models.ParsePurchaseStatus(status); err != nil {
		return nil, err
	}
	if riskScore.Valid {
		score := int(riskScore.Int64)
		p.RiskScore = &score
	}
	p.FiatAmount = fromCents(fiat)
	p.JuiceAmount = fromCents(juice)
	p.CreditedAt = timePtr(creditedAt)
	return &p, nil
}

// CapturePurchase moves an authorized purchase into clearing.
func (s *Service) CapturePurchase(ctx context.Context, id string, now time.Time) (*models.JuicePurchase, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryCapturePurchase), utc(now), id)
	if err != nil {
		return nil, fmt.Errorf("failed to capture purchase: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, s.db, tablePurchases, id, "",
			[]string{string(models.PurchaseStatusPending)}, purchaseTerminal)
	}
	zap.L().Info("Purchase captured", zap.String("purchase_id", id))
	return s.GetPurchase(ctx, id)
}

func (s *Service) ClaimDuePurchases(ctx context.Context, params store.ClaimParams) ([]string, error) {
	return s.claimBatch(ctx, tablePurchases, "status = ? AND clears_at <= ?", "clears_at",
		[]any{string(models.PurchaseStatusClearing), utc(params.Now)}, params)
}

// CreditPurchase moves a matured purchase to credited and credits the
// buyer in the same transaction.
func (s *Service) CreditPurchase(ctx context.Context, id, owner string, now time.Time) (*models.JuicePurchase, error) {
	now = utc(now)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var userId string
		var juice int64
		err := tx.QueryRowContext(ctx, s.dialect.rebind(queryCreditPurchase), now, now, id, owner, now).Scan(&userId, &juice)
		if errors.Is(err, sql.ErrNoRows) {
			return s.transitionError(ctx, tx, tablePurchases, id, owner,
				[]string{string(models.PurchaseStatusClearing)}, purchaseTerminal)
		}
		if err != nil {
			return fmt.Errorf("failed to mark purchase credited: %w", err)
		}

		_, err = s.applyMove(ctx, tx, store.MoveParams{
			UserId:    userId,
			Amount:    fromCents(juice),
			Kind:      models.EntryKindPurchaseCredit,
			SourceRef: "purchase:" + id,
			Now:       now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Purchase credited", zap.String("purchase_id", id))
	return s.GetPurchase(ctx, id)
}

// DisputePurchase freezes a clearing purchase and records the dispute.
func (s *Service) DisputePurchase(ctx context.Context, id string, notice models.DisputeNotice, now time.Time) (*models.FiatPaymentDispute, error) {
	now = utc(now)
	var dispute *models.FiatPaymentDispute
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var externalRef string
		err := tx.QueryRowContext(ctx, s.dialect.rebind(queryDisputePurchase), now, id).Scan(&externalRef)
		if errors.Is(err, sql.ErrNoRows) {
			return s.transitionError(ctx, tx, tablePurchases, id, "",
				[]string{string(models.PurchaseStatusClearing)}, purchaseTerminal)
		}
		if err != nil {
			return fmt.Errorf("failed to mark purchase disputed: %w", err)
		}
		if notice.ExternalRef == "" {
			notice.ExternalRef = externalRef
		}
		dispute, err = s.insertDispute(ctx, tx, models.DisputeTargetPurchase, id,
			string(models.PurchaseStatusClearing), notice, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Purchase disputed",
		zap.String("purchase_id", id),
		zap.String("dispute_id", dispute.Id),
		zap.String("reason_code", notice.ReasonCode))
	return dispute, nil
}

// RefundPurchase records a provider refund of a purchase that was never credited.
func (s *Service) RefundPurchase(ctx context.Context, id string, now time.Time) (*models.JuicePurchase, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryRefundPurchase), utc(now), id)
	if err != nil {
		return nil, fmt.Errorf("failed to refund purchase: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, s.db, tablePurchases, id, "",
			[]string{string(models.PurchaseStatusPending), string(models.PurchaseStatusClearing)}, purchaseTerminal)
	}
	zap.L().Info("Purchase refunded", zap.String("purchase_id", id))
	return s.GetPurchase(ctx, id)
}
