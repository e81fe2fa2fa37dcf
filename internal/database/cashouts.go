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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tableCashOuts = "juice_cash_outs"

// CreateCashOut debits the user and queues the cash-out until AvailableAt.
func (s *Service) CreateCashOut(ctx context.Context, c *models.JuiceCashOut) (*models.JuiceCashOut, error) {
	if c.UserId == "" || c.ChainId == "" || c.DestinationAddress == "" || c.Token == "" {
		return nil, fmt.Errorf("%w: cash-out requires user, chain, destination and token", store.ErrValidation)
	}
	cents, err := toCents(c.JuiceAmount)
	if err != nil {
		return nil, err
	}
	if c.Id == "" {
		c.Id = uuid.New().String()
	}
	now := utc(c.CreatedAt)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.applyMove(ctx, tx, store.MoveParams{
			UserId:    c.UserId,
			Amount:    c.JuiceAmount,
			Kind:      models.EntryKindCashOutDebit,
			SourceRef: "cash-out:" + c.Id,
			Now:       now,
		}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertCashOut),
			c.Id, c.UserId, c.ChainId, c.DestinationAddress, c.Token, cents,
			utc(c.AvailableAt), string(models.CashOutStatusPending), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert cash-out: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Cash-out requested",
		zap.String("cash_out_id", c.Id),
		zap.String("user_id", c.UserId),
		zap.String("amount", c.JuiceAmount.String()),
		zap.Time("available_at", c.AvailableAt))
	return s.GetCashOut(ctx, c.Id)
}

func (s *Service) GetCashOut(ctx context.Context, id string) (*models.JuiceCashOut, error) {
	var c models.JuiceCashOut
	var cents int64
	var rate, status string
	var cancelledAt sql.NullTime
	var x executionScan
	dest := append([]any{&c.Id, &c.UserId, &c.ChainId, &c.DestinationAddress, &c.Token, &cents, &c.CryptoAmount,
		&rate, &c.AvailableAt, &cancelledAt, &status}, x.dest(&c.Execution)...)
	dest = append(dest, &c.CreatedAt, &c.UpdatedAt)

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetCashOut), id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cash-out %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cash-out: %w", err)
	}
	if c.Status, err = models.ParseCashOutStatus(status); err != nil {
		return nil, err
	}
	if c.ExchangeRate, err = parseRate(rate); err != nil {
		return nil, err
	}
	c.JuiceAmount = fromCents(cents)
	c.CancelledAt = timePtr(cancelledAt)
	x.apply(&c.Execution)
	return &c, nil
}

// CancelCashOut cancels a pending cash-out owned by userId and credits the
// amount back in the same transaction.
func (s *Service) CancelCashOut(ctx context.Context, id, userId string, now time.Time) (*models.JuiceCashOut, error) {
	now = utc(now)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var cents int64
		err := tx.QueryRowContext(ctx, s.dialect.rebind(queryCancelCashOut), now, now, id, userId).Scan(&cents)
		if errors.Is(err, sql.ErrNoRows) {
			var owner string
			err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT user_id FROM juice_cash_outs WHERE id = ?`), id).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userId) {
				return fmt.Errorf("%w: cash-out %s", store.ErrNotFound, id)
			}
			return s.transitionError(ctx, tx, tableCashOuts, id, "",
				[]string{string(models.CashOutStatusPending)}, payoutTables[models.PayoutKindCashOut].terminal)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel cash-out: %w", err)
		}
		_, err = s.applyMove(ctx, tx, store.MoveParams{
			UserId:    userId,
			Amount:    fromCents(cents),
			Kind:      models.EntryKindCashOutRefund,
			SourceRef: "cash-out-cancel:" + id,
			Now:       now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Cash-out cancelled", zap.String("cash_out_id", id), zap.String("user_id", userId))
	return s.GetCashOut(ctx, id)
}

func (s *Service) ClaimDueCashOuts(ctx context.Context, params store.ClaimParams) ([]string, error) {
	return s.claimBatch(ctx, tableCashOuts, "status = ? AND available_at <= ?", "available_at",
		[]any{string(models.CashOutStatusPending), utc(params.Now)}, params)
}

// StartCashOut locks the quoted rate and crypto amount and moves the
// cash-out to processing. The lease is kept for the execution that follows.
func (s *Service) StartCashOut(ctx context.Context, id, owner string, rate decimal.Decimal, cryptoAmount string, now time.Time) (*models.Payout, error) {
	if !rate.IsPositive() || cryptoAmount == "" {
		return nil, fmt.Errorf("%w: cash-out needs a positive rate and crypto amount", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryStartCashOut), rate.String(), cryptoAmount, utc(now), id, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to start cash-out: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, s.db, tableCashOuts, id, owner,
			[]string{string(models.CashOutStatusPending)}, payoutTables[models.PayoutKindCashOut].terminal)
	}

	zap.L().Info("Cash-out processing",
		zap.String("cash_out_id", id),
		zap.String("exchange_rate", rate.String()),
		zap.String("crypto_amount", cryptoAmount))
	return s.GetPayout(ctx, models.PayoutKindCashOut, id)
}
