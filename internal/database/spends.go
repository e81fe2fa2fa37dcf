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

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateSpend debits the user and inserts the spend in executing, in one
// transaction. An insufficient balance leaves nothing behind.
func (s *Service) CreateSpend(ctx context.Context, sp *models.JuiceSpend) (*models.JuiceSpend, error) {
	if sp.UserId == "" || sp.ProjectId == "" || sp.ChainId == "" || sp.Beneficiary == "" || sp.Token == "" {
		return nil, fmt.Errorf("%w: spend requires user, project, chain, beneficiary and token", store.ErrValidation)
	}
	if sp.CryptoAmount == "" || !sp.ExchangeRate.IsPositive() {
		return nil, fmt.Errorf("%w: spend requires a crypto amount and a positive exchange rate", store.ErrValidation)
	}
	cents, err := toCents(sp.JuiceAmount)
	if err != nil {
		return nil, err
	}
	if sp.Id == "" {
		sp.Id = uuid.New().String()
	}
	now := utc(sp.CreatedAt)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.applyMove(ctx, tx, store.MoveParams{
			UserId:    sp.UserId,
			Amount:    sp.JuiceAmount,
			Kind:      models.EntryKindSpendDebit,
			SourceRef: "spend:" + sp.Id,
			Now:       now,
		}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertSpend),
			sp.Id, sp.UserId, sp.ProjectId, sp.ChainId, sp.Beneficiary, sp.Token, cents,
			sp.CryptoAmount, sp.ExchangeRate.String(), string(models.SpendStatusExecuting), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert spend: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Spend reserved",
		zap.String("spend_id", sp.Id),
		zap.String("user_id", sp.UserId),
		zap.String("project_id", sp.ProjectId),
		zap.String("amount", sp.JuiceAmount.String()),
		zap.String("crypto_amount", sp.CryptoAmount))
	return s.GetSpend(ctx, sp.Id)
}

func (s *Service) GetSpend(ctx context.Context, id string) (*models.JuiceSpend, error) {
	var sp models.JuiceSpend
	var cents int64
	var rate, status string
	var x executionScan
	dest := append([]any{&sp.Id, &sp.UserId, &sp.ProjectId, &sp.ChainId, &sp.Beneficiary, &sp.Token, &cents,
		&sp.CryptoAmount, &rate, &status}, x.dest(&sp.Execution)...)
	dest = append(dest, &sp.CreatedAt, &sp.UpdatedAt)

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetSpend), id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: spend %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spend: %w", err)
	}
	if sp.Status, err = models.ParseSpendStatus(status); err != nil {
		return nil, err
	}
	if sp.ExchangeRate, err = parseRate(rate); err != nil {
		return nil, err
	}
	sp.JuiceAmount = fromCents(cents)
	x.apply(&sp.Execution)
	return &sp, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse exchange rate %q: %w", s, err)
	}
	return rate, nil
}
