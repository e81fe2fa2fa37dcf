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

// Package pipeline drives purchases, spends, cash-outs and direct fiat
// settlements through their state machines. Every batch entry point is
// safe to run concurrently from several processes: rows are leased
// through the store before they are advanced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Currency is the only fiat currency accepted at intake.
const Currency = "USD"

// Executor submits an on-chain payment. IdempotencyKey is the payout row
// id, so resubmitting the same row never pays twice.
type Executor interface {
	Execute(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error)
}

// Quoter returns the USD price of one token.
type Quoter interface {
	Quote(ctx context.Context, chainId, token string) (decimal.Decimal, error)
}

// ChainRegistry resolves supported chains and tokens.
type ChainRegistry interface {
	Token(chainId, symbol string) (models.Token, error)
}

// Clock returns the current time. Tests replace it to move time forward.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Defaults fills zero processor settings.
func Defaults(cfg models.ProcessorConfig) models.ProcessorConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 30 * time.Second
	}
	if cfg.ResubmitAfter <= 0 {
		cfg.ResubmitAfter = 30 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	return cfg
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", store.ErrValidation, amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount %s has more than 2 decimal places", store.ErrValidation, amount.String())
	}
	return nil
}

func validateCurrency(currency string) error {
	if currency != "" && currency != Currency {
		return fmt.Errorf("%w: unsupported currency %q", store.ErrValidation, currency)
	}
	return nil
}

// claimParams builds one batch claim with a fresh lease owner.
func claimParams(cfg models.ProcessorConfig, now time.Time) store.ClaimParams {
	return store.ClaimParams{
		Now:      now,
		Owner:    uuid.New().String(),
		Limit:    cfg.BatchSize,
		LeaseTTL: cfg.LeaseTTL,
	}
}

// isLostRace reports row errors that mean another actor advanced the row
// first. They are skipped rather than counted as failures.
func isLostRace(err error) bool {
	return errors.Is(err, store.ErrAlreadyTerminal) ||
		errors.Is(err, store.ErrLeaseLost) ||
		errors.Is(err, store.ErrInvalidTransition) ||
		errors.Is(err, store.ErrConcurrentModification)
}

// tally folds one row outcome into the batch result.
func tally(result *models.BatchResult, job, rowId string, err error) {
	switch {
	case err == nil:
		result.Advanced++
	case isLostRace(err):
		result.Skipped++
		zap.L().Info("Row advanced elsewhere, skipping",
			zap.String("job", job),
			zap.String("row_id", rowId),
			zap.Error(err))
	default:
		result.Failed++
		zap.L().Error("Row failed",
			zap.String("job", job),
			zap.String("row_id", rowId),
			zap.Error(err))
	}
}
