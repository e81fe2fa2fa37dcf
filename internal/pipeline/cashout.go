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

package pipeline

import (
	"context"
	"fmt"
	"time"

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	JobProcessCashOuts = "cash_outs.process_due"
	JobExecuteCashOuts = "cash_outs.execute"
	JobRetryCashOuts   = "cash_outs.retry"

	DefaultCashOutDelay = 24 * time.Hour
)

// CashOutRequest asks for juice to be withdrawn to the user's wallet.
type CashOutRequest struct {
	UserId      string
	ChainId     string
	Token       string
	Destination string
	Amount      decimal.Decimal
}

// CashOuts converts juice back into crypto after a cancellable delay.
type CashOuts struct {
	store    store.CashOutStore
	registry ChainRegistry
	quoter   Quoter
	delay    time.Duration
	runner   *payoutRunner
}

func NewCashOuts(s store.CashOutStore, registry ChainRegistry, quoter Quoter, executor Executor, cfg models.ProcessorConfig, delay time.Duration) *CashOuts {
	if delay <= 0 {
		delay = DefaultCashOutDelay
	}
	return &CashOuts{
		store:    s,
		registry: registry,
		quoter:   quoter,
		delay:    delay,
		runner: &payoutRunner{
			store:    s,
			executor: executor,
			cfg:      Defaults(cfg),
			now:      systemClock,
		},
	}
}

// SetClock replaces the time source.
func (c *CashOuts) SetClock(clock Clock) { c.runner.now = clock }

// Request debits the user now and holds the cash-out until the delay
// has passed. The rate is not quoted until processing starts.
func (c *CashOuts) Request(ctx context.Context, req CashOutRequest) (*models.JuiceCashOut, error) {
	if req.UserId == "" {
		return nil, fmt.Errorf("%w: user id is required", store.ErrValidation)
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	token, err := c.registry.Token(req.ChainId, req.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	destination, err := chains.NormalizeAddress(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	now := c.runner.now()
	return c.store.CreateCashOut(ctx, &models.JuiceCashOut{
		UserId:             req.UserId,
		ChainId:            req.ChainId,
		DestinationAddress: destination,
		Token:              token.Symbol,
		JuiceAmount:        req.Amount,
		AvailableAt:        now.Add(c.delay),
		CreatedAt:          now,
	})
}

// Cancel credits the juice back. Only pending cash-outs owned by userId
// can be cancelled.
func (c *CashOuts) Cancel(ctx context.Context, id, userId string) (*models.JuiceCashOut, error) {
	return c.store.CancelCashOut(ctx, id, userId, c.runner.now())
}

// ProcessDue locks the rate of every matured cash-out and executes it.
func (c *CashOuts) ProcessDue(ctx context.Context) (models.BatchResult, error) {
	result := models.BatchResult{Job: JobProcessCashOuts}
	now := c.runner.now()
	params := claimParams(c.runner.cfg, now)

	ids, err := c.store.ClaimDueCashOuts(ctx, params)
	if err != nil {
		return result, fmt.Errorf("failed to claim due cash-outs: %w", err)
	}
	result.Claimed = len(ids)

	for _, id := range ids {
		payout, err := c.start(ctx, id, params.Owner)
		if err != nil {
			tally(&result, JobProcessCashOuts, id, err)
			continue
		}
		c.runner.execute(ctx, JobProcessCashOuts, payout, params.Owner, &result)
	}
	return result, nil
}

// start quotes and moves one claimed cash-out into processing. A quote
// failure releases the row so a later batch picks it up again.
func (c *CashOuts) start(ctx context.Context, id, owner string) (*models.Payout, error) {
	row, err := c.store.GetCashOut(ctx, id)
	if err != nil {
		return nil, err
	}

	crypto, rate, err := c.quote(ctx, row)
	if err != nil {
		if relErr := c.store.ReleasePayout(ctx, models.PayoutKindCashOut, id, owner, c.runner.now()); relErr != nil {
			zap.L().Warn("Failed to release cash-out lease", zap.String("cash_out_id", id), zap.Error(relErr))
		}
		return nil, err
	}
	return c.store.StartCashOut(ctx, id, owner, rate, crypto, c.runner.now())
}

func (c *CashOuts) quote(ctx context.Context, row *models.JuiceCashOut) (string, decimal.Decimal, error) {
	token, err := c.registry.Token(row.ChainId, row.Token)
	if err != nil {
		return "", decimal.Zero, err
	}
	rate, err := c.quoter.Quote(ctx, row.ChainId, token.Symbol)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("unable to quote %s on %s: %w", token.Symbol, row.ChainId, err)
	}
	crypto, err := chains.ToBaseUnits(row.JuiceAmount, rate, token.Decimals)
	if err != nil {
		return "", decimal.Zero, err
	}
	return crypto, rate, nil
}

// ExecuteInFlight resubmits processing cash-outs whose submission went stale.
func (c *CashOuts) ExecuteInFlight(ctx context.Context) (models.BatchResult, error) {
	return c.runner.executeInFlight(ctx, JobExecuteCashOuts, models.PayoutKindCashOut)
}

// Retry re-executes failed cash-outs whose backoff has elapsed.
func (c *CashOuts) Retry(ctx context.Context) (models.BatchResult, error) {
	return c.runner.retry(ctx, JobRetryCashOuts, models.PayoutKindCashOut)
}

// Refund returns the juice of a failed cash-out to the user.
func (c *CashOuts) Refund(ctx context.Context, id string) (*models.Payout, error) {
	return c.store.RefundPayout(ctx, models.PayoutKindCashOut, id, c.runner.now())
}
