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

package prime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.uber.org/zap"
)

// WithdrawalCreator is the subset of Service the executor needs.
type WithdrawalCreator interface {
	CreateWithdrawal(ctx context.Context, params WithdrawalParams) (*models.Withdrawal, error)
}

// ChainLookup resolves chain network details and payout wallets.
type ChainLookup interface {
	Lookup(chainId string) (models.Chain, error)
	Token(chainId, symbol string) (models.Token, error)
}

type ExecutorConfig struct {
	PortfolioId      string
	FailureThreshold uint          // consecutive failures before the breaker opens
	OpenDelay        time.Duration // how long the breaker stays open
}

// Executor submits payouts as Prime wallet withdrawals. Prime reports
// the final outcome later, so a successful call returns Submitted and the
// withdrawal listener delivers the result.
type Executor struct {
	client      WithdrawalCreator
	chains      ChainLookup
	portfolioId string
	breaker     circuitbreaker.CircuitBreaker[*models.Withdrawal]
}

func NewExecutor(client WithdrawalCreator, lookup ChainLookup, cfg ExecutorConfig) *Executor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = time.Minute
	}

	breaker := circuitbreaker.NewBuilder[*models.Withdrawal]().
		HandleIf(func(_ *models.Withdrawal, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, store.ErrValidation)
		}).
		WithFailureThreshold(cfg.FailureThreshold).
		WithDelay(cfg.OpenDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			zap.L().Warn("Prime withdrawal circuit breaker changed state",
				zap.String("from", fmt.Sprint(e.OldState)),
				zap.String("to", fmt.Sprint(e.NewState)))
		}).
		Build()

	return &Executor{
		client:      client,
		chains:      lookup,
		portfolioId: cfg.PortfolioId,
		breaker:     breaker,
	}
}

// Execute creates the withdrawal for one payout row.
func (e *Executor) Execute(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
	params, err := e.withdrawalParams(req)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	withdrawal, err := failsafe.With(e.breaker).WithContext(ctx).Get(func() (*models.Withdrawal, error) {
		return e.client.CreateWithdrawal(ctx, params)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return models.ExecutionResult{}, fmt.Errorf("%w: %v", store.ErrExecutorUnavailable, err)
		}
		return models.ExecutionResult{}, err
	}

	zap.L().Info("Payout submitted to Prime",
		zap.String("kind", string(req.Kind)),
		zap.String("row_id", req.IdempotencyKey),
		zap.String("activity_id", withdrawal.ActivityId),
		zap.String("transaction_id", withdrawal.TransactionId))

	return models.ExecutionResult{
		RowId:        req.IdempotencyKey,
		Status:       models.ExecutionSubmitted,
		ExecutionRef: executionRef(withdrawal),
	}, nil
}

// executionRef is the id the result listener reports the withdrawal under.
func executionRef(w *models.Withdrawal) string {
	if w.TransactionId != "" {
		return w.TransactionId
	}
	return w.ActivityId
}

func (e *Executor) withdrawalParams(req models.PaymentRequest) (WithdrawalParams, error) {
	chain, err := e.chains.Lookup(req.ChainId)
	if err != nil {
		return WithdrawalParams{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	token, err := e.chains.Token(req.ChainId, req.Token)
	if err != nil {
		return WithdrawalParams{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if token.PrimeWalletId == "" {
		return WithdrawalParams{}, fmt.Errorf("no payout wallet configured for %s on %s", token.Symbol, chain.Id)
	}

	amount, err := chains.FromBaseUnits(req.AmountBaseUnits, token.Decimals)
	if err != nil {
		return WithdrawalParams{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if !amount.IsPositive() {
		return WithdrawalParams{}, fmt.Errorf("%w: payout amount must be positive", store.ErrValidation)
	}

	return WithdrawalParams{
		PortfolioId:        e.portfolioId,
		WalletId:           token.PrimeWalletId,
		DestinationAddress: req.Beneficiary,
		Amount:             amount.String(),
		Symbol:             token.Symbol,
		NetworkId:          chain.NetworkId,
		NetworkType:        chain.NetworkType,
		IdempotencyKey:     req.IdempotencyKey,
	}, nil
}
