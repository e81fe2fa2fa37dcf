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

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	JobExecuteSpends = "spends.execute"
	JobRetrySpends   = "spends.retry"
)

// Spends pays juice out to on-chain projects.
type Spends struct {
	store    store.SpendStore
	registry ChainRegistry
	quoter   Quoter
	runner   *payoutRunner
}

func NewSpends(s store.SpendStore, registry ChainRegistry, quoter Quoter, executor Executor, cfg models.ProcessorConfig) *Spends {
	return &Spends{
		store:    s,
		registry: registry,
		quoter:   quoter,
		runner: &payoutRunner{
			store:    s,
			executor: executor,
			cfg:      Defaults(cfg),
			now:      systemClock,
		},
	}
}

// SetClock replaces the time source.
func (s *Spends) SetClock(c Clock) { s.runner.now = c }

// Request quotes the project token, debits the user and queues the
// payment for execution.
func (s *Spends) Request(ctx context.Context, userId string, project models.Project, amount decimal.Decimal) (*models.JuiceSpend, error) {
	if userId == "" || project.Id == "" {
		return nil, fmt.Errorf("%w: user and project are required", store.ErrValidation)
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	token, err := s.registry.Token(project.ChainId, project.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	beneficiary, err := chains.NormalizeAddress(project.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	rate, err := s.quoter.Quote(ctx, project.ChainId, token.Symbol)
	if err != nil {
		return nil, fmt.Errorf("unable to quote %s on %s: %w", token.Symbol, project.ChainId, err)
	}
	crypto, err := chains.ToBaseUnits(amount, rate, token.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if crypto == "0" {
		return nil, fmt.Errorf("%w: %s is below one base unit of %s", store.ErrValidation, amount.String(), token.Symbol)
	}

	return s.store.CreateSpend(ctx, &models.JuiceSpend{
		UserId:       userId,
		ProjectId:    project.Id,
		ChainId:      project.ChainId,
		Beneficiary:  beneficiary,
		Token:        token.Symbol,
		JuiceAmount:  amount,
		CryptoAmount: crypto,
		ExchangeRate: rate,
		CreatedAt:    s.runner.now(),
	})
}

// ExecuteInFlight submits executing spends that have not been submitted
// yet or whose submission went stale.
func (s *Spends) ExecuteInFlight(ctx context.Context) (models.BatchResult, error) {
	return s.runner.executeInFlight(ctx, JobExecuteSpends, models.PayoutKindSpend)
}

// Retry re-executes failed spends whose backoff has elapsed.
func (s *Spends) Retry(ctx context.Context) (models.BatchResult, error) {
	return s.runner.retry(ctx, JobRetrySpends, models.PayoutKindSpend)
}

// Refund returns the juice of a failed spend to the user.
func (s *Spends) Refund(ctx context.Context, id string) (*models.Payout, error) {
	return s.store.RefundPayout(ctx, models.PayoutKindSpend, id, s.runner.now())
}
