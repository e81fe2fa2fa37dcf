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
	"errors"
	"fmt"

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/riskdelay"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	JobSettleFiatPayments = "settlements.settle_due"
	JobExecuteSettlements = "settlements.execute"
	JobRetrySettlements   = "settlements.retry"
)

// SettlementIntake is a fiat payment routed straight to a project.
type SettlementIntake struct {
	ExternalRef string
	Project     models.Project
	FiatAmount  decimal.Decimal
	Currency    string
	RiskScore   *int
}

// Settlements pays captured fiat straight to a project beneficiary
// once the risk delay has elapsed. No user balance is involved.
type Settlements struct {
	store    store.FiatPaymentStore
	registry ChainRegistry
	quoter   Quoter
	policy   riskdelay.Policy
	runner   *payoutRunner
}

func NewSettlements(s store.FiatPaymentStore, registry ChainRegistry, quoter Quoter, executor Executor, cfg models.ProcessorConfig, unscoredDays int) *Settlements {
	if unscoredDays < 0 {
		unscoredDays = riskdelay.DefaultUnscoredDays
	}
	return &Settlements{
		store:    s,
		registry: registry,
		quoter:   quoter,
		policy:   riskdelay.Policy{UnscoredDays: unscoredDays},
		runner: &payoutRunner{
			store:    s,
			executor: executor,
			cfg:      Defaults(cfg),
			now:      systemClock,
		},
	}
}

// SetClock replaces the time source.
func (s *Settlements) SetClock(c Clock) { s.runner.now = c }

// Intake quotes the project token and records the payment with its rate
// locked. A repeated external reference returns the existing row with
// duplicate set.
func (s *Settlements) Intake(ctx context.Context, in SettlementIntake) (payment *models.PendingFiatPayment, duplicate bool, err error) {
	if err := validateCurrency(in.Currency); err != nil {
		return nil, false, err
	}
	if err := validateAmount(in.FiatAmount); err != nil {
		return nil, false, err
	}
	if err := riskdelay.Validate(in.RiskScore); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if in.ExternalRef == "" || in.Project.Id == "" {
		return nil, false, fmt.Errorf("%w: external reference and project are required", store.ErrValidation)
	}

	if existing, err := s.store.GetFiatPaymentByExternalRef(ctx, in.ExternalRef); err == nil {
		zap.L().Warn("Duplicate settlement notification",
			zap.String("external_ref", in.ExternalRef),
			zap.String("fiat_payment_id", existing.Id))
		return existing, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	token, err := s.registry.Token(in.Project.ChainId, in.Project.Token)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	beneficiary, err := chains.NormalizeAddress(in.Project.Beneficiary)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	rate, err := s.quoter.Quote(ctx, in.Project.ChainId, token.Symbol)
	if err != nil {
		return nil, false, fmt.Errorf("unable to quote %s on %s: %w", token.Symbol, in.Project.ChainId, err)
	}
	crypto, err := chains.ToBaseUnits(in.FiatAmount, rate, token.Decimals)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if crypto == "0" {
		return nil, false, fmt.Errorf("%w: %s is below one base unit of %s", store.ErrValidation, in.FiatAmount.String(), token.Symbol)
	}

	now := s.runner.now()
	payment, err = s.store.InsertFiatPayment(ctx, &models.PendingFiatPayment{
		ExternalRef:         in.ExternalRef,
		ProjectId:           in.Project.Id,
		ChainId:             in.Project.ChainId,
		BeneficiaryAddress:  beneficiary,
		Token:               token.Symbol,
		RiskScore:           in.RiskScore,
		FiatAmount:          in.FiatAmount,
		SettlementDelayDays: s.policy.Days(in.RiskScore),
		SettlesAt:           now.Add(s.policy.Delay(in.RiskScore)),
		SettlementRate:      rate,
		CryptoAmount:        crypto,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if errors.Is(err, store.ErrDuplicateExternalRef) {
		return payment, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payment, false, nil
}

// SettleDue executes every matured payment with its locked amount.
func (s *Settlements) SettleDue(ctx context.Context) (models.BatchResult, error) {
	result := models.BatchResult{Job: JobSettleFiatPayments}
	now := s.runner.now()
	params := claimParams(s.runner.cfg, now)

	ids, err := s.store.ClaimDueFiatPayments(ctx, params)
	if err != nil {
		return result, fmt.Errorf("failed to claim due fiat payments: %w", err)
	}
	result.Claimed = len(ids)

	for _, id := range ids {
		payout, err := s.store.StartSettlement(ctx, id, params.Owner, s.runner.now())
		if err != nil {
			tally(&result, JobSettleFiatPayments, id, err)
			continue
		}
		s.runner.execute(ctx, JobSettleFiatPayments, payout, params.Owner, &result)
	}
	return result, nil
}

// ExecuteInFlight resubmits settling payments whose submission went stale.
func (s *Settlements) ExecuteInFlight(ctx context.Context) (models.BatchResult, error) {
	return s.runner.executeInFlight(ctx, JobExecuteSettlements, models.PayoutKindFiatPayment)
}

// Retry re-executes failed settlements whose backoff has elapsed.
func (s *Settlements) Retry(ctx context.Context) (models.BatchResult, error) {
	return s.runner.retry(ctx, JobRetrySettlements, models.PayoutKindFiatPayment)
}

// MarkDisputed freezes a payment that has not settled.
func (s *Settlements) MarkDisputed(ctx context.Context, id string, notice models.DisputeNotice) (*models.FiatPaymentDispute, error) {
	return s.store.DisputeFiatPayment(ctx, id, notice, s.runner.now())
}

// MarkRefunded records a provider refund of a payment still waiting to settle.
func (s *Settlements) MarkRefunded(ctx context.Context, externalRef string) (*models.PendingFiatPayment, error) {
	existing, err := s.store.GetFiatPaymentByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	return s.store.RefundFiatPayment(ctx, existing.Id, s.runner.now())
}

// Refund is the operator refund of a failed settlement.
func (s *Settlements) Refund(ctx context.Context, id string) (*models.Payout, error) {
	return s.store.RefundPayout(ctx, models.PayoutKindFiatPayment, id, s.runner.now())
}
