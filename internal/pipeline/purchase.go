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

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/riskdelay"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const JobCreditPurchases = "purchases.credit_due"

// PurchaseIntake is a captured or authorised fiat payment that buys juice.
type PurchaseIntake struct {
	ExternalRef string
	UserId      string
	FiatAmount  decimal.Decimal
	Currency    string
	RiskScore   *int
	Captured    bool
}

// Purchases turns fiat payments into juice credits once their risk delay
// has elapsed.
type Purchases struct {
	store  store.PurchaseStore
	policy riskdelay.Policy
	cfg    models.ProcessorConfig
	now    Clock
}

func NewPurchases(s store.PurchaseStore, cfg models.ProcessorConfig, unscoredDays int) *Purchases {
	if unscoredDays < 0 {
		unscoredDays = riskdelay.DefaultUnscoredDays
	}
	return &Purchases{
		store:  s,
		policy: riskdelay.Policy{UnscoredDays: unscoredDays},
		cfg:    Defaults(cfg),
		now:    systemClock,
	}
}

// SetClock replaces the time source.
func (p *Purchases) SetClock(c Clock) { p.now = c }

// Intake records a purchase. A repeated external reference is not an
// error: the existing row is returned with duplicate set.
func (p *Purchases) Intake(ctx context.Context, in PurchaseIntake) (purchase *models.JuicePurchase, duplicate bool, err error) {
	if err := validateCurrency(in.Currency); err != nil {
		return nil, false, err
	}
	if err := validateAmount(in.FiatAmount); err != nil {
		return nil, false, err
	}
	if err := riskdelay.Validate(in.RiskScore); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	now := p.now()
	status := models.PurchaseStatusPending
	if in.Captured {
		status = models.PurchaseStatusClearing
	}
	row := &models.JuicePurchase{
		ExternalRef:         in.ExternalRef,
		UserId:              in.UserId,
		RiskScore:           in.RiskScore,
		FiatAmount:          in.FiatAmount,
		JuiceAmount:         in.FiatAmount,
		SettlementDelayDays: p.policy.Days(in.RiskScore),
		ClearsAt:            now.Add(p.policy.Delay(in.RiskScore)),
		Status:              status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	purchase, err = p.store.InsertPurchase(ctx, row)
	if errors.Is(err, store.ErrDuplicateExternalRef) {
		zap.L().Warn("Duplicate purchase notification",
			zap.String("external_ref", in.ExternalRef),
			zap.String("purchase_id", purchase.Id))
		return purchase, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return purchase, false, nil
}

// Capture moves an authorised purchase into its clearing window.
func (p *Purchases) Capture(ctx context.Context, externalRef string) (*models.JuicePurchase, error) {
	existing, err := p.store.GetPurchaseByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	return p.store.CapturePurchase(ctx, existing.Id, p.now())
}

// CreditDue credits every cleared purchase whose delay has elapsed.
func (p *Purchases) CreditDue(ctx context.Context) (models.BatchResult, error) {
	result := models.BatchResult{Job: JobCreditPurchases}
	now := p.now()
	params := claimParams(p.cfg, now)

	ids, err := p.store.ClaimDuePurchases(ctx, params)
	if err != nil {
		return result, fmt.Errorf("failed to claim due purchases: %w", err)
	}
	result.Claimed = len(ids)

	for _, id := range ids {
		_, err := p.store.CreditPurchase(ctx, id, params.Owner, p.now())
		tally(&result, JobCreditPurchases, id, err)
	}
	return result, nil
}

// MarkDisputed freezes a purchase that has not been credited yet.
func (p *Purchases) MarkDisputed(ctx context.Context, id string, notice models.DisputeNotice) (*models.FiatPaymentDispute, error) {
	return p.store.DisputePurchase(ctx, id, notice, p.now())
}

// MarkRefunded records a provider refund of an uncredited purchase.
func (p *Purchases) MarkRefunded(ctx context.Context, externalRef string) (*models.JuicePurchase, error) {
	existing, err := p.store.GetPurchaseByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	return p.store.RefundPurchase(ctx, existing.Id, p.now())
}
