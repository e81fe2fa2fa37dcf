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
	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Disputes routes provider dispute and refund notices to the purchase or
// direct settlement that the external reference belongs to.
type Disputes struct {
	store       store.DisputeStore
	purchases   *Purchases
	settlements *Settlements
	now         Clock
}

func NewDisputes(s store.DisputeStore, purchases *Purchases, settlements *Settlements) *Disputes {
	return &Disputes{
		store:       s,
		purchases:   purchases,
		settlements: settlements,
		now:         systemClock,
	}
}

// SetClock replaces the time source.
func (d *Disputes) SetClock(c Clock) { d.now = c }

// HandleDispute freezes the row behind notice.ExternalRef. ErrNotFound is
// returned unchanged. A redelivered notice returns the stored record with
// ErrAlreadyTerminal; a row that can no longer be disputed returns a nil
// record with ErrAlreadyTerminal.
func (d *Disputes) HandleDispute(ctx context.Context, notice models.DisputeNotice) (*models.FiatPaymentDispute, error) {
	if notice.ExternalRef == "" {
		return nil, fmt.Errorf("%w: dispute notice has no external reference", store.ErrValidation)
	}

	dispute, err := d.freeze(ctx, notice)
	if !errors.Is(err, store.ErrAlreadyTerminal) {
		return dispute, err
	}
	if existing := d.recorded(ctx, notice); existing != nil {
		zap.L().Info("Dispute already recorded",
			zap.String("dispute_id", existing.Id),
			zap.String("provider_dispute_id", notice.ProviderDisputeId))
		return existing, err
	}
	return nil, err
}

func (d *Disputes) freeze(ctx context.Context, notice models.DisputeNotice) (*models.FiatPaymentDispute, error) {
	purchase, err := d.purchases.store.GetPurchaseByExternalRef(ctx, notice.ExternalRef)
	switch {
	case err == nil:
		return d.purchases.MarkDisputed(ctx, purchase.Id, notice)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	payment, err := d.settlements.store.GetFiatPaymentByExternalRef(ctx, notice.ExternalRef)
	if err != nil {
		return nil, err
	}
	return d.settlements.MarkDisputed(ctx, payment.Id, notice)
}

// recorded returns the dispute stored for the same provider dispute and
// charge, or nil.
func (d *Disputes) recorded(ctx context.Context, notice models.DisputeNotice) *models.FiatPaymentDispute {
	if notice.ProviderDisputeId == "" {
		return nil
	}
	existing, err := d.store.FindDisputeByProviderId(ctx, notice.ProviderDisputeId)
	if err != nil || existing.ExternalRef != notice.ExternalRef {
		return nil
	}
	return existing
}

// HandleRefund applies a provider refund to whichever row owns externalRef.
func (d *Disputes) HandleRefund(ctx context.Context, externalRef string) (models.DisputeTarget, error) {
	_, err := d.purchases.MarkRefunded(ctx, externalRef)
	if err == nil {
		return models.DisputeTargetPurchase, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.DisputeTargetPurchase, err
	}

	if _, err := d.settlements.MarkRefunded(ctx, externalRef); err != nil {
		return models.DisputeTargetFiatPayment, err
	}
	return models.DisputeTargetFiatPayment, nil
}

// Resolve records the final outcome of a dispute. Each dispute resolves
// once; later notices return the stored record with ErrAlreadyTerminal.
func (d *Disputes) Resolve(ctx context.Context, providerDisputeId string, resolution models.DisputeResolution) (*models.FiatPaymentDispute, error) {
	dispute, err := d.store.FindDisputeByProviderId(ctx, providerDisputeId)
	if err != nil {
		return nil, err
	}
	resolved, err := d.store.ResolveDispute(ctx, dispute.Id, resolution, d.now())
	if err != nil {
		return resolved, err
	}
	zap.L().Info("Dispute resolved",
		zap.String("dispute_id", resolved.Id),
		zap.String("target_id", resolved.TargetId),
		zap.String("resolution", string(resolution)))
	return resolved, nil
}
