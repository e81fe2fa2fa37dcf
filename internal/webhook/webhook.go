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

// Package webhook turns Stripe charge and dispute events into purchase,
// settlement, refund and dispute calls on the pipelines. Signature
// verification happens before events reach this package.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/pipeline"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// Charge metadata keys set at checkout.
const (
	MetaUserId      = "user_id"
	MetaProjectId   = "project_id"
	MetaChainId     = "chain_id"
	MetaBeneficiary = "beneficiary"
	MetaToken       = "token"
)

// Outcome reports what an event did.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Dispatcher routes decoded Stripe events.
type Dispatcher struct {
	purchases   *pipeline.Purchases
	settlements *pipeline.Settlements
	disputes    *pipeline.Disputes
}

func NewDispatcher(purchases *pipeline.Purchases, settlements *pipeline.Settlements, disputes *pipeline.Disputes) *Dispatcher {
	return &Dispatcher{
		purchases:   purchases,
		settlements: settlements,
		disputes:    disputes,
	}
}

// Dispatch decodes a raw event body and handles it.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) (Outcome, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: invalid event payload: %v", store.ErrValidation, err)
	}
	return d.HandleEvent(ctx, event)
}

func (d *Dispatcher) HandleEvent(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return OutcomeIgnored, fmt.Errorf("%w: event %s has no data", store.ErrValidation, event.ID)
	}

	zap.L().Info("Handling Stripe event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypeChargeSucceeded:
		charge, err := decodeCharge(event)
		if err != nil {
			return OutcomeIgnored, err
		}
		return d.chargeSucceeded(ctx, charge)
	case stripe.EventTypeChargeCaptured:
		charge, err := decodeCharge(event)
		if err != nil {
			return OutcomeIgnored, err
		}
		return d.chargeCaptured(ctx, charge)
	case stripe.EventTypeChargeRefunded:
		charge, err := decodeCharge(event)
		if err != nil {
			return OutcomeIgnored, err
		}
		return d.chargeRefunded(ctx, charge)
	case stripe.EventTypeChargeDisputeCreated:
		dispute, err := decodeDispute(event)
		if err != nil {
			return OutcomeIgnored, err
		}
		return d.disputeCreated(ctx, dispute)
	case stripe.EventTypeChargeDisputeClosed:
		dispute, err := decodeDispute(event)
		if err != nil {
			return OutcomeIgnored, err
		}
		return d.disputeClosed(ctx, dispute)
	default:
		zap.L().Debug("Ignoring Stripe event", zap.String("type", string(event.Type)))
		return OutcomeIgnored, nil
	}
}

func decodeCharge(event stripe.Event) (*stripe.Charge, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("%w: invalid charge in event %s: %v", store.ErrValidation, event.ID, err)
	}
	if charge.ID == "" {
		return nil, fmt.Errorf("%w: charge in event %s has no id", store.ErrValidation, event.ID)
	}
	return &charge, nil
}

func decodeDispute(event stripe.Event) (*stripe.Dispute, error) {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return nil, fmt.Errorf("%w: invalid dispute in event %s: %v", store.ErrValidation, event.ID, err)
	}
	if dispute.ID == "" || dispute.Charge == nil || dispute.Charge.ID == "" {
		return nil, fmt.Errorf("%w: dispute in event %s has no charge", store.ErrValidation, event.ID)
	}
	return &dispute, nil
}

// riskScore is nil when Stripe did not assess the charge.
func riskScore(charge *stripe.Charge) *int {
	if charge.Outcome == nil {
		return nil
	}
	switch charge.Outcome.RiskLevel {
	case "", "not_assessed", "unknown":
		return nil
	}
	score := int(charge.Outcome.RiskScore)
	return &score
}

func fiatAmount(charge *stripe.Charge) decimal.Decimal {
	return decimal.New(charge.Amount, -2)
}

func currency(charge *stripe.Charge) string {
	return strings.ToUpper(string(charge.Currency))
}

// project returns the settlement routing carried in charge metadata.
func project(charge *stripe.Charge) (models.Project, bool) {
	id := charge.Metadata[MetaProjectId]
	if id == "" {
		return models.Project{}, false
	}
	return models.Project{
		Id:          id,
		ChainId:     charge.Metadata[MetaChainId],
		Beneficiary: charge.Metadata[MetaBeneficiary],
		Token:       charge.Metadata[MetaToken],
	}, true
}

func (d *Dispatcher) chargeSucceeded(ctx context.Context, charge *stripe.Charge) (Outcome, error) {
	if p, ok := project(charge); ok {
		if !charge.Captured {
			zap.L().Info("Settlement charge not captured yet, waiting for capture",
				zap.String("charge_id", charge.ID))
			return OutcomeIgnored, nil
		}
		return d.settle(ctx, charge, p)
	}

	userId := charge.Metadata[MetaUserId]
	if userId == "" {
		return OutcomeIgnored, fmt.Errorf("%w: charge %s has no user or project routing", store.ErrValidation, charge.ID)
	}

	_, dup, err := d.purchases.Intake(ctx, pipeline.PurchaseIntake{
		ExternalRef: charge.ID,
		UserId:      userId,
		FiatAmount:  fiatAmount(charge),
		Currency:    currency(charge),
		RiskScore:   riskScore(charge),
		Captured:    charge.Captured,
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	if dup {
		return OutcomeDuplicate, nil
	}
	return OutcomeRecorded, nil
}

func (d *Dispatcher) settle(ctx context.Context, charge *stripe.Charge, p models.Project) (Outcome, error) {
	_, dup, err := d.settlements.Intake(ctx, pipeline.SettlementIntake{
		ExternalRef: charge.ID,
		Project:     p,
		FiatAmount:  fiatAmount(charge),
		Currency:    currency(charge),
		RiskScore:   riskScore(charge),
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	if dup {
		return OutcomeDuplicate, nil
	}
	return OutcomeRecorded, nil
}

func (d *Dispatcher) chargeCaptured(ctx context.Context, charge *stripe.Charge) (Outcome, error) {
	if p, ok := project(charge); ok {
		return d.settle(ctx, charge, p)
	}

	_, err := d.purchases.Capture(ctx, charge.ID)
	switch {
	case err == nil:
		return OutcomeRecorded, nil
	case errors.Is(err, store.ErrNotFound):
		// Capture arrived before the charge itself.
		return d.chargeSucceeded(ctx, charge)
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrAlreadyTerminal):
		zap.L().Warn("Capture for a purchase that already moved on",
			zap.String("charge_id", charge.ID),
			zap.Error(err))
		return OutcomeDuplicate, nil
	default:
		return OutcomeIgnored, err
	}
}

func (d *Dispatcher) chargeRefunded(ctx context.Context, charge *stripe.Charge) (Outcome, error) {
	if !charge.Refunded {
		zap.L().Info("Partial refund ignored",
			zap.String("charge_id", charge.ID),
			zap.Int64("amount_refunded", charge.AmountRefunded))
		return OutcomeIgnored, nil
	}

	target, err := d.disputes.HandleRefund(ctx, charge.ID)
	if errors.Is(err, store.ErrAlreadyTerminal) {
		zap.L().Warn("Refund for a row already in a terminal state",
			zap.String("charge_id", charge.ID),
			zap.String("target", string(target)),
			zap.Error(err))
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeRecorded, nil
}

func (d *Dispatcher) disputeCreated(ctx context.Context, dispute *stripe.Dispute) (Outcome, error) {
	record, err := d.disputes.HandleDispute(ctx, models.DisputeNotice{
		ExternalRef:       dispute.Charge.ID,
		ReasonCode:        string(dispute.Reason),
		ProviderDisputeId: dispute.ID,
	})
	if record != nil && errors.Is(err, store.ErrAlreadyTerminal) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeRecorded, nil
}

func (d *Dispatcher) disputeClosed(ctx context.Context, dispute *stripe.Dispute) (Outcome, error) {
	var resolution models.DisputeResolution
	switch dispute.Status {
	case stripe.DisputeStatusWon:
		resolution = models.DisputeResolutionWon
	case stripe.DisputeStatusLost:
		resolution = models.DisputeResolutionLost
	case stripe.DisputeStatusWarningClosed:
		resolution = models.DisputeResolutionWithdrawn
	default:
		zap.L().Warn("Closed dispute with unexpected status",
			zap.String("dispute_id", dispute.ID),
			zap.String("status", string(dispute.Status)))
		return OutcomeIgnored, nil
	}

	_, err := d.disputes.Resolve(ctx, dispute.ID, resolution)
	if errors.Is(err, store.ErrAlreadyTerminal) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeRecorded, nil
}
