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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a balance mutation in the ledger history
type EntryKind string

const (
	EntryKindPurchaseCredit   EntryKind = "purchase_credit"
	EntryKindSpendDebit       EntryKind = "spend_debit"
	EntryKindSpendRefund      EntryKind = "spend_refund"
	EntryKindCashOutDebit     EntryKind = "cash_out_debit"
	EntryKindCashOutRefund    EntryKind = "cash_out_refund"
	EntryKindAdjustmentCredit EntryKind = "adjustment_credit"
	EntryKindAdjustmentDebit  EntryKind = "adjustment_debit"
)

// IsCredit reports whether the kind increases the balance.
func (k EntryKind) IsCredit() bool {
	switch k {
	case EntryKindPurchaseCredit, EntryKindSpendRefund, EntryKindCashOutRefund, EntryKindAdjustmentCredit:
		return true
	}
	return false
}

// JuiceBalance is the per-user stored-value balance (hot data)
type JuiceBalance struct {
	UserId            string          `db:"user_id"`
	Balance           decimal.Decimal `db:"balance_cents"`
	LifetimePurchased decimal.Decimal `db:"lifetime_purchased_cents"`
	LifetimeSpent     decimal.Decimal `db:"lifetime_spent_cents"`
	LifetimeCashedOut decimal.Decimal `db:"lifetime_cashed_out_cents"`
	Version           int64           `db:"version"`
	LastActivityAt    time.Time       `db:"last_activity_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// LedgerEntry is the immutable record of one balance mutation (cold data)
type LedgerEntry struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	Kind          EntryKind       `db:"kind"`
	Amount        decimal.Decimal `db:"amount_cents"` // signed
	BalanceBefore decimal.Decimal `db:"balance_before_cents"`
	BalanceAfter  decimal.Decimal `db:"balance_after_cents"`
	SourceRef     string          `db:"source_ref"`
	CreatedAt     time.Time       `db:"created_at"`
	ExportedAt    *time.Time      `db:"exported_at"`
}

// JuicePurchase is one fiat to credit conversion attempt
type JuicePurchase struct {
	Id                  string          `db:"id"`
	ExternalRef         string          `db:"external_ref"`
	UserId              string          `db:"user_id"`
	RiskScore           *int            `db:"risk_score"`
	FiatAmount          decimal.Decimal `db:"fiat_amount_cents"`
	JuiceAmount         decimal.Decimal `db:"juice_amount_cents"`
	SettlementDelayDays int             `db:"settlement_delay_days"`
	ClearsAt            time.Time       `db:"clears_at"`
	CreditedAt          *time.Time      `db:"credited_at"`
	Status              PurchaseStatus  `db:"status"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// FiatPaymentDispute is the append-only audit record of a payment dispute
type FiatPaymentDispute struct {
	Id                string             `db:"id"`
	ExternalRef       string             `db:"external_ref"`
	TargetKind        DisputeTarget      `db:"target_kind"`
	TargetId          string             `db:"target_id"`
	ReasonCode        string             `db:"reason_code"`
	ProviderDisputeId string             `db:"provider_dispute_id"`
	StatusAtDispute   string             `db:"status_at_dispute"`
	Resolution        *DisputeResolution `db:"resolution"`
	ResolvedAt        *time.Time         `db:"resolved_at"`
	CreatedAt         time.Time          `db:"created_at"`
}

// DisputeTarget names the table a dispute record points at
type DisputeTarget string

const (
	DisputeTargetPurchase    DisputeTarget = "purchase"
	DisputeTargetFiatPayment DisputeTarget = "fiat_payment"
)

// DisputeNotice is an inbound dispute notification from the payment provider
type DisputeNotice struct {
	ExternalRef       string
	ReasonCode        string
	ProviderDisputeId string
}
