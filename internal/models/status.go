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
	"fmt"
)

// PurchaseStatus is the lifecycle state of a JuicePurchase.
type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"
	PurchaseStatusClearing PurchaseStatus = "clearing"
	PurchaseStatusCredited PurchaseStatus = "credited"
	PurchaseStatusDisputed PurchaseStatus = "disputed"
	PurchaseStatusRefunded PurchaseStatus = "refunded"
)

// SpendStatus is the lifecycle state of a JuiceSpend.
type SpendStatus string

const (
	SpendStatusPending   SpendStatus = "pending"
	SpendStatusExecuting SpendStatus = "executing"
	SpendStatusCompleted SpendStatus = "completed"
	SpendStatusFailed    SpendStatus = "failed"
	SpendStatusRefunded  SpendStatus = "refunded"
)

// CashOutStatus is the lifecycle state of a JuiceCashOut.
type CashOutStatus string

const (
	CashOutStatusPending    CashOutStatus = "pending"
	CashOutStatusProcessing CashOutStatus = "processing"
	CashOutStatusCompleted  CashOutStatus = "completed"
	CashOutStatusCancelled  CashOutStatus = "cancelled"
	CashOutStatusFailed     CashOutStatus = "failed"
	CashOutStatusRefunded   CashOutStatus = "refunded"
)

// FiatPaymentStatus is the lifecycle state of a PendingFiatPayment.
type FiatPaymentStatus string

const (
	FiatPaymentStatusPendingSettlement FiatPaymentStatus = "pending_settlement"
	FiatPaymentStatusSettling          FiatPaymentStatus = "settling"
	FiatPaymentStatusSettled           FiatPaymentStatus = "settled"
	FiatPaymentStatusDisputed          FiatPaymentStatus = "disputed"
	FiatPaymentStatusRefunded          FiatPaymentStatus = "refunded"
	FiatPaymentStatusFailed            FiatPaymentStatus = "failed"
)

// DisputeResolution is the final outcome recorded against a dispute.
type DisputeResolution string

const (
	DisputeResolutionWon       DisputeResolution = "won"
	DisputeResolutionLost      DisputeResolution = "lost"
	DisputeResolutionWithdrawn DisputeResolution = "withdrawn"
)

var (
	purchaseStatuses = []PurchaseStatus{
		PurchaseStatusPending, PurchaseStatusClearing, PurchaseStatusCredited,
		PurchaseStatusDisputed, PurchaseStatusRefunded,
	}
	spendStatuses = []SpendStatus{
		SpendStatusPending, SpendStatusExecuting, SpendStatusCompleted,
		SpendStatusFailed, SpendStatusRefunded,
	}
	cashOutStatuses = []CashOutStatus{
		CashOutStatusPending, CashOutStatusProcessing, CashOutStatusCompleted,
		CashOutStatusCancelled, CashOutStatusFailed, CashOutStatusRefunded,
	}
	fiatPaymentStatuses = []FiatPaymentStatus{
		FiatPaymentStatusPendingSettlement, FiatPaymentStatusSettling, FiatPaymentStatusSettled,
		FiatPaymentStatusDisputed, FiatPaymentStatusRefunded, FiatPaymentStatusFailed,
	}
	disputeResolutions = []DisputeResolution{
		DisputeResolutionWon, DisputeResolutionLost, DisputeResolutionWithdrawn,
	}
)

func ParsePurchaseStatus(s string) (PurchaseStatus, error) {
	return parseEnum(s, "purchase status", purchaseStatuses)
}

func ParseSpendStatus(s string) (SpendStatus, error) {
	return parseEnum(s, "spend status", spendStatuses)
}

func ParseCashOutStatus(s string) (CashOutStatus, error) {
	return parseEnum(s, "cash-out status", cashOutStatuses)
}

func ParseFiatPaymentStatus(s string) (FiatPaymentStatus, error) {
	return parseEnum(s, "fiat payment status", fiatPaymentStatuses)
}

func ParseDisputeResolution(s string) (DisputeResolution, error) {
	return parseEnum(s, "dispute resolution", disputeResolutions)
}

// parseEnum rejects any value outside the closed set instead of coercing it.
func parseEnum[T ~string](s, what string, valid []T) (T, error) {
	for _, v := range valid {
		if string(v) == s {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", what, s)
}
