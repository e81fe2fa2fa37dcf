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

// BalanceSnapshot is the read model shown to users
type BalanceSnapshot struct {
	UserId            string          `json:"user_id"`
	Balance           decimal.Decimal `json:"balance"`
	LifetimePurchased decimal.Decimal `json:"lifetime_purchased"`
	LifetimeSpent     decimal.Decimal `json:"lifetime_spent"`
	LifetimeCashedOut decimal.Decimal `json:"lifetime_cashed_out"`
	LastActivityAt    *time.Time      `json:"last_activity_at,omitempty"`
}

// HistoryRecord represents a balance movement in the user's history
type HistoryRecord struct {
	Id           string          `json:"id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DisplayStatus is the coarse status a user is allowed to see
type DisplayStatus string

const (
	DisplayProcessing           DisplayStatus = "processing"
	DisplayCompleted            DisplayStatus = "completed"
	DisplayFailedContactSupport DisplayStatus = "failed, contact support"
	DisplayCancelled            DisplayStatus = "cancelled"
	DisplayRefunded             DisplayStatus = "refunded"
)

// PayoutView is the user-facing view of a spend or cash-out
type PayoutView struct {
	Id     string          `json:"id"`
	Kind   PayoutKind      `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Status DisplayStatus   `json:"status"`
	TxHash string          `json:"tx_hash,omitempty"`
}
