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

// PayoutKind identifies which pipeline table an on-chain payout row lives in
type PayoutKind string

const (
	PayoutKindSpend       PayoutKind = "spend"
	PayoutKindCashOut     PayoutKind = "cash_out"
	PayoutKindFiatPayment PayoutKind = "fiat_payment"
)

// Execution holds the chain-execution bookkeeping shared by every payout row.
type Execution struct {
	RetryCount     int        `db:"retry_count"`
	LastRetryAt    *time.Time `db:"last_retry_at"`
	NextRetryAt    *time.Time `db:"next_retry_at"`
	SubmittedAt    *time.Time `db:"submitted_at"`
	ExecutionRef   string     `db:"execution_ref"`
	TxHash         string     `db:"tx_hash"`
	TokensReceived string     `db:"tokens_received"` // base units
	LastError      string     `db:"last_error"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// Project is the on-chain destination a spend or direct settlement pays into
type Project struct {
	Id          string
	ChainId     string
	Beneficiary string
	Token       string
}

// JuiceSpend is one credit to on-chain payment attempt
type JuiceSpend struct {
	Id           string          `db:"id"`
	UserId       string          `db:"user_id"`
	ProjectId    string          `db:"project_id"`
	ChainId      string          `db:"chain_id"`
	Beneficiary  string          `db:"destination"`
	Token        string          `db:"token"`
	JuiceAmount  decimal.Decimal `db:"juice_amount_cents"`
	CryptoAmount string          `db:"crypto_amount"` // base units
	ExchangeRate decimal.Decimal `db:"exchange_rate"` // USD per token
	Status       SpendStatus     `db:"status"`
	Execution
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// JuiceCashOut is one credit to wallet withdrawal
type JuiceCashOut struct {
	Id                 string          `db:"id"`
	UserId             string          `db:"user_id"`
	ChainId            string          `db:"chain_id"`
	DestinationAddress string          `db:"destination"`
	Token              string          `db:"token"`
	JuiceAmount        decimal.Decimal `db:"juice_amount_cents"`
	CryptoAmount       string          `db:"crypto_amount"` // set when processing starts
	ExchangeRate       decimal.Decimal `db:"exchange_rate"`
	AvailableAt        time.Time       `db:"available_at"`
	CancelledAt        *time.Time      `db:"cancelled_at"`
	Status             CashOutStatus   `db:"status"`
	Execution
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PendingFiatPayment is a fiat payment that settles straight to a project beneficiary
type PendingFiatPayment struct {
	Id                  string            `db:"id"`
	ExternalRef         string            `db:"external_ref"`
	ProjectId           string            `db:"project_id"`
	ChainId             string            `db:"chain_id"`
	BeneficiaryAddress  string            `db:"destination"`
	Token               string            `db:"token"`
	RiskScore           *int              `db:"risk_score"`
	FiatAmount          decimal.Decimal   `db:"fiat_amount_cents"`
	SettlementDelayDays int               `db:"settlement_delay_days"`
	SettlesAt           time.Time         `db:"settles_at"`
	SettlementRate      decimal.Decimal   `db:"settlement_rate"`
	CryptoAmount        string            `db:"crypto_amount"`
	Status              FiatPaymentStatus `db:"status"`
	Execution
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SettlementTxHash is the on-chain hash of the settlement transfer, if any.
func (p *PendingFiatPayment) SettlementTxHash() string { return p.TxHash }

// Payout is the pipeline-independent view of a row awaiting on-chain execution
type Payout struct {
	Kind         PayoutKind
	Id           string
	UserId       string // empty for direct fiat settlements
	Status       string
	ChainId      string
	Destination  string
	Token        string
	Amount       decimal.Decimal // fiat or juice amount
	CryptoAmount string
	Execution
}

// PaymentRequest is what the chain-execution collaborator receives
type PaymentRequest struct {
	Kind            PayoutKind
	ChainId         string
	Beneficiary     string
	Token           string
	AmountBaseUnits string
	IdempotencyKey  string // the payout row id
}

// ExecutionStatus is the outcome class reported by the chain-execution collaborator
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSubmitted ExecutionStatus = "submitted" // accepted, final result arrives later
)

// ExecutionResult is a synchronous or asynchronous chain execution outcome
type ExecutionResult struct {
	RowId          string
	Status         ExecutionStatus
	ExecutionRef   string
	TxHash         string
	TokensReceived string
	Error          string
}

// BatchResult is the aggregate outcome of one batch job invocation
type BatchResult struct {
	Job      string
	Claimed  int
	Advanced int
	Skipped  int
	Failed   int
}

// Add folds another batch into this one.
func (r *BatchResult) Add(o BatchResult) {
	r.Claimed += o.Claimed
	r.Advanced += o.Advanced
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}
