package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// Wallet represents a Prime wallet
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// Withdrawal represents a Prime withdrawal transaction
type Withdrawal struct {
	ActivityId     string
	TransactionId  string
	Asset          string
	Amount         string
	Destination    string
	IdempotencyKey string
}

// PrimeTransaction is the subset of a Prime wallet transaction the result listener needs
type PrimeTransaction struct {
	Id             string    `json:"id"`
	WalletId       string    `json:"wallet_id"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Symbol         string    `json:"symbol"`
	Amount         string    `json:"amount"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at"`
	TransactionId  string    `json:"transaction_id"`
	BlockchainIds  []string  `json:"blockchain_ids"`
	Network        string    `json:"network"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Chain is a supported settlement network and its payout wallets
type Chain struct {
	Id          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	NetworkId   string  `yaml:"network_id"`
	NetworkType string  `yaml:"network_type"`
	Tokens      []Token `yaml:"tokens"`
}

// Token is a payable asset on a chain
type Token struct {
	Symbol        string          `yaml:"symbol"`
	Decimals      int32           `yaml:"decimals"`
	UsdRate       decimal.Decimal `yaml:"-"`
	RawUsdRate    string          `yaml:"usd_rate"`
	PrimeWalletId string          `yaml:"prime_wallet_id"`
}
