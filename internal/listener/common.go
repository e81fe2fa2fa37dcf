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

// Package listener polls Prime payout wallets and turns withdrawal
// outcomes into execution results for the payout pipelines.
package listener

import (
	"context"
	"sync"
	"time"

	"juice-ledger-go/internal/models"

	"go.uber.org/zap"
)

// TransactionSource lists withdrawals from one Prime wallet.
type TransactionSource interface {
	ListWalletTransactions(ctx context.Context, portfolioId, walletId string, since time.Time) ([]models.PrimeTransaction, error)
}

// ResultHandler receives the final outcome of a submitted payout.
type ResultHandler interface {
	Handle(ctx context.Context, res models.ExecutionResult) error
}

// WithdrawalListenerConfig contains configuration for WithdrawalListener
type WithdrawalListenerConfig struct {
	Source          TransactionSource
	Handler         ResultHandler
	Chains          []models.Chain
	PortfolioId     string
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// payoutWallet is a Prime wallet that funds payouts of one token.
type payoutWallet struct {
	Id       string
	ChainId  string
	Symbol   string
	Decimals int32
}

// WithdrawalListener polls payout wallets for withdrawals this service
// created and reports their outcome.
type WithdrawalListener struct {
	source  TransactionSource
	handler ResultHandler

	// State management for processed transactions
	processedTxIds  map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	portfolioId string
	wallets     []payoutWallet

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewWithdrawalListener creates a listener over every token that has a
// payout wallet configured.
func NewWithdrawalListener(cfg WithdrawalListenerConfig) *WithdrawalListener {
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 6 * time.Hour
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 15 * time.Minute
	}

	return &WithdrawalListener{
		source:          cfg.Source,
		handler:         cfg.Handler,
		processedTxIds:  make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		portfolioId:     cfg.PortfolioId,
		wallets:         payoutWallets(cfg.Chains),
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

func payoutWallets(chains []models.Chain) []payoutWallet {
	seen := make(map[string]bool)
	var wallets []payoutWallet
	for _, c := range chains {
		for _, t := range c.Tokens {
			if t.PrimeWalletId == "" || seen[t.PrimeWalletId] {
				continue
			}
			seen[t.PrimeWalletId] = true
			wallets = append(wallets, payoutWallet{
				Id:       t.PrimeWalletId,
				ChainId:  c.Id,
				Symbol:   t.Symbol,
				Decimals: t.Decimals,
			})
		}
	}
	return wallets
}

// isTransactionProcessed checks if we've already processed this transaction
func (d *WithdrawalListener) isTransactionProcessed(txId string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.processedTxIds[txId]
	return exists
}

func (d *WithdrawalListener) markTransactionProcessed(txId string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.processedTxIds[txId] = time.Now()
}

// cleanupLoop periodically cleans old processed transaction IDs
func (d *WithdrawalListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanupProcessedTransactions(time.Now())
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedTransactions forgets ids older than the lookback window.
// Prime stops returning them at that point.
func (d *WithdrawalListener) cleanupProcessedTransactions(now time.Time) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cutoff := now.Add(-d.lookbackWindow)
	cleaned := 0

	for txId, processedTime := range d.processedTxIds {
		if processedTime.Before(cutoff) {
			delete(d.processedTxIds, txId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed transactions",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(d.processedTxIds)))
	}
}
