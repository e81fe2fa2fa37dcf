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

package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"juice-ledger-go/internal/models"

	"go.uber.org/zap"
)

const JobPollWithdrawals = "withdrawals.poll"

// Start polls once to pick up outcomes missed while the process was down,
// then keeps polling in the background.
func (d *WithdrawalListener) Start(ctx context.Context) error {
	zap.L().Info("Starting withdrawal listener")

	if len(d.wallets) == 0 {
		zap.L().Warn("No payout wallets configured - set prime_wallet_id in the chains file")
		return fmt.Errorf("no payout wallets to monitor")
	}

	if failed := d.pollWallets(ctx); failed > len(d.wallets)/2 {
		return fmt.Errorf("startup recovery failed for majority of wallets (%d/%d)", failed, len(d.wallets))
	}

	go d.pollLoop(ctx)
	go d.cleanupLoop(ctx)

	zap.L().Info("Withdrawal listener started successfully",
		zap.Int("wallets", len(d.wallets)),
		zap.Duration("polling_interval", d.pollingInterval),
		zap.Duration("lookback_window", d.lookbackWindow))

	return nil
}

// Stop gracefully stops the withdrawal listener
func (d *WithdrawalListener) Stop() {
	d.stopOnce.Do(func() {
		zap.L().Info("Stopping withdrawal listener")
		close(d.stopChan)
	})
	<-d.doneChan
	zap.L().Info("Withdrawal listener stopped")
}

// Poll checks every payout wallet once. It lets a scheduled run collect
// withdrawal outcomes without the background loop.
func (d *WithdrawalListener) Poll(ctx context.Context) (models.BatchResult, error) {
	result := models.BatchResult{Job: JobPollWithdrawals, Claimed: len(d.wallets)}
	failed := d.pollWallets(ctx)
	result.Failed = failed
	result.Advanced = len(d.wallets) - failed
	if len(d.wallets) > 0 && failed == len(d.wallets) {
		return result, fmt.Errorf("all %d payout wallets failed to poll", failed)
	}
	return result, nil
}

func (d *WithdrawalListener) pollLoop(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.pollWallets(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollWallets polls every payout wallet and returns how many failed.
func (d *WithdrawalListener) pollWallets(ctx context.Context) int {
	since := time.Now().UTC().Add(-d.lookbackWindow)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, wallet := range d.wallets {
		wg.Add(1)

		go func(w payoutWallet) {
			defer wg.Done()

			if err := d.pollWallet(ctx, w, since); err != nil {
				zap.L().Error("Failed to poll wallet",
					zap.String("wallet_id", w.Id),
					zap.String("symbol", w.Symbol),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(wallet)
	}

	wg.Wait()
	return failed
}

func (d *WithdrawalListener) pollWallet(ctx context.Context, wallet payoutWallet, since time.Time) error {
	transactions, err := d.source.ListWalletTransactions(ctx, d.portfolioId, wallet.Id, since)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	for _, tx := range transactions {
		if d.isTransactionProcessed(tx.Id) {
			continue
		}
		if err := d.processWithdrawal(ctx, tx, wallet); err != nil {
			zap.L().Error("Failed to process transaction",
				zap.String("transaction_id", tx.Id),
				zap.String("wallet_id", wallet.Id),
				zap.Error(err))
		}
	}
	return nil
}
