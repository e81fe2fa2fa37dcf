package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"
)

type fakeSource struct {
	mu  sync.Mutex
	txs map[string][]models.PrimeTransaction
	err error
}

func (f *fakeSource) ListWalletTransactions(_ context.Context, _, walletId string, _ time.Time) ([]models.PrimeTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.PrimeTransaction(nil), f.txs[walletId]...), nil
}

func (f *fakeSource) set(walletId string, txs ...models.PrimeTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[walletId] = txs
}

type fakeHandler struct {
	mu      sync.Mutex
	results []models.ExecutionResult
	err     error
}

func (f *fakeHandler) Handle(_ context.Context, res models.ExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return f.err
}

func (f *fakeHandler) handled() []models.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ExecutionResult(nil), f.results...)
}

func setupListener(t *testing.T) (*WithdrawalListener, *fakeSource, *fakeHandler) {
	t.Helper()
	source := &fakeSource{txs: make(map[string][]models.PrimeTransaction)}
	handler := &fakeHandler{}
	l := NewWithdrawalListener(WithdrawalListenerConfig{
		Source:  source,
		Handler: handler,
		Chains: []models.Chain{{
			Id: "base",
			Tokens: []models.Token{
				{Symbol: "USDC", Decimals: 6, PrimeWalletId: "wallet-usdc"},
				{Symbol: "DAI", Decimals: 18},
			},
		}},
		PortfolioId:     "portfolio-1",
		PollingInterval: time.Hour,
	})
	return l, source, handler
}

func withdrawal(id, rowId, status string) models.PrimeTransaction {
	return models.PrimeTransaction{
		Id:             id,
		WalletId:       "wallet-usdc",
		Type:           "WITHDRAWAL",
		Status:         status,
		Symbol:         "USDC",
		Amount:         "-20.5",
		BlockchainIds:  []string{"0xabc123"},
		IdempotencyKey: rowId,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPayoutWalletsSkipTokensWithoutWallet(t *testing.T) {
	l, _, _ := setupListener(t)
	if len(l.wallets) != 1 || l.wallets[0].Id != "wallet-usdc" {
		t.Fatalf("Expected only the USDC payout wallet, got %+v", l.wallets)
	}
}

func TestCompletedWithdrawalReportsSuccess(t *testing.T) {
	l, source, handler := setupListener(t)
	source.set("wallet-usdc", withdrawal("tx-1", "spend-1", "TRANSACTION_DONE"))

	if failed := l.pollWallets(context.Background()); failed != 0 {
		t.Fatalf("Expected no failed wallets, got %d", failed)
	}

	results := handler.handled()
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.RowId != "spend-1" || res.Status != models.ExecutionSucceeded {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.TxHash != "0xabc123" {
		t.Errorf("Expected tx hash 0xabc123, got %s", res.TxHash)
	}
	if res.TokensReceived != "20500000" {
		t.Errorf("Expected 20500000 base units, got %s", res.TokensReceived)
	}

	l.pollWallets(context.Background())
	if len(handler.handled()) != 1 {
		t.Errorf("Expected the transaction to be handled once, got %d", len(handler.handled()))
	}
}

func TestTerminalFailureReportsFailed(t *testing.T) {
	l, source, handler := setupListener(t)
	source.set("wallet-usdc", withdrawal("tx-2", "cashout-1", "TRANSACTION_REJECTED"))

	l.pollWallets(context.Background())

	results := handler.handled()
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != models.ExecutionFailed {
		t.Errorf("Expected failed, got %s", results[0].Status)
	}
	if results[0].Error != "prime status TRANSACTION_REJECTED" {
		t.Errorf("Unexpected error text: %s", results[0].Error)
	}
}

func TestPendingWithdrawalWaitsForCompletion(t *testing.T) {
	l, source, handler := setupListener(t)
	source.set("wallet-usdc", withdrawal("tx-3", "spend-3", "TRANSACTION_PROCESSING"))

	l.pollWallets(context.Background())
	if len(handler.handled()) != 0 {
		t.Fatalf("Expected no result while processing, got %d", len(handler.handled()))
	}
	if l.isTransactionProcessed("tx-3") {
		t.Fatal("Pending transaction should not be marked processed")
	}

	source.set("wallet-usdc", withdrawal("tx-3", "spend-3", "TRANSACTION_DONE"))
	l.pollWallets(context.Background())
	if len(handler.handled()) != 1 {
		t.Errorf("Expected 1 result after completion, got %d", len(handler.handled()))
	}
}

func TestUnknownPayoutIsSkipped(t *testing.T) {
	l, source, handler := setupListener(t)
	handler.err = fmt.Errorf("payout external-1: %w", store.ErrNotFound)
	source.set("wallet-usdc", withdrawal("tx-4", "external-1", "TRANSACTION_DONE"))

	l.pollWallets(context.Background())
	if !l.isTransactionProcessed("tx-4") {
		t.Error("Withdrawal without a payout row should be marked processed")
	}
}

func TestHandlerErrorRetriesNextPoll(t *testing.T) {
	l, source, handler := setupListener(t)
	handler.err = errors.New("database is locked")
	source.set("wallet-usdc", withdrawal("tx-5", "spend-5", "TRANSACTION_DONE"))

	l.pollWallets(context.Background())
	if l.isTransactionProcessed("tx-5") {
		t.Fatal("Transaction should stay unprocessed after a handler error")
	}

	handler.mu.Lock()
	handler.err = nil
	handler.mu.Unlock()
	l.pollWallets(context.Background())

	if len(handler.handled()) != 2 {
		t.Errorf("Expected a second attempt, got %d", len(handler.handled()))
	}
	if !l.isTransactionProcessed("tx-5") {
		t.Error("Transaction should be processed after the retry")
	}
}

func TestIgnoresTransactionsWithoutIdempotencyKey(t *testing.T) {
	l, source, handler := setupListener(t)
	tx := withdrawal("tx-6", "", "TRANSACTION_DONE")
	deposit := withdrawal("tx-7", "spend-7", "TRANSACTION_DONE")
	deposit.Type = "DEPOSIT"
	source.set("wallet-usdc", tx, deposit)

	l.pollWallets(context.Background())
	if len(handler.handled()) != 0 {
		t.Errorf("Expected no results, got %d", len(handler.handled()))
	}
}

func TestStartRequiresPayoutWallets(t *testing.T) {
	l := NewWithdrawalListener(WithdrawalListenerConfig{
		Source:  &fakeSource{txs: make(map[string][]models.PrimeTransaction)},
		Handler: &fakeHandler{},
	})
	if err := l.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail without payout wallets")
	}
}

func TestStartFailsWhenRecoveryFails(t *testing.T) {
	l, source, _ := setupListener(t)
	source.err = errors.New("prime unavailable")

	if err := l.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail when every wallet poll fails")
	}
}

func TestStartAndStop(t *testing.T) {
	l, source, handler := setupListener(t)
	source.set("wallet-usdc", withdrawal("tx-8", "spend-8", "TRANSACTION_DONE"))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(handler.handled()) != 1 {
		t.Errorf("Expected startup recovery to handle 1 result, got %d", len(handler.handled()))
	}

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCleanupProcessedTransactions(t *testing.T) {
	l, _, _ := setupListener(t)
	l.markTransactionProcessed("old")
	l.markTransactionProcessed("new")

	l.mutex.Lock()
	l.processedTxIds["old"] = time.Now().Add(-2 * l.lookbackWindow)
	l.mutex.Unlock()

	l.cleanupProcessedTransactions(time.Now())

	if l.isTransactionProcessed("old") {
		t.Error("Expected old entry to be cleaned up")
	}
	if !l.isTransactionProcessed("new") {
		t.Error("Expected recent entry to be kept")
	}
}

func TestPollReportsWalletOutcomes(t *testing.T) {
	l, source, handler := setupListener(t)
	source.set("wallet-usdc", withdrawal("tx-1", "cash-out-1", "TRANSACTION_DONE"))

	result, err := l.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if result.Job != JobPollWithdrawals || result.Claimed != 1 || result.Advanced != 1 || result.Failed != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if len(handler.handled()) != 1 {
		t.Errorf("Expected the withdrawal to be reported, got %d results", len(handler.handled()))
	}

	source.err = errors.New("prime unavailable")
	result, err = l.Poll(context.Background())
	if err == nil {
		t.Fatal("Expected an error when every wallet fails")
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed wallet, got %d", result.Failed)
	}
}
