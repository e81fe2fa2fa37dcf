package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"
)

func requestCashOut(t *testing.T, env *testEnv, userId, amount string) *models.JuiceCashOut {
	t.Helper()
	c, err := env.cashOuts.Request(context.Background(), CashOutRequest{
		UserId:      userId,
		ChainId:     "base",
		Token:       "usdc",
		Destination: testBeneficiary,
		Amount:      dec(amount),
	})
	if err != nil {
		t.Fatalf("Cash-out request failed: %v", err)
	}
	return c
}

func TestCashOutCancelRestoresExactAmount(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()
	env.seedBalance(t, "user-1", "30.00")

	c := requestCashOut(t, env, "user-1", "17.45")
	if c.Status != models.CashOutStatusPending || c.Token != "USDC" || c.DestinationAddress != checksummed {
		t.Errorf("Unexpected cash-out: %+v", c)
	}
	if want := env.clock.Now().Add(DefaultCashOutDelay); !c.AvailableAt.Equal(want) {
		t.Errorf("Expected available_at %v, got %v", want, c.AvailableAt)
	}
	env.assertBalance(t, "user-1", "12.55")

	cancelled, err := env.cashOuts.Cancel(ctx, c.Id, "user-1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != models.CashOutStatusCancelled {
		t.Errorf("Expected cancelled, got %s", cancelled.Status)
	}
	env.assertBalance(t, "user-1", "30.00")

	if _, err := env.cashOuts.Cancel(ctx, c.Id, "user-1"); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on second cancel, got %v", err)
	}
	env.assertBalance(t, "user-1", "30.00")
}

func TestCashOutProcessesAfterDelay(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()
	env.seedBalance(t, "user-1", "30.00")

	c := requestCashOut(t, env, "user-1", "30.00")

	result, err := env.cashOuts.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if result.Claimed != 0 {
		t.Errorf("Cash-out processed before its delay: %+v", result)
	}

	env.clock.Advance(24 * time.Hour)
	env.quoter.set("USDC", "0.5", nil)
	result, err = env.cashOuts.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	assertBatch(t, result, 1, 1, 0, 0)

	got, err := env.db.GetCashOut(ctx, c.Id)
	if err != nil {
		t.Fatalf("GetCashOut failed: %v", err)
	}
	if got.Status != models.CashOutStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.CryptoAmount != "60000000" || !got.ExchangeRate.Equal(dec("0.5")) {
		t.Errorf("Expected rate locked at processing, got %s at %s", got.CryptoAmount, got.ExchangeRate)
	}
	calls := env.executor.calls()
	if len(calls) != 1 || calls[0].Kind != models.PayoutKindCashOut || calls[0].IdempotencyKey != c.Id {
		t.Errorf("Unexpected executions: %+v", calls)
	}

	if _, err := env.cashOuts.Cancel(ctx, c.Id, "user-1"); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected cancel after completion to fail, got %v", err)
	}
	env.assertBalance(t, "user-1", "0.00")
}

func TestCashOutCancelRejectedWhileProcessing(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()
	env.seedBalance(t, "user-1", "10.00")

	c := requestCashOut(t, env, "user-1", "10.00")
	env.clock.Advance(24 * time.Hour)
	env.executor.setRespond(func(_ context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
		return models.ExecutionResult{RowId: req.IdempotencyKey, Status: models.ExecutionSubmitted, ExecutionRef: "activity-9"}, nil
	})
	if _, err := env.cashOuts.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if _, err := env.cashOuts.Cancel(ctx, c.Id, "user-1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition while processing, got %v", err)
	}
	env.assertBalance(t, "user-1", "0.00")
}

func TestCashOutQuoteFailureLeavesRowPending(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()
	env.seedBalance(t, "user-1", "10.00")

	c := requestCashOut(t, env, "user-1", "10.00")
	env.clock.Advance(25 * time.Hour)
	env.quoter.set("USDC", "", errors.New("price feed down"))

	result, err := env.cashOuts.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	assertBatch(t, result, 1, 0, 0, 1)

	got, _ := env.db.GetCashOut(ctx, c.Id)
	if got.Status != models.CashOutStatusPending {
		t.Errorf("Expected pending after quote failure, got %s", got.Status)
	}

	env.quoter.set("USDC", "1", nil)
	result, err = env.cashOuts.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	assertBatch(t, result, 1, 1, 0, 0)
}

func TestCashOutFailureRefund(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()
	env.seedBalance(t, "user-1", "10.00")

	c := requestCashOut(t, env, "user-1", "10.00")
	env.clock.Advance(24 * time.Hour)
	env.executor.setRespond(fail)
	if _, err := env.cashOuts.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	got, _ := env.db.GetCashOut(ctx, c.Id)
	if got.Status != models.CashOutStatusFailed {
		t.Fatalf("Expected failed, got %s", got.Status)
	}

	if _, err := env.cashOuts.Refund(ctx, c.Id); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	env.assertBalance(t, "user-1", "10.00")
	if err := env.db.ReconcileBalance(ctx, "user-1"); err != nil {
		t.Errorf("ReconcileBalance failed: %v", err)
	}
}
