package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"juice-ledger-go/internal/database"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*LedgerService, *database.Service, func()) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	return NewLedgerService(db, 3), db, func() { db.Close() }
}

func seed(t *testing.T, db *database.Service, userId, amount string) {
	t.Helper()
	_, err := db.Credit(context.Background(), store.MoveParams{
		UserId:    userId,
		Amount:    decimal.RequireFromString(amount),
		Kind:      models.EntryKindPurchaseCredit,
		SourceRef: "purchase:" + userId + ":" + amount,
		Now:       testNow,
	})
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}
}

func createSpend(t *testing.T, db *database.Service, userId, amount string) *models.JuiceSpend {
	t.Helper()
	sp, err := db.CreateSpend(context.Background(), &models.JuiceSpend{
		UserId:       userId,
		ProjectId:    "project-1",
		ChainId:      "base",
		Beneficiary:  "0x52908400098527886E0F7030069857D2E4169EE7",
		Token:        "USDC",
		JuiceAmount:  decimal.RequireFromString(amount),
		CryptoAmount: "1000000",
		ExchangeRate: decimal.NewFromInt(1),
		CreatedAt:    testNow.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Failed to create spend: %v", err)
	}
	return sp
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		status     string
		retryCount int
		want       models.DisplayStatus
	}{
		{"pending", 0, models.DisplayProcessing},
		{"executing", 2, models.DisplayProcessing},
		{"processing", 0, models.DisplayProcessing},
		{"failed", 1, models.DisplayProcessing},
		{"failed", 3, models.DisplayFailedContactSupport},
		{"completed", 0, models.DisplayCompleted},
		{"settled", 0, models.DisplayCompleted},
		{"refunded", 3, models.DisplayRefunded},
		{"cancelled", 0, models.DisplayCancelled},
		{"disputed", 0, models.DisplayFailedContactSupport},
	}
	for _, tt := range tests {
		if got := Display(tt.status, tt.retryCount, 3); got != tt.want {
			t.Errorf("Display(%q, %d) = %q, want %q", tt.status, tt.retryCount, got, tt.want)
		}
	}
}

func TestBalanceSnapshot(t *testing.T) {
	svc, db, cleanup := setupTestService(t)
	defer cleanup()

	snap, err := svc.GetBalanceSnapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetBalanceSnapshot failed: %v", err)
	}
	if !snap.Balance.IsZero() || snap.LastActivityAt != nil {
		t.Errorf("Expected an empty snapshot, got %+v", snap)
	}

	seed(t, db, "user-1", "50.00")
	createSpend(t, db, "user-1", "12.50")

	snap, err = svc.GetBalanceSnapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetBalanceSnapshot failed: %v", err)
	}
	if snap.Balance.StringFixed(2) != "37.50" {
		t.Errorf("Expected balance 37.50, got %s", snap.Balance.String())
	}
	if snap.LifetimePurchased.StringFixed(2) != "50.00" || snap.LifetimeSpent.StringFixed(2) != "12.50" {
		t.Errorf("Unexpected lifetime totals: %+v", snap)
	}
	if !snap.LifetimeCashedOut.IsZero() {
		t.Errorf("Expected nothing cashed out, got %s", snap.LifetimeCashedOut.String())
	}
	if snap.LastActivityAt == nil {
		t.Error("Expected a last activity time")
	}

	if _, err := svc.GetBalanceSnapshot(context.Background(), ""); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for an empty user, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	svc, db, cleanup := setupTestService(t)
	defer cleanup()

	seed(t, db, "user-1", "50.00")
	createSpend(t, db, "user-1", "20.00")

	history, err := svc.GetHistory(context.Background(), "user-1", 0, -1)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(history))
	}
	if history[0].Kind != string(models.EntryKindSpendDebit) || history[0].BalanceAfter.StringFixed(2) != "30.00" {
		t.Errorf("Unexpected newest record: %+v", history[0])
	}
	if history[1].Kind != string(models.EntryKindPurchaseCredit) {
		t.Errorf("Unexpected oldest record: %+v", history[1])
	}

	page, err := svc.GetHistory(context.Background(), "user-1", 1, 1)
	if err != nil {
		t.Fatalf("GetHistory page failed: %v", err)
	}
	if len(page) != 1 || page[0].Id != history[1].Id {
		t.Errorf("Expected the second record on page 2, got %+v", page)
	}
}

func TestGetSpend(t *testing.T) {
	svc, db, cleanup := setupTestService(t)
	defer cleanup()

	seed(t, db, "user-1", "50.00")
	sp := createSpend(t, db, "user-1", "10.00")

	view, err := svc.GetSpend(context.Background(), "user-1", sp.Id)
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if view.Status != models.DisplayProcessing || view.Kind != models.PayoutKindSpend {
		t.Errorf("Unexpected view: %+v", view)
	}

	err = db.FailPayout(context.Background(), models.PayoutKindSpend, sp.Id, "", "insufficient gas", nil, testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("FailPayout failed: %v", err)
	}
	view, _ = svc.GetSpend(context.Background(), "user-1", sp.Id)
	if view.Status != models.DisplayProcessing {
		t.Errorf("Expected a failure inside the retry budget to show processing, got %s", view.Status)
	}

	if _, err := svc.GetSpend(context.Background(), "user-2", sp.Id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's spend, got %v", err)
	}
	if _, err := svc.GetSpend(context.Background(), "user-1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing spend, got %v", err)
	}
}

func TestGetCashOut(t *testing.T) {
	svc, db, cleanup := setupTestService(t)
	defer cleanup()

	seed(t, db, "user-1", "50.00")
	c, err := db.CreateCashOut(context.Background(), &models.JuiceCashOut{
		UserId:             "user-1",
		ChainId:            "base",
		DestinationAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
		Token:              "USDC",
		JuiceAmount:        decimal.RequireFromString("15.00"),
		AvailableAt:        testNow.Add(24 * time.Hour),
		CreatedAt:          testNow.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Failed to create cash-out: %v", err)
	}

	if _, err := db.CancelCashOut(context.Background(), c.Id, "user-1", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("Failed to cancel cash-out: %v", err)
	}

	view, err := svc.GetCashOut(context.Background(), "user-1", c.Id)
	if err != nil {
		t.Fatalf("GetCashOut failed: %v", err)
	}
	if view.Status != models.DisplayCancelled {
		t.Errorf("Expected cancelled, got %s", view.Status)
	}
	if view.Amount.StringFixed(2) != "15.00" {
		t.Errorf("Expected amount 15.00, got %s", view.Amount.String())
	}
}

func TestHealthCheck(t *testing.T) {
	svc, _, cleanup := setupTestService(t)
	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	cleanup()
	if err := svc.HealthCheck(context.Background()); err == nil {
		t.Error("Expected HealthCheck to fail on a closed database")
	}
}
