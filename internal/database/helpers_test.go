package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*Service, func()) {
	t.Helper()
	cfg := models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "juice.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	}
	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return service, service.Close
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedBalance(t *testing.T, s *Service, userId, amount string) {
	t.Helper()
	_, err := s.Credit(context.Background(), store.MoveParams{
		UserId:    userId,
		Amount:    dec(amount),
		Kind:      models.EntryKindAdjustmentCredit,
		SourceRef: "seed:" + userId + ":" + amount,
		Now:       testNow,
	})
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}
}

func claimParams(owner string, now time.Time) store.ClaimParams {
	return store.ClaimParams{Now: now, Owner: owner, Limit: 50, LeaseTTL: 5 * time.Minute}
}

func assertBalance(t *testing.T, s *Service, userId, want string) {
	t.Helper()
	bal, err := s.GetBalance(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.Balance.Equal(dec(want)) {
		t.Errorf("Expected balance %s for %s, got %s", want, userId, bal.Balance)
	}
}
