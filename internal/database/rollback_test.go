package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockDB(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	return newServiceWithDB(db, dialectSQLite), mock, func() { db.Close() }
}

func TestCredit_RollsBackWhenEntryInsertFails(t *testing.T) {
	service, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id FROM juice_ledger_entries WHERE source_ref`).
		WithArgs("purchase:p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO juice_balances`).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(2000))
	mock.ExpectExec(`INSERT INTO juice_ledger_entries`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := service.Credit(context.Background(), store.MoveParams{
		UserId: "user1", Amount: dec("20.00"), Kind: models.EntryKindPurchaseCredit,
		SourceRef: "purchase:p1", Now: testNow,
	})
	if err == nil {
		t.Fatal("Expected error from failed entry insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestCreateSpend_RollsBackDebitWhenInsertFails(t *testing.T) {
	service, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE juice_balances`).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(3000))
	mock.ExpectExec(`INSERT INTO juice_ledger_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO juice_spends`).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := service.CreateSpend(context.Background(), &models.JuiceSpend{
		UserId: "user1", ProjectId: "p", ChainId: "base", Beneficiary: "0xabc", Token: "USDC",
		JuiceAmount: dec("20.00"), CryptoAmount: "20000000", ExchangeRate: dec("1"), CreatedAt: testNow,
	})
	if err == nil {
		t.Fatal("Expected error from failed spend insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestDebit_NoRowsIsInsufficientBalance(t *testing.T) {
	service, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id FROM juice_ledger_entries WHERE source_ref`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE juice_balances`).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
	mock.ExpectRollback()

	_, err := service.Debit(context.Background(), store.MoveParams{
		UserId: "user1", Amount: dec("1.00"), Kind: models.EntryKindAdjustmentDebit,
		SourceRef: "adj:1", Now: testNow,
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRebindForPostgres(t *testing.T) {
	got := dialectPostgres.rebind("UPDATE t SET a = ? WHERE id = ? AND b = ?")
	want := "UPDATE t SET a = $1 WHERE id = $2 AND b = $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	if dialectSQLite.rebind("a = ?") != "a = ?" {
		t.Error("sqlite queries must be left untouched")
	}
	if dialectPostgres.lockClause() == "" || dialectSQLite.lockClause() != "" {
		t.Error("unexpected lock clauses")
	}
}

func TestResolveDriver(t *testing.T) {
	if _, _, err := resolveDriver(models.DatabaseConfig{Driver: "postgres"}); err == nil {
		t.Error("Expected error for postgres without url")
	}
	if _, _, err := resolveDriver(models.DatabaseConfig{Driver: "mysql", Path: "x"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
	d, dsn, err := resolveDriver(models.DatabaseConfig{Path: "juice.db"})
	if err != nil || d != dialectSQLite || dsn == "" {
		t.Errorf("Unexpected sqlite resolution: %v %q %v", d, dsn, err)
	}
}

func TestNewServiceRequiresPoolSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.db")
	if _, err := NewService(context.Background(), models.DatabaseConfig{Driver: "sqlite3", Path: path}); err == nil {
		t.Fatal("Expected error for a config without pool limits")
	}

	s, err := NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         path,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	s.Close()
}

func payoutRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "status", "chain_id", "destination", "token", "juice_amount_cents", "crypto_amount",
		"retry_count", "last_retry_at", "next_retry_at", "submitted_at", "execution_ref",
		"tx_hash", "tokens_received", "last_error", "completed_at",
	}).AddRow("row-1", "user-1", status, "base", "0xabc", "USDC", int64(2000), "20000000",
		0, nil, nil, nil, "", "", "", "", nil)
}

func TestGetPayoutRejectsStatusOutsideKind(t *testing.T) {
	service, mock, cleanup := setupMockDB(t)
	defer cleanup()
	ctx := context.Background()

	mock.ExpectQuery(`FROM juice_spends WHERE id`).WithArgs("row-1").WillReturnRows(payoutRow("paused"))
	if _, err := service.GetPayout(ctx, models.PayoutKindSpend, "row-1"); err == nil {
		t.Error("Expected an unknown spend status to fail")
	}

	mock.ExpectQuery(`FROM juice_cash_outs WHERE id`).WithArgs("row-1").WillReturnRows(payoutRow("executing"))
	if _, err := service.GetPayout(ctx, models.PayoutKindCashOut, "row-1"); err == nil {
		t.Error("Expected a spend status on a cash-out to fail")
	}

	mock.ExpectQuery(`FROM juice_cash_outs WHERE id`).WithArgs("row-1").WillReturnRows(payoutRow("processing"))
	p, err := service.GetPayout(ctx, models.PayoutKindCashOut, "row-1")
	if err != nil {
		t.Fatalf("GetPayout failed: %v", err)
	}
	if p.Status != "processing" || p.Amount.String() != "20" {
		t.Errorf("Unexpected payout: status %s amount %s", p.Status, p.Amount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
