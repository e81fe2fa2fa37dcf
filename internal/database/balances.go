package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type scanner interface {
	Scan(dest ...any) error
}

// toCents converts a positive 2dp amount to integer cents.
func toCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive, got %s", store.ErrValidation, amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return 0, fmt.Errorf("%w: amount %s has more than 2 decimal places", store.ErrValidation, amount.String())
	}
	return amount.Shift(2).IntPart(), nil
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// lifetimeDeltas returns the purchased, spent and cashed-out counter changes for a move.
func lifetimeDeltas(kind models.EntryKind, cents int64) (int64, int64, int64) {
	switch kind {
	case models.EntryKindPurchaseCredit:
		return cents, 0, 0
	case models.EntryKindSpendDebit:
		return 0, cents, 0
	case models.EntryKindSpendRefund:
		return 0, -cents, 0
	case models.EntryKindCashOutDebit:
		return 0, 0, cents
	case models.EntryKindCashOutRefund:
		return 0, 0, -cents
	}
	return 0, 0, 0
}

func (s *Service) GetBalance(ctx context.Context, userId string) (*models.JuiceBalance, error) {
	zap.L().Debug("Getting juice balance", zap.String("user_id", userId))

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetBalance), userId)
	var bal models.JuiceBalance
	var balance, purchased, spent, cashedOut int64
	err := row.Scan(&bal.UserId, &balance, &purchased, &spent, &cashedOut,
		&bal.Version, &bal.LastActivityAt, &bal.CreatedAt, &bal.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.JuiceBalance{UserId: userId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	bal.Balance = fromCents(balance)
	bal.LifetimePurchased = fromCents(purchased)
	bal.LifetimeSpent = fromCents(spent)
	bal.LifetimeCashedOut = fromCents(cashedOut)
	return &bal, nil
}

// Credit adds to a balance in its own transaction.
func (s *Service) Credit(ctx context.Context, params store.MoveParams) (*models.LedgerEntry, error) {
	if !params.Kind.IsCredit() {
		return nil, fmt.Errorf("%w: %s is not a credit", store.ErrValidation, params.Kind)
	}
	return s.move(ctx, params)
}

// Debit subtracts from a balance in its own transaction.
func (s *Service) Debit(ctx context.Context, params store.MoveParams) (*models.LedgerEntry, error) {
	if params.Kind.IsCredit() {
		return nil, fmt.Errorf("%w: %s is not a debit", store.ErrValidation, params.Kind)
	}
	return s.move(ctx, params)
}

func (s *Service) move(ctx context.Context, params store.MoveParams) (*models.LedgerEntry, error) {
	if err := s.checkDuplicateEntry(ctx, s.db, params.SourceRef); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.applyMove(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) checkDuplicateEntry(ctx context.Context, q queryer, sourceRef string) error {
	var existingId string
	err := q.QueryRowContext(ctx, s.dialect.rebind(queryCheckDuplicateEntry), sourceRef).Scan(&existingId)
	if err == nil {
		zap.L().Warn("Duplicate source reference detected, skipping",
			zap.String("source_ref", sourceRef),
			zap.String("existing_entry_id", existingId))
		return fmt.Errorf("%w: source_ref %s already exists", store.ErrDuplicateTransaction, sourceRef)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check for duplicate entry: %w", err)
	}
	return nil
}

// applyMove changes a balance and appends its ledger entry on tx. Callers
// pair it with a status CAS on the same tx.
func (s *Service) applyMove(ctx context.Context, tx queryer, params store.MoveParams) (*models.LedgerEntry, error) {
	if params.UserId == "" {
		return nil, fmt.Errorf("%w: user id is required", store.ErrValidation)
	}
	if params.SourceRef == "" {
		return nil, fmt.Errorf("%w: source reference is required", store.ErrValidation)
	}
	cents, err := toCents(params.Amount)
	if err != nil {
		return nil, err
	}
	now := utc(params.Now)
	purchased, spent, cashedOut := lifetimeDeltas(params.Kind, cents)

	var before, after, signed int64
	if params.Kind.IsCredit() {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(queryCreditBalance),
			params.UserId, cents, purchased, spent, cashedOut, now, now, now).Scan(&after)
		if err != nil {
			return nil, fmt.Errorf("failed to credit balance: %w", err)
		}
		before, signed = after-cents, cents
	} else {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(queryDebitBalance),
			cents, purchased, spent, cashedOut, now, now, params.UserId, cents).Scan(&after)
		if errors.Is(err, sql.ErrNoRows) || isCheckViolation(err) {
			return nil, fmt.Errorf("%w: user %s cannot cover %s", store.ErrInsufficientBalance, params.UserId, params.Amount.String())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to debit balance: %w", err)
		}
		before, signed = after+cents, -cents
	}

	entry := &models.LedgerEntry{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		Kind:          params.Kind,
		Amount:        fromCents(signed),
		BalanceBefore: fromCents(before),
		BalanceAfter:  fromCents(after),
		SourceRef:     params.SourceRef,
		CreatedAt:     now,
	}
	_, err = tx.ExecContext(ctx, s.dialect.rebind(queryInsertEntry),
		entry.Id, entry.UserId, string(entry.Kind), signed, before, after, entry.SourceRef, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: source_ref %s already exists", store.ErrDuplicateTransaction, params.SourceRef)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	zap.L().Info("Balance updated",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", params.UserId),
		zap.String("kind", string(params.Kind)),
		zap.String("amount", entry.Amount.String()),
		zap.String("old_balance", entry.BalanceBefore.String()),
		zap.String("new_balance", entry.BalanceAfter.String()),
		zap.String("source_ref", params.SourceRef))

	return entry, nil
}

func (s *Service) GetLedgerHistory(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryGetLedgerHistory), userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}

func scanEntry(row scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var kind string
	var amount, before, after int64
	var exportedAt sql.NullTime
	err := row.Scan(&e.Id, &e.UserId, &kind, &amount, &before, &after, &e.SourceRef, &e.CreatedAt, &exportedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	e.Kind = models.EntryKind(kind)
	e.Amount = fromCents(amount)
	e.BalanceBefore = fromCents(before)
	e.BalanceAfter = fromCents(after)
	if exportedAt.Valid {
		t := exportedAt.Time
		e.ExportedAt = &t
	}
	return &e, nil
}

// ReconcileBalance checks the stored balance against the sum of its entries.
func (s *Service) ReconcileBalance(ctx context.Context, userId string) error {
	var calculated int64
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryReconcileBalance), userId).Scan(&calculated); err != nil {
		return fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	bal, err := s.GetBalance(ctx, userId)
	if err != nil {
		return err
	}

	stored := bal.Balance
	expected := fromCents(calculated)
	if !stored.Equal(expected) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("stored_balance", stored.String()),
			zap.String("calculated_balance", expected.String()))
		return fmt.Errorf("%w: user %s stored %s, entries sum to %s", store.ErrBalanceMismatch, userId, stored.String(), expected.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance", stored.String()))
	return nil
}

// timePtr copies a nullable timestamp.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
