package listener

import (
	"context"
	"errors"
	"fmt"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var terminalFailures = map[string]bool{
	"TRANSACTION_CANCELLED": true,
	"TRANSACTION_REJECTED":  true,
	"TRANSACTION_FAILED":    true,
	"TRANSACTION_EXPIRED":   true,
}

// processWithdrawal reports a finished withdrawal. The idempotency key is
// the payout row id the executor submitted it under.
func (d *WithdrawalListener) processWithdrawal(ctx context.Context, tx models.PrimeTransaction, wallet payoutWallet) error {
	if tx.Type != "WITHDRAWAL" || tx.IdempotencyKey == "" {
		d.markTransactionProcessed(tx.Id)
		return nil
	}

	var res models.ExecutionResult
	switch {
	case tx.Status == "TRANSACTION_DONE":
		received, err := baseUnits(tx.Amount, wallet.Decimals)
		if err != nil {
			return err
		}
		res = models.ExecutionResult{
			RowId:          tx.IdempotencyKey,
			Status:         models.ExecutionSucceeded,
			ExecutionRef:   tx.Id,
			TokensReceived: received,
		}
		if len(tx.BlockchainIds) > 0 {
			res.TxHash = tx.BlockchainIds[0]
		}
	case terminalFailures[tx.Status]:
		zap.L().Warn("Withdrawal failed with terminal status",
			zap.String("transaction_id", tx.Id),
			zap.String("row_id", tx.IdempotencyKey),
			zap.String("status", tx.Status),
			zap.String("symbol", tx.Symbol),
			zap.String("amount", tx.Amount))
		res = models.ExecutionResult{
			RowId:        tx.IdempotencyKey,
			Status:       models.ExecutionFailed,
			ExecutionRef: tx.Id,
			Error:        "prime status " + tx.Status,
		}
	default:
		zap.L().Debug("Skipping non-completed withdrawal - waiting for completion",
			zap.String("transaction_id", tx.Id),
			zap.String("status", tx.Status),
			zap.Time("created_at", tx.CreatedAt))
		return nil
	}

	if err := d.handler.Handle(ctx, res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Debug("Withdrawal does not belong to a payout - skipping",
				zap.String("transaction_id", tx.Id),
				zap.String("idempotency_key", tx.IdempotencyKey))
			d.markTransactionProcessed(tx.Id)
			return nil
		}
		return fmt.Errorf("failed to record withdrawal result: %w", err)
	}

	d.markTransactionProcessed(tx.Id)

	zap.L().Info("Withdrawal result recorded",
		zap.String("transaction_id", tx.Id),
		zap.String("row_id", res.RowId),
		zap.String("status", string(res.Status)),
		zap.String("tx_hash", res.TxHash))
	return nil
}

// baseUnits converts a Prime amount in whole tokens to base units. Prime
// reports withdrawals as negative amounts.
func baseUnits(amount string, decimals int32) (string, error) {
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %w", err)
	}
	return v.Abs().Shift(decimals).Truncate(0).BigInt().String(), nil
}
