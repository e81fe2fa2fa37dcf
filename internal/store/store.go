package store

import (
	"context"
	"errors"
	"time"

	"juice-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrDuplicateExternalRef   = errors.New("duplicate external reference")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyTerminal        = errors.New("row already in a terminal state")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrLeaseLost              = errors.New("claim lease no longer held")
	ErrRetryExhausted         = errors.New("execution retries exhausted")
	ErrExecutorUnavailable    = errors.New("chain executor unavailable")
	ErrBalanceMismatch        = errors.New("balance does not match ledger entries")
)

// MoveParams describes one balance mutation.
type MoveParams struct {
	UserId    string
	Amount    decimal.Decimal // always positive, 2dp
	Kind      models.EntryKind
	SourceRef string // unique per mutation
	Now       time.Time
}

// ClaimParams bounds one batch claim.
type ClaimParams struct {
	Now      time.Time
	Owner    string
	Limit    int
	LeaseTTL time.Duration
}

// LedgerStore owns the per-user balance and its history.
type LedgerStore interface {
	GetBalance(ctx context.Context, userId string) (*models.JuiceBalance, error)
	Credit(ctx context.Context, params MoveParams) (*models.LedgerEntry, error)
	Debit(ctx context.Context, params MoveParams) (*models.LedgerEntry, error)
	GetLedgerHistory(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, userId string) error
}

// PurchaseStore persists JuicePurchase transitions.
type PurchaseStore interface {
	InsertPurchase(ctx context.Context, p *models.JuicePurchase) (*models.JuicePurchase, error)
	GetPurchase(ctx context.Context, id string) (*models.JuicePurchase, error)
	GetPurchaseByExternalRef(ctx context.Context, externalRef string) (*models.JuicePurchase, error)
	CapturePurchase(ctx context.Context, id string, now time.Time) (*models.JuicePurchase, error)
	ClaimDuePurchases(ctx context.Context, params ClaimParams) ([]string, error)
	CreditPurchase(ctx context.Context, id, owner string, now time.Time) (*models.JuicePurchase, error)
	DisputePurchase(ctx context.Context, id string, notice models.DisputeNotice, now time.Time) (*models.FiatPaymentDispute, error)
	RefundPurchase(ctx context.Context, id string, now time.Time) (*models.JuicePurchase, error)
}

// PayoutStore drives the chain-execution lifecycle shared by spends,
// cash-outs and direct settlements.
type PayoutStore interface {
	ClaimInFlight(ctx context.Context, kind models.PayoutKind, params ClaimParams, resubmitBefore time.Time) ([]string, error)
	ClaimRetryable(ctx context.Context, kind models.PayoutKind, params ClaimParams, maxRetries int) ([]string, error)
	GetPayout(ctx context.Context, kind models.PayoutKind, id string) (*models.Payout, error)
	FindPayout(ctx context.Context, id string) (*models.Payout, error)
	BeginRetry(ctx context.Context, kind models.PayoutKind, id, owner string, now time.Time) (*models.Payout, error)
	MarkSubmitted(ctx context.Context, kind models.PayoutKind, id, owner, executionRef string, now time.Time) error
	CompletePayout(ctx context.Context, kind models.PayoutKind, id, owner string, result models.ExecutionResult, now time.Time) error
	FailPayout(ctx context.Context, kind models.PayoutKind, id, owner, reason string, nextRetryAt *time.Time, now time.Time) error
	RecordTimeout(ctx context.Context, kind models.PayoutKind, id, owner, reason string, maxRetries int, now time.Time) (int, error)
	ReleasePayout(ctx context.Context, kind models.PayoutKind, id, owner string, now time.Time) error
	RefundPayout(ctx context.Context, kind models.PayoutKind, id string, now time.Time) (*models.Payout, error)
	ListPayouts(ctx context.Context, kind models.PayoutKind, status string, limit int) ([]models.Payout, error)
}

// SpendStore persists JuiceSpend rows.
type SpendStore interface {
	PayoutStore
	CreateSpend(ctx context.Context, s *models.JuiceSpend) (*models.JuiceSpend, error)
	GetSpend(ctx context.Context, id string) (*models.JuiceSpend, error)
}

// CashOutStore persists JuiceCashOut rows.
type CashOutStore interface {
	PayoutStore
	CreateCashOut(ctx context.Context, c *models.JuiceCashOut) (*models.JuiceCashOut, error)
	GetCashOut(ctx context.Context, id string) (*models.JuiceCashOut, error)
	CancelCashOut(ctx context.Context, id, userId string, now time.Time) (*models.JuiceCashOut, error)
	ClaimDueCashOuts(ctx context.Context, params ClaimParams) ([]string, error)
	StartCashOut(ctx context.Context, id, owner string, rate decimal.Decimal, cryptoAmount string, now time.Time) (*models.Payout, error)
}

// FiatPaymentStore persists PendingFiatPayment rows.
type FiatPaymentStore interface {
	PayoutStore
	InsertFiatPayment(ctx context.Context, p *models.PendingFiatPayment) (*models.PendingFiatPayment, error)
	GetFiatPayment(ctx context.Context, id string) (*models.PendingFiatPayment, error)
	GetFiatPaymentByExternalRef(ctx context.Context, externalRef string) (*models.PendingFiatPayment, error)
	ClaimDueFiatPayments(ctx context.Context, params ClaimParams) ([]string, error)
	StartSettlement(ctx context.Context, id, owner string, now time.Time) (*models.Payout, error)
	DisputeFiatPayment(ctx context.Context, id string, notice models.DisputeNotice, now time.Time) (*models.FiatPaymentDispute, error)
	RefundFiatPayment(ctx context.Context, id string, now time.Time) (*models.PendingFiatPayment, error)
}

// DisputeStore reads and resolves dispute audit records.
type DisputeStore interface {
	GetDispute(ctx context.Context, id string) (*models.FiatPaymentDispute, error)
	FindDisputeByProviderId(ctx context.Context, providerDisputeId string) (*models.FiatPaymentDispute, error)
	ListDisputes(ctx context.Context, targetId string) ([]models.FiatPaymentDispute, error)
	ResolveDispute(ctx context.Context, id string, resolution models.DisputeResolution, now time.Time) (*models.FiatPaymentDispute, error)
}

// JournalStore hands ledger entries to an external journal exactly once per lease.
type JournalStore interface {
	ClaimUnexportedEntries(ctx context.Context, params ClaimParams) ([]models.LedgerEntry, error)
	MarkEntryExported(ctx context.Context, id, owner string, now time.Time) error
}

// Store is everything a backend must provide.
type Store interface {
	LedgerStore
	PurchaseStore
	SpendStore
	CashOutStore
	FiatPaymentStore
	DisputeStore
	JournalStore
	Ping(ctx context.Context) error
	Close()
}
