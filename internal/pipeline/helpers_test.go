package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/database"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/riskdelay"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	testBeneficiary = "0x52908400098527886e0f7030069857d2e4169ee7"
	checksummed     = "0x52908400098527886E0F7030069857D2E4169EE7"
)

var testProject = models.Project{
	Id:          "project-1",
	ChainId:     "base",
	Beneficiary: testBeneficiary,
	Token:       "USDC",
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []models.PaymentRequest
	respond  func(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	respond := e.respond
	e.mu.Unlock()
	if respond == nil {
		return succeed(ctx, req)
	}
	return respond(ctx, req)
}

func (e *fakeExecutor) setRespond(fn func(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.respond = fn
}

func (e *fakeExecutor) calls() []models.PaymentRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.PaymentRequest(nil), e.requests...)
}

func succeed(_ context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
	return models.ExecutionResult{
		RowId:          req.IdempotencyKey,
		Status:         models.ExecutionSucceeded,
		TxHash:         "0xhash-" + req.IdempotencyKey,
		TokensReceived: req.AmountBaseUnits,
	}, nil
}

func fail(_ context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
	return models.ExecutionResult{
		RowId:  req.IdempotencyKey,
		Status: models.ExecutionFailed,
		Error:  "insufficient gas",
	}, nil
}

func hang(ctx context.Context, _ models.PaymentRequest) (models.ExecutionResult, error) {
	<-ctx.Done()
	return models.ExecutionResult{}, ctx.Err()
}

type fakeQuoter struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (q *fakeQuoter) Quote(_ context.Context, _, token string) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return q.rates[token], nil
}

func (q *fakeQuoter) set(token, rate string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rate != "" {
		q.rates[token] = decimal.RequireFromString(rate)
	}
	q.err = err
}

type testEnv struct {
	db          *database.Service
	clock       *testClock
	executor    *fakeExecutor
	quoter      *fakeQuoter
	purchases   *Purchases
	spends      *Spends
	cashOuts    *CashOuts
	settlements *Settlements
	disputes    *Disputes
	results     *Results
}

func setupTestEnv(t *testing.T, cfg models.ProcessorConfig) (*testEnv, func()) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "juice.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	registry, err := chains.NewRegistry([]models.Chain{{
		Id:   "base",
		Name: "Base",
		Tokens: []models.Token{
			{Symbol: "USDC", Decimals: 6, RawUsdRate: "1"},
			{Symbol: "ETH", Decimals: 18, RawUsdRate: "2500"},
		},
	}})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	executor := &fakeExecutor{}
	quoter := &fakeQuoter{rates: map[string]decimal.Decimal{
		"USDC": decimal.RequireFromString("1"),
		"ETH":  decimal.RequireFromString("2500"),
	}}

	env := &testEnv{
		db:          db,
		clock:       clock,
		executor:    executor,
		quoter:      quoter,
		purchases:   NewPurchases(db, cfg, riskdelay.DefaultUnscoredDays),
		spends:      NewSpends(db, registry, quoter, executor, cfg),
		cashOuts:    NewCashOuts(db, registry, quoter, executor, cfg, 0),
		settlements: NewSettlements(db, registry, quoter, executor, cfg, riskdelay.DefaultUnscoredDays),
		results:     NewResults(db, cfg),
	}
	env.disputes = NewDisputes(db, env.purchases, env.settlements)

	env.purchases.SetClock(clock.Now)
	env.spends.SetClock(clock.Now)
	env.cashOuts.SetClock(clock.Now)
	env.settlements.SetClock(clock.Now)
	env.disputes.SetClock(clock.Now)
	env.results.SetClock(clock.Now)

	return env, db.Close
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int {
	return &v
}

func (e *testEnv) seedBalance(t *testing.T, userId, amount string) {
	t.Helper()
	_, err := e.db.Credit(context.Background(), store.MoveParams{
		UserId:    userId,
		Amount:    dec(amount),
		Kind:      models.EntryKindAdjustmentCredit,
		SourceRef: "seed:" + userId,
		Now:       e.clock.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}
}

func (e *testEnv) assertBalance(t *testing.T, userId, want string) {
	t.Helper()
	bal, err := e.db.GetBalance(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.Balance.Equal(dec(want)) {
		t.Errorf("Expected balance %s for %s, got %s", want, userId, bal.Balance)
	}
}

func assertBatch(t *testing.T, got models.BatchResult, claimed, advanced, skipped, failed int) {
	t.Helper()
	if got.Claimed != claimed || got.Advanced != advanced || got.Skipped != skipped || got.Failed != failed {
		t.Errorf("Expected %s claimed=%d advanced=%d skipped=%d failed=%d, got %+v",
			got.Job, claimed, advanced, skipped, failed, got)
	}
}
