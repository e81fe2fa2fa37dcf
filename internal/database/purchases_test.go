package database

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

func insertTestPurchase(t *testing.T, s *Service, ref, userId, amount string, delayDays int, status models.PurchaseStatus) *models.JuicePurchase {
	t.Helper()
	p, err := s.InsertPurchase(context.Background(), &models.JuicePurchase{
		ExternalRef:         ref,
		UserId:              userId,
		FiatAmount:          dec(amount),
		JuiceAmount:         dec(amount),
		SettlementDelayDays: delayDays,
		ClearsAt:            testNow.Add(time.Duration(delayDays) * 24 * time.Hour),
		Status:              status,
		CreatedAt:           testNow,
		UpdatedAt:           testNow,
	})
	if err != nil {
		t.Fatalf("InsertPurchase failed: %v", err)
	}
	return p
}

func TestInsertPurchase_DuplicateExternalRef(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := insertTestPurchase(t, service, "ch_1", "user1", "20.00", 7, models.PurchaseStatusClearing)

	dup, err := service.InsertPurchase(ctx, &models.JuicePurchase{
		ExternalRef: "ch_1", UserId: "user1", FiatAmount: dec("99.00"), JuiceAmount: dec("99.00"),
		ClearsAt: testNow, Status: models.PurchaseStatusClearing, CreatedAt: testNow, UpdatedAt: testNow,
	})
	if !errors.Is(err, store.ErrDuplicateExternalRef) {
		t.Fatalf("Expected ErrDuplicateExternalRef, got %v", err)
	}
	if dup == nil || dup.Id != first.Id || !dup.FiatAmount.Equal(dec("20")) {
		t.Errorf("Expected the original purchase back, got %+v", dup)
	}
}

func TestInsertPurchase_Validation(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	badScore := 101

	tests := []struct {
		name string
		p    models.JuicePurchase
	}{
		{"missing ref", models.JuicePurchase{UserId: "u", FiatAmount: dec("1"), JuiceAmount: dec("1"), Status: models.PurchaseStatusPending}},
		{"missing user", models.JuicePurchase{ExternalRef: "r", FiatAmount: dec("1"), JuiceAmount: dec("1"), Status: models.PurchaseStatusPending}},
		{"zero amount", models.JuicePurchase{ExternalRef: "r", UserId: "u", FiatAmount: dec("0"), JuiceAmount: dec("0"), Status: models.PurchaseStatusPending}},
		{"score out of range", models.JuicePurchase{ExternalRef: "r", UserId: "u", RiskScore: &badScore, FiatAmount: dec("1"), JuiceAmount: dec("1"), Status: models.PurchaseStatusPending}},
		{"credited on intake", models.JuicePurchase{ExternalRef: "r", UserId: "u", FiatAmount: dec("1"), JuiceAmount: dec("1"), Status: models.PurchaseStatusCredited}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			if _, err := service.InsertPurchase(ctx, &p); !errors.Is(err, store.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreditDuePurchases(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	due := insertTestPurchase(t, service, "ch_due", "user1", "20.00", 0, models.PurchaseStatusClearing)
	insertTestPurchase(t, service, "ch_later", "user1", "30.00", 30, models.PurchaseStatusClearing)
	insertTestPurchase(t, service, "ch_pending", "user1", "40.00", 0, models.PurchaseStatusPending)

	ids, err := service.ClaimDuePurchases(ctx, claimParams("runner-1", testNow))
	if err != nil {
		t.Fatalf("ClaimDuePurchases failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != due.Id {
		t.Fatalf("Expected only the matured purchase, got %v", ids)
	}

	if _, err := service.CreditPurchase(ctx, due.Id, "someone-else", testNow); !errors.Is(err, store.ErrLeaseLost) {
		t.Fatalf("Expected ErrLeaseLost, got %v", err)
	}

	credited, err := service.CreditPurchase(ctx, due.Id, "runner-1", testNow)
	if err != nil {
		t.Fatalf("CreditPurchase failed: %v", err)
	}
	if credited.Status != models.PurchaseStatusCredited || credited.CreditedAt == nil {
		t.Errorf("Expected credited purchase, got %+v", credited)
	}
	assertBalance(t, service, "user1", "20.00")

	if _, err := service.CreditPurchase(ctx, due.Id, "runner-1", testNow); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on second credit, got %v", err)
	}
	assertBalance(t, service, "user1", "20.00")
}

func TestClaimDuePurchases_ConcurrentClaimsAreDisjoint(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		insertTestPurchase(t, service, fmt.Sprintf("ch_%d", i), "user1", "1.00", 0, models.PurchaseStatusClearing)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]string)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			params := claimParams(owner, testNow)
			params.Limit = 5
			ids, err := service.ClaimDuePurchases(ctx, params)
			if err != nil {
				t.Errorf("ClaimDuePurchases failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if prev, ok := seen[id]; ok {
					t.Errorf("Purchase %s claimed by both %s and %s", id, prev, owner)
				}
				seen[id] = owner
			}
		}(fmt.Sprintf("runner-%d", w))
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Errorf("Expected all 20 purchases claimed exactly once, got %d", len(seen))
	}
}

func TestDisputePurchase_RacesCredit(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := insertTestPurchase(t, service, "ch_race", "user1", "20.00", 0, models.PurchaseStatusClearing)
	if _, err := service.ClaimDuePurchases(ctx, claimParams("runner-1", testNow)); err != nil {
		t.Fatalf("ClaimDuePurchases failed: %v", err)
	}

	var wg sync.WaitGroup
	var creditErr, disputeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, creditErr = service.CreditPurchase(ctx, p.Id, "runner-1", testNow)
	}()
	go func() {
		defer wg.Done()
		_, disputeErr = service.DisputePurchase(ctx, p.Id, models.DisputeNotice{ReasonCode: "fraudulent"}, testNow)
	}()
	wg.Wait()

	if (creditErr == nil) == (disputeErr == nil) {
		t.Fatalf("Expected exactly one winner, credit=%v dispute=%v", creditErr, disputeErr)
	}

	got, err := service.GetPurchase(ctx, p.Id)
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	disputes, err := service.ListDisputes(ctx, p.Id)
	if err != nil {
		t.Fatalf("ListDisputes failed: %v", err)
	}
	if creditErr == nil {
		if got.Status != models.PurchaseStatusCredited || len(disputes) != 0 {
			t.Errorf("Credit won but status=%s disputes=%d", got.Status, len(disputes))
		}
		assertBalance(t, service, "user1", "20.00")
	} else {
		if got.Status != models.PurchaseStatusDisputed || len(disputes) != 1 {
			t.Errorf("Dispute won but status=%s disputes=%d", got.Status, len(disputes))
		}
		assertBalance(t, service, "user1", "0")
	}
}

func TestDisputePurchase_Transitions(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	clearing := insertTestPurchase(t, service, "ch_1", "user1", "20.00", 30, models.PurchaseStatusClearing)
	dispute, err := service.DisputePurchase(ctx, clearing.Id, models.DisputeNotice{ReasonCode: "fraudulent", ProviderDisputeId: "dp_1"}, testNow)
	if err != nil {
		t.Fatalf("DisputePurchase failed: %v", err)
	}
	if dispute.ExternalRef != "ch_1" || dispute.StatusAtDispute != "clearing" || dispute.TargetKind != models.DisputeTargetPurchase {
		t.Errorf("Unexpected dispute record %+v", dispute)
	}

	if _, err := service.DisputePurchase(ctx, clearing.Id, models.DisputeNotice{}, testNow); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}
	pending := insertTestPurchase(t, service, "ch_2", "user1", "20.00", 30, models.PurchaseStatusPending)
	if _, err := service.DisputePurchase(ctx, pending.Id, models.DisputeNotice{}, testNow); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pending purchase, got %v", err)
	}
	if _, err := service.DisputePurchase(ctx, "missing", models.DisputeNotice{}, testNow); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	found, err := service.FindDisputeByProviderId(ctx, "dp_1")
	if err != nil {
		t.Fatalf("FindDisputeByProviderId failed: %v", err)
	}
	resolved, err := service.ResolveDispute(ctx, found.Id, models.DisputeResolutionLost, testNow)
	if err != nil {
		t.Fatalf("ResolveDispute failed: %v", err)
	}
	if resolved.Resolution == nil || *resolved.Resolution != models.DisputeResolutionLost || resolved.ResolvedAt == nil {
		t.Errorf("Unexpected resolved dispute %+v", resolved)
	}
	if _, err := service.ResolveDispute(ctx, found.Id, models.DisputeResolutionWon, testNow); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on second resolution, got %v", err)
	}
}

func TestCaptureAndRefundPurchase(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := insertTestPurchase(t, service, "ch_1", "user1", "20.00", 0, models.PurchaseStatusPending)
	captured, err := service.CapturePurchase(ctx, p.Id, testNow)
	if err != nil {
		t.Fatalf("CapturePurchase failed: %v", err)
	}
	if captured.Status != models.PurchaseStatusClearing {
		t.Errorf("Expected clearing, got %s", captured.Status)
	}
	if _, err := service.CapturePurchase(ctx, p.Id, testNow); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on second capture, got %v", err)
	}

	refunded, err := service.RefundPurchase(ctx, p.Id, testNow)
	if err != nil {
		t.Fatalf("RefundPurchase failed: %v", err)
	}
	if refunded.Status != models.PurchaseStatusRefunded {
		t.Errorf("Expected refunded, got %s", refunded.Status)
	}

	ids, err := service.ClaimDuePurchases(ctx, claimParams("runner-1", testNow))
	if err != nil {
		t.Fatalf("ClaimDuePurchases failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Refunded purchase must not be claimed, got %v", ids)
	}
	assertBalance(t, service, "user1", "0")
}
