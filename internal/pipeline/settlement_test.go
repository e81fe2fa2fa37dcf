package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"
)

func ethProject() models.Project {
	p := testProject
	p.Id = "project-eth"
	p.Token = "ETH"
	return p
}

func TestSettlementLocksRateAtIntake(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()

	payment, dup, err := env.settlements.Intake(ctx, SettlementIntake{
		ExternalRef: "ch_direct",
		Project:     ethProject(),
		FiatAmount:  dec("10.00"),
		Currency:    "USD",
		RiskScore:   intPtr(15),
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	if dup {
		t.Error("First intake reported as duplicate")
	}
	if payment.CryptoAmount != "4000000000000000" || payment.Status != models.FiatPaymentStatusPendingSettlement {
		t.Errorf("Unexpected payment: %s %s", payment.CryptoAmount, payment.Status)
	}

	env.quoter.set("ETH", "5000", nil)
	result, err := env.settlements.SettleDue(ctx)
	if err != nil {
		t.Fatalf("SettleDue failed: %v", err)
	}
	assertBatch(t, result, 1, 1, 0, 0)

	calls := env.executor.calls()
	if len(calls) != 1 || calls[0].AmountBaseUnits != "4000000000000000" || calls[0].Kind != models.PayoutKindFiatPayment {
		t.Errorf("Expected locked amount to be executed, got %+v", calls)
	}
	got, _ := env.db.GetFiatPayment(ctx, payment.Id)
	if got.Status != models.FiatPaymentStatusSettled || got.SettlementTxHash() == "" {
		t.Errorf("Expected settled with tx hash, got %s/%q", got.Status, got.SettlementTxHash())
	}
}

func TestSettlementDuplicateIntakeIsNoop(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()

	in := SettlementIntake{ExternalRef: "ch_dup", Project: testProject, FiatAmount: dec("3.00")}
	first, _, err := env.settlements.Intake(ctx, in)
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	second, dup, err := env.settlements.Intake(ctx, in)
	if err != nil {
		t.Fatalf("Replayed intake failed: %v", err)
	}
	if !dup || second.Id != first.Id {
		t.Errorf("Expected duplicate of %s, got dup=%v id=%s", first.Id, dup, second.Id)
	}
	if first.SettlementDelayDays != 7 {
		t.Errorf("Expected unscored delay 7, got %d", first.SettlementDelayDays)
	}
}

func TestSettlementDisputeBlocksSettlement(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()

	payment, _, err := env.settlements.Intake(ctx, SettlementIntake{
		ExternalRef: "ch_disputed", Project: testProject, FiatAmount: dec("40.00"), RiskScore: intPtr(50),
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	dispute, err := env.disputes.HandleDispute(ctx, models.DisputeNotice{
		ExternalRef: "ch_disputed", ReasonCode: "fraudulent", ProviderDisputeId: "dp_1",
	})
	if err != nil {
		t.Fatalf("HandleDispute failed: %v", err)
	}
	if dispute.TargetKind != models.DisputeTargetFiatPayment || dispute.TargetId != payment.Id {
		t.Errorf("Dispute points at the wrong row: %+v", dispute)
	}
	if dispute.StatusAtDispute != string(models.FiatPaymentStatusPendingSettlement) {
		t.Errorf("Expected status at dispute pending_settlement, got %s", dispute.StatusAtDispute)
	}

	env.clock.Advance(31 * 24 * time.Hour)
	result, err := env.settlements.SettleDue(ctx)
	if err != nil {
		t.Fatalf("SettleDue failed: %v", err)
	}
	if result.Claimed != 0 || len(env.executor.calls()) != 0 {
		t.Errorf("Disputed payment was settled: %+v", result)
	}
}

func TestSettlementDisputeDuringExecutionWinsOnce(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()

	payment, _, err := env.settlements.Intake(ctx, SettlementIntake{
		ExternalRef: "ch_race", Project: testProject, FiatAmount: dec("5.00"), RiskScore: intPtr(0),
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	env.executor.setRespond(func(ctx context.Context, req models.PaymentRequest) (models.ExecutionResult, error) {
		if _, err := env.disputes.HandleDispute(ctx, models.DisputeNotice{ExternalRef: "ch_race", ReasonCode: "fraudulent"}); err != nil {
			t.Errorf("Dispute during execution failed: %v", err)
		}
		return succeed(ctx, req)
	})

	result, err := env.settlements.SettleDue(ctx)
	if err != nil {
		t.Fatalf("SettleDue failed: %v", err)
	}
	assertBatch(t, result, 1, 0, 1, 0)

	got, _ := env.db.GetFiatPayment(ctx, payment.Id)
	if got.Status != models.FiatPaymentStatusDisputed {
		t.Errorf("Expected disputed to win, got %s", got.Status)
	}
	disputes, err := env.db.ListDisputes(ctx, payment.Id)
	if err != nil {
		t.Fatalf("ListDisputes failed: %v", err)
	}
	if len(disputes) != 1 || disputes[0].StatusAtDispute != string(models.FiatPaymentStatusSettling) {
		t.Errorf("Expected one dispute taken while settling, got %+v", disputes)
	}
}

func TestSettlementRefunds(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()
	ctx := context.Background()

	if _, _, err := env.settlements.Intake(ctx, SettlementIntake{
		ExternalRef: "ch_provider_refund", Project: testProject, FiatAmount: dec("5.00"), RiskScore: intPtr(30),
	}); err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	target, err := env.disputes.HandleRefund(ctx, "ch_provider_refund")
	if err != nil {
		t.Fatalf("HandleRefund failed: %v", err)
	}
	if target != models.DisputeTargetFiatPayment {
		t.Errorf("Expected fiat payment target, got %s", target)
	}

	failed, _, err := env.settlements.Intake(ctx, SettlementIntake{
		ExternalRef: "ch_operator_refund", Project: testProject, FiatAmount: dec("5.00"), RiskScore: intPtr(0),
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	env.executor.setRespond(fail)
	if _, err := env.settlements.SettleDue(ctx); err != nil {
		t.Fatalf("SettleDue failed: %v", err)
	}
	refunded, err := env.settlements.Refund(ctx, failed.Id)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != string(models.FiatPaymentStatusRefunded) {
		t.Errorf("Expected refunded, got %s", refunded.Status)
	}
}

func TestSettlementIntakeValidation(t *testing.T) {
	env, cleanup := setupTestEnv(t, models.ProcessorConfig{})
	defer cleanup()

	badChain := testProject
	badChain.ChainId = "unknown"

	tests := []struct {
		name string
		in   SettlementIntake
	}{
		{"missing ref", SettlementIntake{Project: testProject, FiatAmount: dec("1.00")}},
		{"missing project", SettlementIntake{ExternalRef: "a", FiatAmount: dec("1.00")}},
		{"unknown chain", SettlementIntake{ExternalRef: "b", Project: badChain, FiatAmount: dec("1.00")}},
		{"currency", SettlementIntake{ExternalRef: "c", Project: testProject, FiatAmount: dec("1.00"), Currency: "GBP"}},
		{"score", SettlementIntake{ExternalRef: "d", Project: testProject, FiatAmount: dec("1.00"), RiskScore: intPtr(200)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.settlements.Intake(context.Background(), tt.in)
			if !errors.Is(err, store.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}
