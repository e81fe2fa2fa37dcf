package formance

import (
	"math/big"
	"testing"
	"time"

	"juice-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func entry(kind models.EntryKind, amount string) models.LedgerEntry {
	return models.LedgerEntry{
		Id:           "entry-1",
		UserId:       "user-1",
		Kind:         kind,
		Amount:       decimal.RequireFromString(amount),
		BalanceAfter: decimal.RequireFromString("12.5"),
		SourceRef:    "purchase:ch_1",
		CreatedAt:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestEntryScriptCredit(t *testing.T) {
	script, err := entryScript(entry(models.EntryKindPurchaseCredit, "25.00"))
	if err != nil {
		t.Fatalf("entryScript failed: %v", err)
	}
	if script.Plain != numscriptCredit {
		t.Error("expected the credit template")
	}

	want := map[string]string{
		"asset":         "USD/2",
		"amount":        "2500",
		"source":        "juice:purchases",
		"user":          "users:user-1",
		"entry_kind":    "purchase_credit",
		"source_ref":    "purchase:ch_1",
		"balance_after": "12.50",
	}
	for k, v := range want {
		if script.Vars[k] != v {
			t.Errorf("var %s = %q, want %q", k, script.Vars[k], v)
		}
	}
}

func TestEntryScriptDebit(t *testing.T) {
	script, err := entryScript(entry(models.EntryKindCashOutDebit, "-7.25"))
	if err != nil {
		t.Fatalf("entryScript failed: %v", err)
	}
	if script.Plain != numscriptDebit {
		t.Error("expected the debit template")
	}
	if script.Vars["amount"] != "725" {
		t.Errorf("expected amount 725, got %s", script.Vars["amount"])
	}
	if script.Vars["destination"] != "juice:cash_outs" {
		t.Errorf("expected destination juice:cash_outs, got %s", script.Vars["destination"])
	}
	if _, ok := script.Vars["source"]; ok {
		t.Error("debit should not set a source account")
	}
}

func TestEntryScriptEveryKindHasAccount(t *testing.T) {
	kinds := []models.EntryKind{
		models.EntryKindPurchaseCredit,
		models.EntryKindSpendDebit,
		models.EntryKindSpendRefund,
		models.EntryKindCashOutDebit,
		models.EntryKindCashOutRefund,
		models.EntryKindAdjustmentCredit,
		models.EntryKindAdjustmentDebit,
	}
	for _, k := range kinds {
		if _, ok := counterparty[k]; !ok {
			t.Errorf("entry kind %s has no journal account", k)
		}
	}
}

func TestEntryScriptRejectsBadEntries(t *testing.T) {
	if _, err := entryScript(entry("bonus", "1.00")); err == nil {
		t.Error("expected an error for an unknown kind")
	}
	if _, err := entryScript(entry(models.EntryKindSpendDebit, "0")); err == nil {
		t.Error("expected an error for a zero amount")
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"USD/2": {Input: big.NewInt(5000), Output: big.NewInt(1250)},
	}
	if got := volumeBalance(vols, "USD/2"); got.Int64() != 3750 {
		t.Errorf("expected 3750, got %s", got.String())
	}
	if got := volumeBalance(vols, "EUR/2"); got != nil {
		t.Errorf("expected nil for a missing asset, got %s", got.String())
	}

	vols["USD/2"] = shared.V2Volume{Input: big.NewInt(1), Output: big.NewInt(1), Balance: big.NewInt(99)}
	if got := volumeBalance(vols, "USD/2"); got.Int64() != 99 {
		t.Errorf("expected the explicit balance 99, got %s", got.String())
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(3750))
	if !result.Equal(decimal.RequireFromString("37.50")) {
		t.Errorf("expected 37.50, got %s", result.String())
	}

	result = bigIntToDecimal(nil)
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}
