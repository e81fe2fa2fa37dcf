package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Driver != "sqlite3" || cfg.Database.Path != "juice.db" {
		t.Errorf("Unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Processor.BatchSize != 100 || cfg.Processor.MaxRetries != 3 {
		t.Errorf("Unexpected processor defaults: %+v", cfg.Processor)
	}
	if cfg.Processor.ExecutionTimeout != 30*time.Second {
		t.Errorf("Expected a 30s execution timeout, got %v", cfg.Processor.ExecutionTimeout)
	}
	if cfg.Pipelines.CashOutDelay != 24*time.Hour {
		t.Errorf("Expected a 24h cash-out delay, got %v", cfg.Pipelines.CashOutDelay)
	}
	if cfg.Pipelines.PurchaseUnscoredDays != 7 || cfg.Pipelines.SettlementUnscoredDays != 7 {
		t.Errorf("Expected both unscored delays to default to 7, got %d and %d",
			cfg.Pipelines.PurchaseUnscoredDays, cfg.Pipelines.SettlementUnscoredDays)
	}
	if cfg.Formance.Enabled {
		t.Error("Expected journal export to be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROCESSOR_BATCH_SIZE", "25")
	t.Setenv("RETRY_BACKOFF", "90s")
	t.Setenv("SETTLEMENT_UNSCORED_DELAY_DAYS", "14")
	t.Setenv("PRIME_BREAKER_FAILURES", "2")
	t.Setenv("FORMANCE_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Processor.BatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", cfg.Processor.BatchSize)
	}
	if cfg.Processor.RetryBackoff != 90*time.Second {
		t.Errorf("Expected 90s backoff, got %v", cfg.Processor.RetryBackoff)
	}
	if cfg.Pipelines.SettlementUnscoredDays != 14 || cfg.Pipelines.PurchaseUnscoredDays != 7 {
		t.Errorf("Expected only the settlement delay to change, got %+v", cfg.Pipelines)
	}
	if cfg.Prime.BreakerFailures != 2 {
		t.Errorf("Expected 2 breaker failures, got %d", cfg.Prime.BreakerFailures)
	}
	if !cfg.Formance.Enabled {
		t.Error("Expected journal export to be enabled")
	}
}

func TestLoadKeepsZeroUnscoredDays(t *testing.T) {
	t.Setenv("PURCHASE_UNSCORED_DELAY_DAYS", "0")
	t.Setenv("SETTLEMENT_UNSCORED_DELAY_DAYS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipelines.PurchaseUnscoredDays != 0 || cfg.Pipelines.SettlementUnscoredDays != 120 {
		t.Errorf("Expected unscored delays 0 and 120, got %+v", cfg.Pipelines)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "EXECUTION_TIMEOUT", "soon"},
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"postgres without url", "DATABASE_DRIVER", "postgres"},
		{"zero batch", "PROCESSOR_BATCH_SIZE", "0"},
		{"negative unscored days", "PURCHASE_UNSCORED_DELAY_DAYS", "-1"},
		{"unscored days past the longest band", "SETTLEMENT_UNSCORED_DELAY_DAYS", "121"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected Load to fail for %s=%s", tt.key, tt.value)
			}
		})
	}
}
