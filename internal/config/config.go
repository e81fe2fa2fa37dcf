/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/riskdelay"
)

func Load() (*models.Config, error) {
	d := durations{}

	connMaxLifetime := d.get("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	connMaxIdleTime := d.get("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	pingTimeout := d.get("DB_PING_TIMEOUT", 5*time.Second)

	pollingInterval := d.get("PROCESSOR_POLLING_INTERVAL", 30*time.Second)
	leaseTTL := d.get("PROCESSOR_LEASE_TTL", 5*time.Minute)
	executionTimeout := d.get("EXECUTION_TIMEOUT", 30*time.Second)
	resubmitAfter := d.get("EXECUTION_RESUBMIT_AFTER", 30*time.Minute)
	retryBackoff := d.get("RETRY_BACKOFF", time.Minute)
	cashOutDelay := d.get("CASH_OUT_DELAY", 24*time.Hour)

	lookbackWindow := d.get("LISTENER_LOOKBACK_WINDOW", 6*time.Hour)
	listenerPolling := d.get("LISTENER_POLLING_INTERVAL", 30*time.Second)
	cleanupInterval := d.get("LISTENER_CLEANUP_INTERVAL", 15*time.Minute)
	breakerOpenDelay := d.get("PRIME_BREAKER_OPEN_DELAY", time.Minute)

	if d.err != nil {
		return nil, d.err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:          getEnvString("DATABASE_DRIVER", "sqlite3"),
			Path:            getEnvString("DATABASE_PATH", "juice.db"),
			Url:             getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Processor: models.ProcessorConfig{
			PollingInterval:  pollingInterval,
			BatchSize:        getEnvInt("PROCESSOR_BATCH_SIZE", 100),
			LeaseTTL:         leaseTTL,
			ExecutionTimeout: executionTimeout,
			ResubmitAfter:    resubmitAfter,
			MaxRetries:       getEnvInt("MAX_EXECUTION_RETRIES", 3),
			RetryBackoff:     retryBackoff,
			ChainsFile:       getEnvString("CHAINS_FILE", "chains.yaml"),
		},
		Pipelines: models.PipelineConfig{
			CashOutDelay:           cashOutDelay,
			PurchaseUnscoredDays:   getEnvInt("PURCHASE_UNSCORED_DELAY_DAYS", 7),
			SettlementUnscoredDays: getEnvInt("SETTLEMENT_UNSCORED_DELAY_DAYS", 7),
		},
		Prime: models.PrimeConfig{
			PortfolioId:      getEnvString("PRIME_PORTFOLIO_ID", ""),
			LookbackWindow:   lookbackWindow,
			PollingInterval:  listenerPolling,
			CleanupInterval:  cleanupInterval,
			BreakerFailures:  uint(getEnvInt("PRIME_BREAKER_FAILURES", 5)),
			BreakerOpenDelay: breakerOpenDelay,
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "juice-ledger"),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ":9090"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite3":
	case "postgres":
		if cfg.Database.Url == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("PROCESSOR_BATCH_SIZE must be positive, got %d", cfg.Processor.BatchSize)
	}
	if cfg.Processor.MaxRetries <= 0 {
		return fmt.Errorf("MAX_EXECUTION_RETRIES must be positive, got %d", cfg.Processor.MaxRetries)
	}
	if err := unscoredDays("PURCHASE_UNSCORED_DELAY_DAYS", cfg.Pipelines.PurchaseUnscoredDays); err != nil {
		return err
	}
	if err := unscoredDays("SETTLEMENT_UNSCORED_DELAY_DAYS", cfg.Pipelines.SettlementUnscoredDays); err != nil {
		return err
	}
	return nil
}

func unscoredDays(key string, days int) error {
	if days < 0 || days > riskdelay.MaxDays {
		return fmt.Errorf("%s must be between 0 and %d, got %d", key, riskdelay.MaxDays, days)
	}
	return nil
}

// durations keeps the first parse error so Load can read every key first.
type durations struct {
	err error
}

func (d *durations) get(key string, defaultValue time.Duration) time.Duration {
	v, err := getEnvDuration(key, defaultValue)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
