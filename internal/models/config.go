package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Processor ProcessorConfig
	Pipelines PipelineConfig
	Prime     PrimeConfig
	Formance  FormanceConfig
	Metrics   MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3 or postgres
	Path            string
	Url             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ProcessorConfig holds batch runner and chain execution settings
type ProcessorConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	LeaseTTL         time.Duration
	ExecutionTimeout time.Duration
	ResubmitAfter    time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	ChainsFile       string
}

// PipelineConfig holds the per-pipeline delay settings
type PipelineConfig struct {
	CashOutDelay           time.Duration
	PurchaseUnscoredDays   int
	SettlementUnscoredDays int
}

// PrimeConfig holds Prime portfolio and result listener settings
type PrimeConfig struct {
	PortfolioId      string
	LookbackWindow   time.Duration
	PollingInterval  time.Duration
	CleanupInterval  time.Duration
	BreakerFailures  uint
	BreakerOpenDelay time.Duration
}

// FormanceConfig holds the journal export target
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string
}
