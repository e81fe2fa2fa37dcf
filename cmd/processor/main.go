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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/formance"
	"juice-ledger-go/internal/listener"
	"juice-ledger-go/internal/prime"
	"juice-ledger-go/internal/processor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// runOnce is the entry point for an external scheduler.
func runOnce(ctx context.Context, trigger processor.Trigger) error {
	return trigger.RunOnce(ctx).Err()
}

func main() {
	once := flag.Bool("once", false, "Run every batch job once and exit (for an external scheduler)")
	noListener := flag.Bool("no-listener", false, "Do not poll Prime for withdrawal results")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Juice processor", zap.Bool("once", *once))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	executor := prime.NewExecutor(services.Prime, services.Chains, prime.ExecutorConfig{
		PortfolioId:      services.PortfolioId,
		FailureThreshold: cfg.Prime.BreakerFailures,
		OpenDelay:        cfg.Prime.BreakerOpenDelay,
	})
	pipelines := common.NewPipelines(services.Store, services.Chains, executor, cfg)
	jobs := pipelines.Jobs()

	journal, err := common.InitializeFormance(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize Formance journal", zap.Error(err))
	}
	if journal != nil {
		exporter := formance.NewExporter(services.Store, journal, cfg.Processor)
		jobs = append(jobs, processor.NewJob(formance.JobExportJournal, exporter.Export))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := processor.NewMetrics(registry)
	if err != nil {
		zap.L().Fatal("Failed to register metrics", zap.Error(err))
	}

	withdrawals := listener.NewWithdrawalListener(listener.WithdrawalListenerConfig{
		Source:          services.Prime,
		Handler:         pipelines.Results,
		Chains:          services.Chains.Chains(),
		PortfolioId:     services.PortfolioId,
		LookbackWindow:  cfg.Prime.LookbackWindow,
		PollingInterval: cfg.Prime.PollingInterval,
		CleanupInterval: cfg.Prime.CleanupInterval,
	})

	if *once && !*noListener {
		jobs = append(jobs, processor.NewJob(listener.JobPollWithdrawals, withdrawals.Poll))
	}

	runner := processor.NewRunner(processor.RunnerConfig{
		Jobs:            jobs,
		PollingInterval: cfg.Processor.PollingInterval,
		Metrics:         metrics,
	})

	if *once {
		if err := runOnce(ctx, runner); err != nil {
			zap.L().Error("Batch run finished with job errors", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zap.L().Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Metrics server stopped", zap.Error(err))
		}
	}()

	if !*noListener {
		if err := withdrawals.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start withdrawal listener", zap.Error(err))
		}
	}

	runner.Start(ctx)
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping processor...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		runner.Stop()
		if !*noListener {
			withdrawals.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Processor stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Failed to stop metrics server", zap.Error(err))
	}
}
