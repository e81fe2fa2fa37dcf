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
	"flag"
	"fmt"

	"juice-ledger-go/internal/api"
	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/models"

	"go.uber.org/zap"
)

func formatEntryId(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

func printSnapshot(snapshot *models.BalanceSnapshot) {
	fmt.Printf("\n┌─ User: %s\n", snapshot.UserId)
	lastActivity := "never"
	if snapshot.LastActivityAt != nil {
		lastActivity = snapshot.LastActivityAt.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("│  Balance:            %12s USD\n", common.FormatUSD(snapshot.Balance))
	fmt.Printf("│  Lifetime purchased: %12s USD\n", common.FormatUSD(snapshot.LifetimePurchased))
	fmt.Printf("│  Lifetime spent:     %12s USD\n", common.FormatUSD(snapshot.LifetimeSpent))
	fmt.Printf("│  Lifetime cashed out:%12s USD\n", common.FormatUSD(snapshot.LifetimeCashedOut))
	fmt.Printf("│  Last activity:      %s\n", lastActivity)
	common.PrintBoxSeparator(78)
}

func printHistory(records []models.HistoryRecord) {
	if len(records) == 0 {
		fmt.Println("└  no ledger entries")
		return
	}
	for i, r := range records {
		fmt.Printf("%s %-11s %-18s %12s  → %12s  %s\n",
			common.BoxPrefix(i == len(records)-1),
			formatEntryId(r.Id),
			r.Kind,
			common.FormatSignedUSD(r.Amount),
			common.FormatUSD(r.BalanceAfter),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	limitFlag := flag.Int("limit", 20, "Number of history entries to show")
	offsetFlag := flag.Int("offset", 0, "History entries to skip")
	reconcileFlag := flag.Bool("reconcile", false, "Check the balance against the sum of its ledger entries")
	journalFlag := flag.Bool("journal", false, "Compare the balance with the Formance journal")
	flag.Parse()

	if *userFlag == "" {
		logger.Fatal("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only, so no Prime connection is needed.
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ledger := api.NewLedgerService(dbService, cfg.Processor.MaxRetries)

	snapshot, err := ledger.GetBalanceSnapshot(ctx, *userFlag)
	if err != nil {
		logger.Fatal("Failed to get balance", zap.String("user_id", *userFlag), zap.Error(err))
	}
	history, err := ledger.GetHistory(ctx, *userFlag, *limitFlag, *offsetFlag)
	if err != nil {
		logger.Fatal("Failed to get history", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintHeader("JUICE BALANCE REPORT", common.DefaultWidth)
	printSnapshot(snapshot)
	printHistory(history)

	var problems []string

	if *reconcileFlag {
		if err := dbService.ReconcileBalance(ctx, *userFlag); err != nil {
			problems = append(problems, err.Error())
			logger.Error("Balance does not match ledger", zap.String("user_id", *userFlag), zap.Error(err))
		} else {
			fmt.Println("\nBalance matches the sum of ledger entries")
		}
	}

	if *journalFlag {
		journal, err := common.InitializeFormance(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to connect to Formance", zap.Error(err))
		}
		if journal == nil {
			logger.Fatal("Journal comparison needs FORMANCE_ENABLED=true")
		}
		journaled, err := journal.GetUserBalance(ctx, *userFlag)
		if err != nil {
			logger.Fatal("Failed to read journal balance", zap.Error(err))
		}
		fmt.Printf("\nJournal balance: %s USD\n", common.FormatUSD(journaled))
		if !journaled.Equal(snapshot.Balance) {
			// Entries not exported yet show up here too.
			problems = append(problems, fmt.Sprintf("journal balance %s differs from ledger %s",
				common.FormatUSD(journaled), common.FormatUSD(snapshot.Balance)))
		}
	}

	summary := "SUMMARY: ok"
	if len(problems) > 0 {
		summary = fmt.Sprintf("SUMMARY: %d problem(s): %v", len(problems), problems)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.String("user_id", *userFlag),
		zap.Int("history_entries", len(history)),
		zap.Int("problems", len(problems)))
}
