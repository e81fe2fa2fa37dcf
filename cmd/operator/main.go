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
	"os"
	"time"

	"juice-ledger-go/internal/api"
	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: operator <command> [flags]

commands:
  failed    -kind spend|cash_out|fiat_payment [-limit N]   list failed payouts
  refund    -kind spend|cash_out|fiat_payment -id ID       refund a failed payout
  resolve   -dispute PROVIDER_DISPUTE_ID -resolution won|lost|withdrawn
  disputes  -target ID                                     list disputes for a purchase or payment
  adjust    -user ID -amount [-]USD -ref REF                credit or debit a balance by hand
`

func parseKind(s string) (models.PayoutKind, error) {
	switch k := models.PayoutKind(s); k {
	case models.PayoutKindSpend, models.PayoutKindCashOut, models.PayoutKindFiatPayment:
		return k, nil
	}
	return "", fmt.Errorf("unknown payout kind %q", s)
}

// adjustment builds a manual balance move. The sign of amount picks the
// direction and ref makes a repeated command a no-op.
func adjustment(userId, amount, ref string, now time.Time) (store.MoveParams, error) {
	if userId == "" || ref == "" {
		return store.MoveParams{}, fmt.Errorf("adjust needs -user and -ref")
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return store.MoveParams{}, fmt.Errorf("invalid amount format: %w", err)
	}
	if value.IsZero() {
		return store.MoveParams{}, fmt.Errorf("amount must not be zero")
	}
	kind := models.EntryKindAdjustmentCredit
	if value.IsNegative() {
		kind = models.EntryKindAdjustmentDebit
	}
	return store.MoveParams{
		UserId:    userId,
		Amount:    value.Abs(),
		Kind:      kind,
		SourceRef: "adjustment:" + ref,
		Now:       now,
	}, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	kindFlag := fs.String("kind", "", "Payout kind")
	idFlag := fs.String("id", "", "Payout row id")
	limitFlag := fs.Int("limit", 50, "Maximum rows to list")
	disputeFlag := fs.String("dispute", "", "Provider dispute id")
	resolutionFlag := fs.String("resolution", "", "Dispute resolution")
	targetFlag := fs.String("target", "", "Purchase or fiat payment id")
	userFlag := fs.String("user", "", "User id")
	amountFlag := fs.String("amount", "", "Signed adjustment in USD")
	refFlag := fs.String("ref", "", "Unique reference for the adjustment")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeLocal(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	pipelines := common.NewPipelines(services.Store, services.Chains, nil, cfg)

	switch command {
	case "failed":
		kind, err := parseKind(*kindFlag)
		if err != nil {
			zap.L().Fatal("Invalid arguments", zap.Error(err))
		}
		payouts, err := services.Store.ListPayouts(ctx, kind, "failed", *limitFlag)
		if err != nil {
			zap.L().Fatal("Failed to list payouts", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("FAILED %s PAYOUTS", kind), common.DefaultWidth)
		for i, p := range payouts {
			display := api.Display(p.Status, p.RetryCount, cfg.Processor.MaxRetries)
			fmt.Printf("%s %s  %12s USD  retries=%d  shown as %q  %s\n",
				common.BoxPrefix(i == len(payouts)-1),
				p.Id,
				common.FormatUSD(p.Amount),
				p.RetryCount,
				display,
				p.LastError)
		}
		common.PrintFooter(fmt.Sprintf("SUMMARY: %d failed payouts", len(payouts)), common.DefaultWidth)

	case "refund":
		kind, err := parseKind(*kindFlag)
		if err != nil || *idFlag == "" {
			zap.L().Fatal("refund needs -kind and -id", zap.Error(err))
		}
		var refunded *models.Payout
		switch kind {
		case models.PayoutKindSpend:
			refunded, err = pipelines.Spends.Refund(ctx, *idFlag)
		case models.PayoutKindCashOut:
			refunded, err = pipelines.CashOuts.Refund(ctx, *idFlag)
		case models.PayoutKindFiatPayment:
			refunded, err = pipelines.Settlements.Refund(ctx, *idFlag)
		}
		if err != nil {
			zap.L().Fatal("Failed to refund payout",
				zap.String("kind", string(kind)),
				zap.String("id", *idFlag),
				zap.Error(err))
		}
		fmt.Printf("Refunded %s %s (%s USD)\n", kind, refunded.Id, common.FormatUSD(refunded.Amount))

	case "resolve":
		resolution, err := models.ParseDisputeResolution(*resolutionFlag)
		if err != nil || *disputeFlag == "" {
			zap.L().Fatal("resolve needs -dispute and -resolution", zap.Error(err))
		}
		dispute, err := pipelines.Disputes.Resolve(ctx, *disputeFlag, resolution)
		if err != nil {
			zap.L().Fatal("Failed to resolve dispute",
				zap.String("provider_dispute_id", *disputeFlag),
				zap.Error(err))
		}
		fmt.Printf("Dispute %s on %s %s resolved as %s\n", dispute.Id, dispute.TargetKind, dispute.TargetId, resolution)

	case "disputes":
		if *targetFlag == "" {
			zap.L().Fatal("disputes needs -target")
		}
		disputes, err := services.Store.ListDisputes(ctx, *targetFlag)
		if err != nil {
			zap.L().Fatal("Failed to list disputes", zap.Error(err))
		}
		common.PrintHeader("DISPUTES FOR "+*targetFlag, common.DefaultWidth)
		for i, d := range disputes {
			resolution := "open"
			if d.Resolution != nil {
				resolution = string(*d.Resolution)
			}
			fmt.Printf("%s %s  reason=%s  was=%s  %s  %s\n",
				common.BoxPrefix(i == len(disputes)-1),
				d.ProviderDisputeId,
				d.ReasonCode,
				d.StatusAtDispute,
				resolution,
				d.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		common.PrintFooter(fmt.Sprintf("SUMMARY: %d disputes", len(disputes)), common.DefaultWidth)

	case "adjust":
		params, err := adjustment(*userFlag, *amountFlag, *refFlag, time.Now().UTC())
		if err != nil {
			zap.L().Fatal("Invalid arguments", zap.Error(err))
		}
		var entry *models.LedgerEntry
		if params.Kind.IsCredit() {
			entry, err = services.Store.Credit(ctx, params)
		} else {
			entry, err = services.Store.Debit(ctx, params)
		}
		if err != nil {
			zap.L().Fatal("Failed to adjust balance",
				zap.String("user_id", params.UserId),
				zap.String("source_ref", params.SourceRef),
				zap.Error(err))
		}
		fmt.Printf("Adjusted %s by %s USD, balance now %s USD\n",
			entry.UserId, common.FormatSignedUSD(entry.Amount), common.FormatUSD(entry.BalanceAfter))

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}
