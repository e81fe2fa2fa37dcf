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

	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/pipeline"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type cashOutFlags struct {
	request pipeline.CashOutRequest
	cancel  string
}

func parseAndValidateFlags() (*cashOutFlags, error) {
	userFlag := flag.String("user", "", "User id (required)")
	chainFlag := flag.String("chain", "", "Chain id from chains.yaml (e.g. base)")
	tokenFlag := flag.String("token", "", "Token symbol (e.g. USDC)")
	amountFlag := flag.String("amount", "", "Juice amount in USD, two decimals at most")
	destinationFlag := flag.String("destination", "", "Destination wallet address")
	cancelFlag := flag.String("cancel", "", "Cancel this pending cash-out instead of requesting one")
	flag.Parse()

	if *userFlag == "" {
		return nil, fmt.Errorf("--user is required")
	}
	if *cancelFlag != "" {
		return &cashOutFlags{
			request: pipeline.CashOutRequest{UserId: *userFlag},
			cancel:  *cancelFlag,
		}, nil
	}

	if *chainFlag == "" || *tokenFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("flags required for a request: --chain, --token, --amount, --destination")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	return &cashOutFlags{
		request: pipeline.CashOutRequest{
			UserId:      *userFlag,
			ChainId:     *chainFlag,
			Token:       *tokenFlag,
			Destination: *destinationFlag,
			Amount:      amount,
		},
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	flags, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeLocal(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	// Execution happens in the processor once the cancel window closes.
	cashOuts := common.NewPipelines(services.Store, services.Chains, nil, cfg).CashOuts

	if flags.cancel != "" {
		cancelled, err := cashOuts.Cancel(ctx, flags.cancel, flags.request.UserId)
		if err != nil {
			zap.L().Fatal("Failed to cancel cash-out",
				zap.String("cash_out_id", flags.cancel),
				zap.Error(err))
		}
		fmt.Printf("Cash-out %s cancelled, %s USD returned to balance\n", cancelled.Id, cancelled.JuiceAmount.StringFixed(2))
		return
	}

	cashOut, err := cashOuts.Request(ctx, flags.request)
	if err != nil {
		zap.L().Fatal("Failed to request cash-out",
			zap.String("user_id", flags.request.UserId),
			zap.Error(err))
	}

	fmt.Printf("Cash-out %s requested: %s USD to %s on %s (%s)\n",
		cashOut.Id,
		cashOut.JuiceAmount.StringFixed(2),
		cashOut.DestinationAddress,
		cashOut.ChainId,
		cashOut.Token)
	fmt.Printf("It can be cancelled until %s\n", cashOut.AvailableAt.Format("2006-01-02 15:04:05 MST"))
}
