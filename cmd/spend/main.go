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
	"juice-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	projectFlag := flag.String("project", "", "Project id (required)")
	chainFlag := flag.String("chain", "", "Chain the project is paid on (required)")
	beneficiaryFlag := flag.String("beneficiary", "", "Project beneficiary address (required)")
	tokenFlag := flag.String("token", "", "Token the project accepts (required)")
	amountFlag := flag.String("amount", "", "Juice amount in USD (required)")
	flag.Parse()

	if *userFlag == "" || *projectFlag == "" || *chainFlag == "" || *beneficiaryFlag == "" || *tokenFlag == "" || *amountFlag == "" {
		zap.L().Fatal("All flags are required: --user, --project, --chain, --beneficiary, --token, --amount")
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount format", zap.Error(err))
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

	// The spend is debited now and executed by the processor.
	spends := common.NewPipelines(services.Store, services.Chains, nil, cfg).Spends
	spend, err := spends.Request(ctx, *userFlag, models.Project{
		Id:          *projectFlag,
		ChainId:     *chainFlag,
		Beneficiary: *beneficiaryFlag,
		Token:       *tokenFlag,
	}, amount)
	if err != nil {
		zap.L().Fatal("Failed to request spend",
			zap.String("user_id", *userFlag),
			zap.String("project_id", *projectFlag),
			zap.Error(err))
	}

	fmt.Printf("Spend %s accepted: %s USD to project %s as %s base units of %s (rate %s)\n",
		spend.Id,
		spend.JuiceAmount.StringFixed(2),
		spend.ProjectId,
		spend.CryptoAmount,
		spend.Token,
		spend.ExchangeRate.String())
}
