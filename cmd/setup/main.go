package main

import (
	"context"
	"flag"
	"fmt"

	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/models"

	"go.uber.org/zap"
)

const walletType = "TRADING"

type tokenStatus struct {
	chain    models.Chain
	token    models.Token
	walletId string
	note     string
}

// findWallet returns the configured payout wallet, or the first wallet
// holding the token when none is configured.
func findWallet(ctx context.Context, services *common.Services, token models.Token) (*models.Wallet, error) {
	wallets, err := services.Prime.ListWallets(ctx, services.PortfolioId, walletType, []string{token.Symbol})
	if err != nil {
		return nil, err
	}
	for i := range wallets {
		if token.PrimeWalletId == "" || wallets[i].Id == token.PrimeWalletId {
			return &wallets[i], nil
		}
	}
	return nil, nil
}

func checkToken(ctx context.Context, services *common.Services, chain models.Chain, token models.Token, create bool) tokenStatus {
	status := tokenStatus{chain: chain, token: token}

	wallet, err := findWallet(ctx, services, token)
	if err != nil {
		zap.L().Error("Error listing wallets",
			zap.String("chain", chain.Id),
			zap.String("token", token.Symbol),
			zap.Error(err))
		status.note = "error: " + err.Error()
		return status
	}

	switch {
	case wallet != nil && token.PrimeWalletId != "":
		status.walletId = wallet.Id
		status.note = "ok"
	case token.PrimeWalletId != "":
		status.walletId = token.PrimeWalletId
		status.note = "configured wallet not found in portfolio"
	case wallet != nil:
		status.walletId = wallet.Id
		status.note = "set prime_wallet_id to this wallet"
	case create:
		name := fmt.Sprintf("Juice %s Payouts", token.Symbol)
		zap.L().Info("Creating payout wallet",
			zap.String("token", token.Symbol),
			zap.String("wallet_name", name))
		created, err := services.Prime.CreateWallet(ctx, services.PortfolioId, name, token.Symbol, walletType)
		if err != nil {
			zap.L().Error("Error creating wallet", zap.String("token", token.Symbol), zap.Error(err))
			status.note = "error: " + err.Error()
			return status
		}
		status.walletId = created.Id
		status.note = "created, set prime_wallet_id (id is the creation activity until Prime finishes)"
	default:
		status.note = "no wallet, rerun with -create"
	}
	return status
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	createFlag := flag.Bool("create", false, "Create missing payout wallets in Prime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database also creates the schema.
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("PAYOUT WALLETS", common.DefaultWidth)

	var ok, total int
	for _, chain := range services.Chains.Chains() {
		fmt.Printf("\n┌─ Chain: %s (%s)\n", chain.Name, chain.Id)
		common.PrintBoxSeparator(78)
		for i, token := range chain.Tokens {
			total++
			status := checkToken(ctx, services, chain, token, *createFlag)
			if status.note == "ok" {
				ok++
			}
			fmt.Printf("%s %-6s wallet=%-38s %s\n",
				common.BoxPrefix(i == len(chain.Tokens)-1),
				token.Symbol,
				status.walletId,
				status.note)
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d of %d tokens have a usable payout wallet", ok, total), common.DefaultWidth)

	if ok < total {
		zap.L().Warn("Some tokens cannot be paid out", zap.Int("ready", ok), zap.Int("tokens", total))
	}
}
