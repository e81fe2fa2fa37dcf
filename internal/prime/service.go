package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"juice-ledger-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}
	return portfolioList, nil
}

// FindDefaultPortfolio is used when PRIME_PORTFOLIO_ID is not configured.
func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}
	return nil, fmt.Errorf("default portfolio not found")
}

func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.Wallet, error) {
	response, err := s.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]models.Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}
	return walletList, nil
}

// CreateWallet creates a payout wallet for a token that has none yet.
func (s *Service) CreateWallet(ctx context.Context, portfolioId, name, symbol, walletType string) (*models.Wallet, error) {
	response, err := s.walletsSvc.CreateWallet(ctx, &wallets.CreateWalletRequest{
		PortfolioId:    portfolioId,
		Name:           name,
		Symbol:         symbol,
		Type:           walletType,
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet: %w", err)
	}

	return &models.Wallet{
		Id:     response.ActivityId,
		Name:   response.Name,
		Symbol: response.Symbol,
		Type:   response.Type,
	}, nil
}

// WithdrawalParams contains parameters for creating a withdrawal
type WithdrawalParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string // whole tokens
	Symbol             string
	NetworkId          string
	NetworkType        string
	IdempotencyKey     string
}

// CreateWithdrawal sends funds from a payout wallet to a blockchain address.
// Prime deduplicates on IdempotencyKey.
func (s *Service) CreateWithdrawal(ctx context.Context, params WithdrawalParams) (*models.Withdrawal, error) {
	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", params.PortfolioId),
		zap.String("wallet_id", params.WalletId),
		zap.String("symbol", params.Symbol),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress),
		zap.String("idempotency_key", params.IdempotencyKey))

	blockchainAddr := &model.BlockchainAddress{
		Address: params.DestinationAddress,
	}
	if params.NetworkId != "" {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   params.NetworkId,
			Type: params.NetworkType,
		}
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       params.PortfolioId,
		SourceWalletId:    params.WalletId,
		Amount:            params.Amount,
		IdempotencyKey:    params.IdempotencyKey,
		Symbol:            params.Symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	})
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", params.WalletId),
			zap.String("idempotency_key", params.IdempotencyKey),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("transaction_id", response.TransactionId),
		zap.String("idempotency_key", params.IdempotencyKey))

	return &models.Withdrawal{
		ActivityId:     response.ActivityId,
		TransactionId:  response.TransactionId,
		Asset:          params.Symbol,
		Amount:         params.Amount,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

// ListWalletTransactions fetches withdrawals from a payout wallet since startTime.
func (s *Service) ListWalletTransactions(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]models.PrimeTransaction, error) {
	response, err := s.transactionsSvc.ListWalletTransactions(ctx, &transactions.ListWalletTransactionsRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		Start:       startTime,
		Types:       []string{"WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	})
	if err != nil {
		zap.L().Error("Failed to list wallet transactions",
			zap.String("wallet_id", walletId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	txs := make([]models.PrimeTransaction, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		txs = append(txs, models.PrimeTransaction{
			Id:             tx.Id,
			WalletId:       tx.WalletId,
			Type:           tx.Type,
			Status:         tx.Status,
			Symbol:         tx.Symbol,
			Amount:         tx.Amount,
			CreatedAt:      tx.Created,
			CompletedAt:    tx.Completed,
			TransactionId:  tx.TransactionId,
			BlockchainIds:  tx.BlockchainIds,
			Network:        tx.Network,
			IdempotencyKey: tx.IdempotencyKey,
		})
	}

	zap.L().Debug("Prime wallet transactions received",
		zap.String("wallet_id", walletId),
		zap.Int("count", len(txs)))
	return txs, nil
}
