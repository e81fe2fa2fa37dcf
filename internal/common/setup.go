package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/database"
	"juice-ledger-go/internal/formance"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/prime"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads a .env file when one is present. Every key can also come
// from the process environment.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: no .env file loaded: %v\n", err)
	}
}

type Services struct {
	Store       *database.Service
	Chains      *chains.Registry
	Prime       *prime.Service
	PortfolioId string
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database, loads the chain registry and
// connects to Prime.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	services, err := InitializeLocal(ctx, cfg)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		services.Close()
		return nil, err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Prime = primeService

	services.PortfolioId = cfg.Prime.PortfolioId
	if services.PortfolioId == "" {
		zap.L().Info("Finding default portfolio")
		portfolio, err := primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.PortfolioId = portfolio.Id
		zap.L().Info("Using default portfolio",
			zap.String("name", portfolio.Name),
			zap.String("id", portfolio.Id))
	}

	return services, nil
}

// InitializeLocal opens the database and loads the chain registry without
// touching Prime. Intake and read-only tools use it.
func InitializeLocal(ctx context.Context, cfg *models.Config) (*Services, error) {
	registry, err := chains.LoadRegistry(cfg.Processor.ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load chains: %w", err)
	}

	dbService, err := InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Services{
		Store:  dbService,
		Chains: registry,
	}, nil
}

func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	zap.L().Info("Connecting to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("path", cfg.Database.Path))
	return database.NewService(ctx, cfg.Database)
}

// InitializeFormance returns nil when journal export is disabled.
func InitializeFormance(ctx context.Context, cfg *models.Config) (*formance.Service, error) {
	if !cfg.Formance.Enabled {
		return nil, nil
	}
	return formance.NewService(ctx, cfg.Formance)
}

func (cs *Services) Close() {
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
