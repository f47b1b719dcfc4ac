package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"fintrack/internal/domain/expense"
	"fintrack/internal/domain/receipt"
	"fintrack/internal/infrastructure/dynamo"
	"fintrack/internal/infrastructure/gcs"
	"fintrack/internal/infrastructure/memory"
	"fintrack/internal/infrastructure/postgres"
	"fintrack/internal/infrastructure/s3store"
	httphandlers "fintrack/internal/interfaces/http"
	"fintrack/internal/shared/config"
)

// Dependencies holds all initialized application components. Backend clients
// are created once here and shared by every request.
type Dependencies struct {
	ExpenseHandler *httphandlers.ExpenseHandler
	ReceiptHandler *httphandlers.ReceiptHandler
	HealthHandler  *httphandlers.HealthHandler

	// MemoryObjects is set when receipts are kept in process and must be
	// served by this API.
	MemoryObjects *memory.ObjectStore

	closers []io.Closer
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{HealthHandler: httphandlers.NewHealthHandler(0)}

	expenseRepo, err := deps.newExpenseRepository(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	objectStore, err := deps.newObjectStore(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	expenseService := expense.NewService(expenseRepo)
	receiptService := receipt.NewService(objectStore, receipt.Config{
		Prefix:   cfg.Receipts.Prefix,
		MaxBytes: cfg.Receipts.MaxUploadBytes,
	})

	deps.ExpenseHandler = httphandlers.NewExpenseHandler(expenseService, logger, cfg.Server.ExposeErrorDetails)
	deps.ReceiptHandler = httphandlers.NewReceiptHandler(receiptService, logger, cfg.Server.ExposeErrorDetails)

	return deps, nil
}

func (d *Dependencies) newExpenseRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (expense.Repository, error) {
	switch cfg.Store.Backend {
	case config.StoreDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		logger.Info("using dynamodb record store",
			zap.String("table", cfg.Store.ExpensesTable),
			zap.String("region", cfg.Store.AWSRegion),
		)
		return dynamo.NewExpenseRepository(client, cfg.Store.ExpensesTable, logger), nil

	case config.StorePostgres:
		db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db)
		d.HealthHandler.Register("database", db)
		logger.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

		repo := postgres.NewExpenseRepository(db)
		if cfg.Store.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	default:
		logger.Warn("using in-memory record store; data is lost on restart")
		return memory.NewExpenseRepository(), nil
	}
}

func (d *Dependencies) newObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (receipt.ObjectStore, error) {
	switch cfg.Receipts.Backend {
	case config.ObjectStoreS3:
		client, err := s3store.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		logger.Info("using s3 receipt store", zap.String("bucket", cfg.Receipts.Bucket))
		return s3store.New(client, s3store.Config{
			Bucket:        cfg.Receipts.Bucket,
			Region:        cfg.Store.AWSRegion,
			Endpoint:      cfg.Store.AWSEndpoint,
			PublicBaseURL: cfg.Receipts.PublicBaseURL,
		}, logger), nil

	case config.ObjectStoreGCS:
		client, err := gcs.NewClient(ctx, cfg.Receipts.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client)
		logger.Info("using gcs receipt store", zap.String("bucket", cfg.Receipts.Bucket))
		return gcs.New(client, gcs.Config{
			Bucket:          cfg.Receipts.Bucket,
			CredentialsFile: cfg.Receipts.GCSCredentialsFile,
			PublicBaseURL:   cfg.Receipts.PublicBaseURL,
		}, logger), nil

	default:
		baseURL := cfg.Receipts.PublicBaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%s/receipts", cfg.Server.Port)
		}
		logger.Warn("using in-memory receipt store; receipts are lost on restart", zap.String("base_url", baseURL))
		d.MemoryObjects = memory.NewObjectStore(baseURL)
		return d.MemoryObjects, nil
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	for _, c := range d.closers {
		c.Close()
	}
}
