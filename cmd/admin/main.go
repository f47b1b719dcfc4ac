package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/domain/expense"
	"fintrack/internal/infrastructure/dynamo"
	"fintrack/internal/infrastructure/postgres"
	"fintrack/internal/shared/auth"
	"fintrack/internal/shared/config"
	"fintrack/internal/shared/logging"
)

const usage = `fintrack Admin CLI - Maintenance commands for the fintrack record stores

Usage:
  admin <command> [options]

Commands:
  ensure-schema    Create the Postgres expenses table and indexes if missing
  copy-expenses    Copy expense records between record store backends
  issue-token      Print a signed owner token for the API (needs OWNER_TOKEN_SECRET)

Examples:
  # Prepare a fresh Postgres database
  admin ensure-schema

  # Copy two owners from DynamoDB to Postgres
  admin copy-expenses --from=dynamodb --to=postgres --owner=a@example.com,b@example.com

  # Run with more workers and a timeout
  admin copy-expenses --from=dynamodb --to=postgres --owner=a@example.com --workers=8 --timeout=1h

  # Issue a one-hour token for local testing
  admin issue-token --owner=a@example.com --ttl=1h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "ensure-schema":
		runEnsureSchema(os.Args[2:])
	case "copy-expenses":
		runCopyExpenses(os.Args[2:])
	case "issue-token":
		runIssueToken(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.Logger) {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return cfg, logger
}

func runEnsureSchema(args []string) {
	fs := flag.NewFlagSet("ensure-schema", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "1m", "Timeout for the operation (e.g., 30s, 5m)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg, logger := loadConfig()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	if err := postgres.NewExpenseRepository(db).EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("Schema is up to date")
}

func runCopyExpenses(args []string) {
	fs := flag.NewFlagSet("copy-expenses", flag.ExitOnError)

	from := fs.String("from", config.StoreDynamoDB, "Source backend (dynamodb or postgres)")
	to := fs.String("to", config.StorePostgres, "Destination backend (dynamodb or postgres)")
	ownerStr := fs.String("owner", "", "Owner id(s) to copy (comma-separated for multiple)")
	workers := fs.Int("workers", expense.DefaultCopyWorkers, "Number of concurrent workers")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin copy-expenses [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin copy-expenses --owner=a@example.com")
		fmt.Println("  admin copy-expenses --from=postgres --to=dynamodb --owner=a@example.com,b@example.com")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	owners := parseOwners(*ownerStr)
	if len(owners) == 0 {
		fmt.Println("Error: must specify --owner")
		fs.Usage()
		os.Exit(1)
	}
	if *from == *to {
		fmt.Println("Error: --from and --to must differ")
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg, logger := loadConfig()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	src, closeSrc := openRepository(ctx, cfg, *from, logger)
	defer closeSrc()
	dst, closeDst := openRepository(ctx, cfg, *to, logger)
	defer closeDst()

	log.Printf("Copying %d owner(s) from %s to %s with %d workers", len(owners), *from, *to, *workers)
	startTime := time.Now()

	failed := 0
	for _, res := range expense.CopyOwners(ctx, src, dst, owners, *workers) {
		printResult(res)
		if res.Err != nil {
			failed++
		}
	}

	log.Printf("Copy completed in %v", time.Since(startTime))
	if failed > 0 {
		log.Printf("%d owner(s) failed", failed)
		os.Exit(1)
	}
}

func runIssueToken(args []string) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id to put in the token (required)")
	ttl := fs.Duration("ttl", 0, "Token lifetime (defaults to OWNER_TOKEN_TTL)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *owner == "" {
		fmt.Println("Error: must specify --owner")
		fs.Usage()
		os.Exit(1)
	}

	cfg, logger := loadConfig()
	defer logger.Sync()

	if cfg.Server.OwnerTokenSecret == "" {
		log.Fatal("OWNER_TOKEN_SECRET is not set")
	}
	lifetime := cfg.Server.OwnerTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewTokens(cfg.Server.OwnerTokenSecret, lifetime).Issue(*owner)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func openRepository(ctx context.Context, cfg *config.Config, backend string, logger *zap.Logger) (expense.Repository, func()) {
	switch backend {
	case config.StoreDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.AWSEndpoint)
		if err != nil {
			log.Fatalf("Failed to create dynamodb client: %v", err)
		}
		return dynamo.NewExpenseRepository(client, cfg.Store.ExpensesTable, logger), func() {}

	case config.StorePostgres:
		db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		repo := postgres.NewExpenseRepository(db)
		if cfg.Store.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				log.Fatalf("Failed to ensure schema: %v", err)
			}
		}
		return repo, func() { db.Close() }

	default:
		log.Fatalf("Unsupported backend %q (want dynamodb or postgres)", backend)
		return nil, nil
	}
}

func parseOwners(s string) []string {
	var owners []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] || expense.IsPlaceholderOwner(p) {
			continue
		}
		seen[p] = true
		owners = append(owners, p)
	}
	return owners
}

func printResult(res expense.CopyResult) {
	fmt.Printf("\n=== Owner %s ===\n", res.OwnerID)
	fmt.Printf("  Records listed:  %d\n", res.Listed)
	fmt.Printf("  Records copied:  %d\n", res.Copied)
	fmt.Printf("  Already present: %d\n", res.Skipped)
	if res.Err != nil {
		fmt.Printf("  Error:           %v\n", res.Err)
	}
}
