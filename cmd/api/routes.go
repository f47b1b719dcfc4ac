package main

import (
	"net/http"

	"go.uber.org/zap"

	httphandlers "fintrack/internal/interfaces/http"
	"fintrack/internal/shared/auth"
	"fintrack/internal/shared/config"
	"fintrack/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", deps.HealthHandler.HandleHealth)

	// Expenses
	mux.HandleFunc("/api/expenses", deps.ExpenseHandler.HandleExpenses)
	mux.HandleFunc("/api/expenses/summary", deps.ExpenseHandler.HandleSummary)
	mux.HandleFunc("/api/expenses/{recordId}", deps.ExpenseHandler.HandleExpenseByID)

	// Receipts
	mux.HandleFunc("/api/receipts", deps.ReceiptHandler.HandleUpload)
	if deps.MemoryObjects != nil {
		mux.HandleFunc("/receipts/", httphandlers.HandleObject(deps.MemoryObjects))
	}

	var verifyToken func(string) (string, error)
	if cfg.Server.OwnerTokenSecret != "" {
		verifyToken = auth.NewTokens(cfg.Server.OwnerTokenSecret, cfg.Server.OwnerTokenTTL).Verify
		logger.Info("bearer token identity enabled")
	}

	// Apply global middleware. Identity runs before tracing and logging so
	// both can see the owner; CORS wraps identity so a 401 from a bad token
	// still carries the cross-origin headers.
	handler := middleware.Logging(logger)(mux)
	handler = middleware.Tracing(handler)
	handler = middleware.BearerIdentity(verifyToken)(handler)
	handler = middleware.Identity(cfg.Server.TrustedOwnerHeader)(handler)
	handler = middleware.CORS(cfg.Server.AllowedOrigins)(handler)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		logger.Info("TLS security middleware enabled (HSTS)")
	}

	return handler
}
