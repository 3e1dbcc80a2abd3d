// Orderflow - restaurant ordering service: session carts, discounts,
// checkout submission and the admin order board.
// Designed for Cloud Run deployment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/backendapi"
	"orderflow/internal/background"
	"orderflow/internal/clientinfo"
	"orderflow/internal/config"
	"orderflow/internal/handler"
	"orderflow/internal/middleware"
	"orderflow/internal/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("store_code", cfg.Store.StoreCode),
		slog.String("environment", cfg.Environment),
	)

	// Load the product catalog
	catalog, err := loadCatalog()
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// Create the order API client
	var tokens backendapi.TokenSource
	if cfg.Store.BackendToken != "" {
		tokens = backendapi.StaticToken(cfg.Store.BackendToken)
	}
	backend, err := backendapi.New(backendapi.Config{
		BaseURL: cfg.Store.BackendBaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating order API client: %w", err)
	}

	// Background runner for fire-and-forget work (order creation,
	// profile sync); drained on shutdown.
	runner := background.NewRunner(logger)

	h := handler.New(handler.Config{
		StoreCode:        cfg.Store.StoreCode,
		StoreName:        cfg.Store.StoreName,
		WhatsAppPhone:    cfg.Store.WhatsAppPhone,
		MinClientVersion: cfg.Store.MinClientVersion,
		DataDir:          envOrDefault("DATA_DIR", "data"),
		GuestFloor:       cfg.GuestFloor(),
		RegisteredFloor:  cfg.RegisteredFloor(),
		PromoItem:        promoItem(catalog),
	}, backend, catalog, runner, logger)
	defer h.Close()

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → client gate → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		clientinfo.Middleware(cfg.Store.MinClientVersion, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	// Let in-flight background work (order creation, profile sync) land.
	runner.Wait()

	logger.Info("server stopped")
	return nil
}

// loadCatalog reads the product catalog from the CATALOG_FILE JSON.
func loadCatalog() (*model.Catalog, error) {
	path := envOrDefault("CATALOG_FILE", "catalog.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var catalog model.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &catalog, nil
}

// promoItem resolves the PROMO_ITEM_ID env against the catalog.
// Unset or unresolvable IDs disable the upsell prompt.
func promoItem(catalog *model.Catalog) *model.Product {
	id := os.Getenv("PROMO_ITEM_ID")
	if id == "" {
		return nil
	}
	if p, ok := catalog.Find(id); ok {
		return &p
	}
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
