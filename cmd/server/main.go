package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-sync/auth"
	"chat-sync/internal"
	"chat-sync/observability"
	"chat-sync/presence"
	"chat-sync/repositories"
	"chat-sync/search"
	"chat-sync/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	index, err := search.NewInMemoryIndex()
	if err != nil {
		return fmt.Errorf("search index failed: %w", err)
	}
	defer func() { _ = index.Close() }()

	monitor := observability.NewMonitor(log, config.MetricInterval)
	registry := presence.NewRegistry()
	store := repositories.NewMessageStore(db, log)
	router := server.NewRouter(log, registry, store, index, monitor, config.HistoryLimit)
	handler := server.NewHandler(log, router, auth.NewHS256Verifier(config.JWTSecret), monitor)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.Listen(ctx)

	// Optional read-only store inspector, off by default.
	if config.DebugPort > 0 {
		internal.StartDebugServer(log, db, config.DebugPort, func() map[string]any {
			return map[string]any{"connections": monitor.Connections()}
		})
	}

	// 5. HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	mux.HandleFunc("/healthz", server.HealthHandler)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown timeout reached", "error", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}
