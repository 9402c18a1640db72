// Command go-sieve serves stored collections and rule sets over HTTP and
// filters them with the sieve engine.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/asaidimu/go-sieve/api"
	"github.com/asaidimu/go-sieve/config"
	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/asaidimu/go-sieve/logging"
	"github.com/asaidimu/go-sieve/metrics"
	"github.com/asaidimu/go-sieve/sqlite"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	options := sqlite.DefaultOptions()
	options.DropIfExists = cfg.ResetDB
	store := sqlite.NewStore(db, logger.Named("sqlite"), options)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}

	p, err := persistence.NewPersistence(store, logger.Named("persistence"))
	if err != nil {
		return err
	}

	m := metrics.New()
	unsubscribe := m.Subscribe(p)
	defer unsubscribe()

	logger.Info("Database ready",
		zap.String("path", cfg.DBPath),
		zap.Bool("reset", cfg.ResetDB),
	)

	server := api.NewServer(p, logger.Named("api"), api.WithMetrics(m))
	return server.Run(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout)
}
