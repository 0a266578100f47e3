package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"warehouse-ledger/internal/adapters/web"
	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/config"
	"warehouse-ledger/internal/core"
	"warehouse-ledger/internal/db"
	"warehouse-ledger/internal/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
)

func runMigrations(dsn, dir string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, dir)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := runMigrations(cfg.Postgres.DSN, cfg.Migrations.Dir); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	directory := core.NewDirectoryService(pool)
	statuses := core.NewStatusService(pool)
	ledger := core.NewStockLedger(pool)
	mutations := core.NewMutationService(pool)
	audits := core.NewAuditService(pool, mutations)
	batches := core.NewBatchService(mutations)
	reporting := core.NewReportingService(pool)

	svc := app.NewAppService(pool, directory, statuses, ledger, mutations, audits, batches, reporting)
	handler := web.NewHandler(svc, log, cfg.HTTP.AllowedOrigins, cfg.Metrics.Enabled)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
