package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cimillas/core-ledger/internal/app"
	"github.com/cimillas/core-ledger/internal/clock"
	"github.com/cimillas/core-ledger/internal/config"
	"github.com/cimillas/core-ledger/internal/readmodel"
	"github.com/cimillas/core-ledger/internal/storage/postgres"
	transporthttp "github.com/cimillas/core-ledger/internal/transport/http"
	"github.com/cimillas/core-ledger/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	ledgerRepo := postgres.NewLedgerRepository(pool)
	workflowRepo := postgres.NewWorkflowRepository(pool)
	ledgerSvc := app.NewLedgerService(ledgerRepo, clock.NewSystem(),
		app.WithAlgorithm(cfg.ChainAlgorithm),
		app.WithAppendRetries(cfg.AppendRetries),
	)
	transferSvc := app.NewTransferService(workflowRepo, ledgerSvc, clock.NewSystem(), logger)
	turnover := readmodel.NewTurnoverAggregator(ledgerRepo)

	resumeUnfinished(startupCtx, logger, workflowRepo, transferSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/accounts", transporthttp.HandleOpenAccount(ledgerSvc))
	mux.Handle("/accounts/", transporthttp.HandleAccount(ledgerSvc, turnover))
	mux.Handle("/transfers", transporthttp.HandleStartTransfer(transferSvc))
	mux.Handle("/transfers/", transporthttp.HandleTransfer(transferSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: transporthttp.RequestLogger(mux, logger),
	}

	logger.Info("api listening", zap.String("port", cfg.Port),
		zap.String("algorithm", string(cfg.ChainAlgorithm)))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// resumeUnfinished drives workflows left in-flight by a previous process.
// Each saga replays from its persisted state and step log; a workflow that
// cannot finish is logged and left for the next restart or an operator.
func resumeUnfinished(ctx context.Context, logger *zap.Logger, repo *postgres.WorkflowRepository, svc *app.TransferService) {
	unfinished, err := repo.ListUnfinished(ctx)
	if err != nil {
		logger.Fatal("list unfinished workflows", zap.Error(err))
	}
	for _, id := range unfinished {
		resumed, err := svc.Resume(ctx, id)
		if err != nil {
			logger.Error("resume workflow",
				zap.String("workflow_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		logger.Info("resumed workflow",
			zap.String("workflow_id", resumed.ID.String()),
			zap.String("state", string(resumed.State)),
		)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if cfg.Env == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
