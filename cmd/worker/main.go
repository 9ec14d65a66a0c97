package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/ledger/internal/app"
	"github.com/meridian-erp/ledger/internal/encumbrance"
	"github.com/meridian-erp/ledger/internal/facts"
	"github.com/meridian-erp/ledger/internal/ledger"
	"github.com/meridian-erp/ledger/internal/platform/cache"
	"github.com/meridian-erp/ledger/internal/platform/db"
	"github.com/meridian-erp/ledger/internal/shared"
	"github.com/meridian-erp/ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, shared.NewAuditLogger(pool), nil, nil)
	scheduledPostJob := jobs.NewScheduledPostJob(ledgerService, ledgerRepo, logger)

	encumbranceRepo := encumbrance.NewRepository(pool)
	encumbranceCache := encumbrance.NewCache(redisClient, cfg.EncumbranceCacheTTL)
	encumbranceService := encumbrance.NewService(
		encumbranceRepo,
		encumbrance.NewOrderRepository(pool),
		encumbrance.NewMappingRepository(pool),
		encumbrance.NewLedgerRepository(pool),
		encumbranceCache,
		logger,
	)
	snapshotJob := jobs.NewEncumbranceSnapshotJob(encumbranceService, logger)

	factBuilder := facts.NewBuilder(facts.NewRepository(pool), logger)
	factJob := jobs.NewFactRefreshJob(factBuilder, logger)

	integrityJob := jobs.NewGLIntegrityJob(pool, logger)

	var cron []jobs.CronRegistration
	for _, org := range cfg.SnapshotOrganizations {
		task, err := jobs.NewEncumbranceSnapshotTask(jobs.EncumbranceSnapshotPayload{
			OrganizationID: org,
			CreatedBy:      "scheduler",
		})
		if err != nil {
			logger.Error("build snapshot task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SnapshotCron,
			Task:    task,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}
	factTask, err := jobs.NewFactRefreshTask()
	if err != nil {
		logger.Error("build fact refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	scheduledPostTask, err := jobs.NewScheduledPostTask()
	if err != nil {
		logger.Error("build scheduled post task", slog.Any("error", err))
		os.Exit(1)
	}
	cron = append(cron,
		jobs.CronRegistration{Spec: cfg.FactRefreshCron, Task: factTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		jobs.CronRegistration{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		jobs.CronRegistration{Spec: cfg.ScheduledPostCron, Task: scheduledPostTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEncumbranceSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskFactRefresh, Handler: factJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskScheduledPost, Handler: scheduledPostJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
