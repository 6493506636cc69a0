package main

import (
	"context"
	"fmt"
	"net/http"

	"settlement-reconciler/config"
	"settlement-reconciler/internal/adapter/messaging/kafka"
	"settlement-reconciler/internal/adapter/rail"
	pgStorage "settlement-reconciler/internal/adapter/storage/postgres"
	redisStorage "settlement-reconciler/internal/adapter/storage/redis"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/internal/rulebook"
	"settlement-reconciler/internal/service"
	"settlement-reconciler/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the process-wide collaborators shared by every rail.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	pool *pgxpool.Pool
	rdb  *goredis.Client

	batches      *pgStorage.BatchRepo
	instructions *pgStorage.InstructionRepo
	subTransfers *pgStorage.SubTransferRepo
	progress     *redisStorage.ProgressStore
	lock         *redisStorage.TickLock
	budget       *redisStorage.CallBudget
	audit        ports.AuditService
	dispatcher   *service.DispatchService
	finalizer    *service.FinalizerService

	closers []func() error
}

func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

// newApp connects to PostgreSQL and Redis and builds the shared services.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgresql: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, rdb.Close)

	a.batches = pgStorage.NewBatchRepo(pool)
	a.instructions = pgStorage.NewInstructionRepo(pool)
	a.subTransfers = pgStorage.NewSubTransferRepo(pool)
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	a.progress = redisStorage.NewProgressStore(rdb, cfg.Scheduler.ProgressTTL)
	a.lock = redisStorage.NewTickLock(rdb)
	a.budget = redisStorage.NewCallBudget(rdb)

	a.audit = service.NewAuditService(pgStorage.NewAuditRepo(pool), log)

	publishers := a.publishers()
	a.dispatcher = service.NewDispatchService(outboxRepo, publishers, log)
	a.finalizer = service.NewFinalizerService(
		a.batches,
		a.instructions,
		a.subTransfers,
		outboxRepo,
		transactor,
		a.dispatcher,
		a.audit,
		log,
	)

	return a, nil
}

func (a *app) publishers() []ports.EventPublisher {
	var publishers []ports.EventPublisher
	if a.cfg.Kafka.Enabled {
		p := kafka.NewPublisher(a.cfg.Kafka, a.log)
		a.closers = append(a.closers, p.Close)
		publishers = append(publishers, p)
		a.log.Info().Strs("brokers", a.cfg.Kafka.Brokers).Msg("kafka outcome publisher enabled")
	}
	if a.cfg.Webhook.Enabled() {
		client := &http.Client{Timeout: a.cfg.Webhook.Timeout}
		publishers = append(publishers, service.NewWebhookPublisher(
			a.cfg.Webhook.URL, a.cfg.Webhook.Secret, service.NewHMACSignatureService(), client, a.log,
		))
		a.log.Info().Str("url", a.cfg.Webhook.URL).Msg("webhook outcome publisher enabled")
	}
	if len(publishers) == 0 {
		a.log.Warn().Msg("no outcome publisher configured, events stay in the outbox")
	}
	return publishers
}

// runner builds the reconciler of one configured rail.
func (a *app) runner(name string) (*service.Reconciler, error) {
	adapter, railCfg, err := rail.Lookup(a.cfg, name, a.log)
	if err != nil {
		return nil, err
	}
	rb, err := rulebook.Resolve(railCfg.RulebookName(name))
	if err != nil {
		return nil, fmt.Errorf("rail %s: %w", name, err)
	}

	return service.NewReconciler(
		railSettings(name, railCfg, rb),
		schedulerSettings(a.cfg.Scheduler),
		service.ReconcileDeps{
			Adapter:      adapter,
			Batches:      a.batches,
			Instructions: a.instructions,
			SubTransfers: a.subTransfers,
			Progress:     a.progress,
			Lock:         a.lock,
			Budget:       a.budget,
			Finalizer:    a.finalizer,
			Dispatcher:   a.dispatcher,
			Audit:        a.audit,
		},
		a.log,
	), nil
}

func railSettings(name string, cfg config.RailConfig, rb *rulebook.Rulebook) service.RailSettings {
	return service.RailSettings{
		Name:                name,
		Rulebook:            rb,
		RemarkLimit:         cfg.RemarkLimit,
		AmountScopeFallback: cfg.Fallback(),
		MaxQueriesPerMinute: cfg.MaxQueriesPerMinute,
	}
}

func schedulerSettings(cfg config.SchedulerConfig) service.SchedulerSettings {
	return service.SchedulerSettings{
		CallTimeout: cfg.CallTimeout,
		RunTimeout:  cfg.RunTimeout,
		LockTTL:     cfg.LockTTL,
		BatchLimit:  cfg.BatchLimit,
		RelayLimit:  cfg.RelayLimit,
	}
}

func (a *app) healthCheckers() []ports.HealthChecker {
	return []ports.HealthChecker{
		pgStorage.NewHealthCheck(a.pool),
		redisStorage.NewHealthCheck(a.rdb),
	}
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}
