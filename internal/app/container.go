package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/handler"
	"onisai/internal/lock"
	internalRedis "onisai/internal/redis"
	"onisai/internal/repository"
	"onisai/internal/repository/file"
	"onisai/internal/repository/sqlstore"
	"onisai/internal/service"
)

const (
	redisLockKey    = "pipeline"
	shutdownTimeout = 10 * time.Second
)

// Container holds the wired pipeline and the connections it owns.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Layout   file.Layout
	Pipeline *service.Pipeline
	NewRelic *newrelic.Application
	Outbox   *file.Outbox

	db    *sql.DB
	redis *redis.Client
	cache *internalRedis.CacheStore
}

type stores struct {
	grid      repository.GridRepository
	guardrail repository.GuardrailRepository
	state     repository.StateRepository
}

// NewContainer opens the configured stores and wires the pipeline.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Layout: file.NewLayout(cfg.DataDir)}
	if err := c.Layout.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare data dir: %w", err)
	}

	nrApp, err := NewTelemetry(cfg.NewRelic, logger)
	if err != nil {
		// Telemetry is optional; run without it.
		logger.Warn("new relic disabled", zap.Error(err))
	}
	c.NewRelic = nrApp

	st, err := c.openStores(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		if c.redis, err = NewRedisClient(ctx, cfg.Redis, nrApp); err != nil {
			c.Close()
			return nil, err
		}
		c.cache = internalRedis.NewCacheStore(c.redis)
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	var backend lock.Backend
	switch cfg.Lock.Backend {
	case config.LockBackendRedis:
		if c.redis == nil {
			c.Close()
			return nil, errors.New("lock.backend redis requires redis.addr")
		}
		backend = lock.NewRedisBackend(internalRedis.NewLockStore(c.redis), redisLockKey, cfg.Lock.TTL)
	default:
		backend = lock.NewFileBackend(c.Layout.LockFile(), cfg.Lock.TTL)
	}

	c.Outbox = file.NewOutbox(c.Layout.Outbox())
	var sender service.Sender = c.Outbox
	if cfg.Notify.Sender == config.SenderLog {
		sender = service.NewLogSender(logger)
	}

	loc := cfg.TimeLocation()
	unified := file.NewUnifiedLog(c.Layout.UnifiedLog())
	archive := file.NewArchive(c.Layout)

	c.Pipeline = service.NewPipeline(service.PipelineDeps{
		Parser:    service.NewOfferParser(cfg.Parser),
		Stamper:   service.NewEventStamper(unified, logger),
		Archiver:  service.NewArchiver(unified, archive, cfg.Metrics, loc, logger),
		Grid:      service.NewGridUpdater(st.grid, archive, st.guardrail, file.NewReports(c.Layout), cfg.Grid, logger),
		Guardrail: service.NewGuardrailDetector(st.grid, st.guardrail, cfg.Guardrail, logger),
		Notifier:  service.NewNotificationService(sender, cfg.Pipeline.LowStarRating, logger),
		Archive:   archive,
		State:     st.state,
		Locker:    lock.New(backend, cfg.Lock.Wait),
		Metrics:   cfg.Metrics,
		Config:    cfg.Pipeline,
		Location:  loc,
		Logger:    logger,
	})
	return c, nil
}

func (c *Container) openStores(ctx context.Context) (stores, error) {
	cfg := c.Config
	var (
		db      *sql.DB
		dialect sqlstore.Dialect
		err     error
	)

	switch cfg.Store.Backend {
	case config.StoreBackendSQLite:
		db, err = NewSQLite(ctx, cfg.Store.SQLitePath)
		dialect = sqlstore.SQLite
	case config.StoreBackendPostgres:
		db, err = NewDatabase(ctx, cfg.Database, c.NewRelic)
		dialect = sqlstore.Postgres
	default:
		return stores{
			grid:      file.NewGridStore(c.Layout.GridDB()),
			guardrail: file.NewGuardrailLog(c.Layout.GuardrailLog()),
			state:     file.NewStateStore(c.Layout.StateFile()),
		}, nil
	}
	if err != nil {
		return stores{}, err
	}
	c.db = db

	sdb := sqlstore.New(db, dialect)
	if err := sdb.Migrate(ctx); err != nil {
		return stores{}, err
	}
	c.Logger.Info("sql store ready", zap.String("dialect", string(dialect)))
	return stores{
		grid:      sqlstore.NewGridRepository(sdb),
		guardrail: sqlstore.NewGuardrailRepository(sdb),
		state:     sqlstore.NewStateRepository(sdb),
	}, nil
}

// HTTPServer builds the HTTP trigger server.
func (c *Container) HTTPServer() *http.Server {
	var (
		responses internalRedis.ResponseCache
		status    internalRedis.StatusCache
	)
	if c.cache != nil {
		responses, status = c.cache, c.cache
	}

	router := NewRouter(RouterDeps{
		PipelineHandler: handler.NewPipelineHandler(c.Pipeline, status, c.Logger),
		ResponseCache:   responses,
		NewRelicApp:     c.NewRelic,
		Logger:          c.Logger,
	})

	return &http.Server{
		Addr:         ":" + c.Config.Server.Port,
		Handler:      router,
		ReadTimeout:  c.Config.Server.ReadTimeout,
		WriteTimeout: c.Config.Server.WriteTimeout,
	}
}

// StartTransaction starts a New Relic transaction for a non-HTTP trigger.
// The returned context carries it; end is safe to call without New Relic.
func (c *Container) StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	if c.NewRelic == nil {
		return ctx, func() {}
	}
	txn := c.NewRelic.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
	if c.NewRelic != nil {
		c.NewRelic.Shutdown(shutdownTimeout)
	}
}
