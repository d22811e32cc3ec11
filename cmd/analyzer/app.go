package main

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"dzchess-analyzer/internal/cache"
	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/jobs"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/parser"
	"dzchess-analyzer/internal/repository"
	"dzchess-analyzer/internal/service"
	"dzchess-analyzer/internal/source"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	store    *repository.SQLStore
	jobStore cache.Store
	pipeline *service.Pipeline
	runner   *jobs.Runner
	reporter *service.Reporter
	sweep    *service.CleanupScheduler
}

func newApp(cfg *config.Config) (*app, error) {
	log := logging.For("app")

	store, err := repository.Open(cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	jobStore := openJobStore(cfg)

	client := source.New(source.ConfigFrom(cfg.Source))
	maintainer := service.NewMaintainer(store)
	processor := service.NewProcessor(parser.New(), store, maintainer, cfg.Jobs.PersistenceErrorThreshold)
	pipeline := service.NewPipeline(client, store, processor, maintainer)

	runner := jobs.New(pipeline, jobStore, jobs.Config{
		Workers:           cfg.Jobs.Workers,
		QueueSize:         cfg.Jobs.QueueSize,
		LockTTL:           cfg.Jobs.LockTTL,
		DefaultMonthsBack: cfg.Source.MonthsBack,
	})

	sweep := service.NewCleanupScheduler(store, runner, service.CleanupConfig{
		StaleAfter:  cfg.Sweep.StaleAfter,
		Interval:    cfg.Sweep.Interval,
		AutoRefresh: cfg.Sweep.AutoRefresh,
		BatchSize:   cfg.Sweep.BatchSize,
		MonthsBack:  cfg.Source.MonthsBack,
	})

	log.Info().Str("store", store.Dialect()).Str("env", cfg.App.Environment).Msg("components ready")

	return &app{
		cfg:      cfg,
		store:    store,
		jobStore: jobStore,
		pipeline: pipeline,
		runner:   runner,
		reporter: service.NewReporter(store),
		sweep:    sweep,
	}, nil
}

// openJobStore connects to Redis when configured and falls back to the
// in-process store when Redis is unreachable.
func openJobStore(cfg *config.Config) cache.Store {
	log := logging.For("app")
	if cfg.Cache.Type == "redis" {
		rs, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
			Retention: cfg.Jobs.Retention,
		})
		if err == nil {
			log.Info().Str("addr", cfg.Cache.RedisAddress()).Msg("redis job store initialized")
			return rs
		}
		log.Warn().Err(err).Msg("redis unavailable, jobs are kept in memory")
	}
	return cache.NewMemoryStore(cfg.Jobs.Retention)
}

// close stops the runner and releases connections.
func (a *app) close(ctx context.Context) error {
	var result *multierror.Error

	a.sweep.Stop()
	if err := a.runner.Stop(ctx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "stop runner"))
	}
	if err := a.jobStore.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close job store"))
	}
	if err := a.store.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close store"))
	}
	return result.ErrorOrNil()
}

func shutdownContext(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
