package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/analysis"
	"github.com/seoforge/orchestrator/internal/cache"
	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/dataforseo"
	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			provideCache,
			provideClient,
			provideAggregator,
			provideAnalysis,
			provideRegistry,
			provideExecutor,
			providePublisher,
			provideArchive,
			provideService,
		),
		fx.Invoke(func(lc fx.Lifecycle, svc *Service) {
			lc.Append(fx.Hook{OnStop: svc.Shutdown})
		}),
	)
}

func provideCache(cfg config.Config) (cache.Store, error) {
	return cache.FromConfig(cfg.Cache)
}

func provideClient(cfg config.Config, store cache.Store, logger *zap.Logger) (*dataforseo.Client, error) {
	ttl := config.ParseDuration(cfg.Cache.TTL, time.Hour)
	return dataforseo.New(cfg.DataForSEO, ttl, store, logger)
}

func provideAggregator() (*scoring.Aggregator, error) {
	return scoring.NewAggregator(nil)
}

func provideAnalysis(client *dataforseo.Client, aggregator *scoring.Aggregator, logger *zap.Logger) *analysis.Service {
	return analysis.NewService(client, aggregator, logger)
}

func provideRegistry(svc *analysis.Service) (*workflow.Registry, error) {
	reg := workflow.NewRegistry()
	if err := svc.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func provideExecutor(reg *workflow.Registry, logger *zap.Logger) *workflow.Executor {
	return workflow.NewExecutor(reg, logger)
}

func providePublisher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) workflow.Publisher {
	if cfg.Events.RedisAddr == "" {
		return workflow.LogPublisher{Logger: logger}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return client.Close()
	}})
	return workflow.NewRedisPublisher(client, cfg.Events.Channel, logger)
}

func provideArchive(cfg config.Config, logger *zap.Logger) (workflow.Archive, error) {
	archive, err := workflow.FromArchiveConfig(cfg.Archive.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.Archive.PostgresDSN == "" {
		logger.Info("run archive disabled: no postgres dsn configured")
	}
	return archive, nil
}

func provideService(cfg config.Config, executor *workflow.Executor, publisher workflow.Publisher, archive workflow.Archive, logger *zap.Logger) *Service {
	return NewService(cfg.Engine, executor, publisher, archive, logger)
}
