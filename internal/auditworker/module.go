// Package auditworker consumes audit requests from a redis channel and
// submits them as workflow runs, so batch producers can queue audits
// without speaking HTTP.
package auditworker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/engine"
	"github.com/seoforge/orchestrator/internal/workflow"
)

func Module() fx.Option {
	return fx.Invoke(register)
}

func register(lc fx.Lifecycle, cfg config.Config, eng *engine.Service, logger *zap.Logger) {
	if cfg.Events.RedisAddr == "" || cfg.Events.RequestChannel == "" {
		logger.Info("audit worker disabled: no redis request channel configured")
		return
	}
	w := &worker{
		client:  redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr}),
		channel: cfg.Events.RequestChannel,
		engine:  eng,
		logger:  logger,
	}
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, runCancel := context.WithCancel(context.Background())
			cancel = runCancel
			go w.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return w.client.Close()
		},
	})
}

type worker struct {
	client  *redis.Client
	channel string
	engine  *engine.Service
	logger  *zap.Logger
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := w.consume(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Warn("audit worker subscription failed; retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *worker) consume(ctx context.Context) error {
	sub := w.client.Subscribe(ctx, w.channel)
	defer sub.Close()

	// Force the subscription before draining so failures surface here.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	w.logger.Info("audit worker subscribed", zap.String("channel", w.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("auditworker: subscription channel closed")
			}
			w.handle(msg.Payload)
		}
	}
}

func (w *worker) handle(payload string) {
	req, err := workflow.ParseRequest([]byte(payload))
	if err != nil {
		w.logger.Warn("audit worker dropped invalid request", zap.Error(err))
		return
	}
	run, err := w.engine.Submit(req)
	if err != nil {
		w.logger.Warn("audit worker submit failed",
			zap.String("workflow", req.Workflow),
			zap.String("target", req.Target),
			zap.Error(err))
		return
	}
	w.logger.Info("audit worker started run",
		zap.String("run_id", run.ID),
		zap.String("workflow", req.Workflow),
		zap.String("target", req.Target))
}
