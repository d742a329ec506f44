package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is the run lifecycle notification published on every status
// transition and step completion.
type Event struct {
	RunID     string     `json:"run_id"`
	Workflow  string     `json:"workflow"`
	Status    Status     `json:"status"`
	Step      string     `json:"step,omitempty"`
	StepState StepStatus `json:"step_state,omitempty"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	At        time.Time  `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher drops events. Used when no event bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) {
	p.Logger.Info("run event",
		zap.String("run_id", ev.RunID),
		zap.String("workflow", ev.Workflow),
		zap.String("status", string(ev.Status)),
		zap.String("step", ev.Step),
		zap.String("step_state", string(ev.StepState)),
		zap.Int("completed", ev.Completed),
		zap.Int("total", ev.Total),
	)
}

// RedisPublisher fans events out on a pub/sub channel so external
// consumers can follow run progress without polling.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal run event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish run event",
			zap.String("channel", p.channel),
			zap.String("run_id", ev.RunID),
			zap.Error(err))
	}
}
