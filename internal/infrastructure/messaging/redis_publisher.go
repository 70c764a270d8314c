package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
)

// DefaultChannelPrefix is used when no prefix is configured
const DefaultChannelPrefix = "workflow"

const publishTimeout = 2 * time.Second

// RedisPublisher relays workflow events to Redis pub/sub. Each event goes to
// "<prefix>:<org_id>:<event type>" so subscribers can PSUBSCRIBE per tenant.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher over an existing client
func NewRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Channel returns the channel an event is published on
func (p *RedisPublisher) Channel(evt *event.Event) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, evt.OrgID, evt.Type)
}

// Relay publishes evt and reports failures. Its signature matches
// dispatcher.Handler so it can be subscribed to every event type.
func (p *RedisPublisher) Relay(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	channel := p.Channel(evt)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", channel, err)
	}
	p.logger.Debug("Event relayed", zap.String("channel", channel), zap.String("event_id", evt.ID))
	return nil
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
