package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/queue"
)

// EventPublisher forwards run events to a Redis stream (durable
// consumers) and a pub/sub channel (live fan-out) in one pipeline.
type EventPublisher struct {
	client  *Client
	stream  string
	channel string
	logger  Logger
}

// NewEventPublisher creates a publisher for the given stream and channel
func NewEventPublisher(client *Client, stream, channel string, logger Logger) *EventPublisher {
	return &EventPublisher{
		client:  client,
		stream:  stream,
		channel: channel,
		logger:  logger,
	}
}

// Publish sends one event to both destinations
func (p *EventPublisher) Publish(ctx context.Context, event *models.RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.NewPipeline()
	pipe.AddToStream(ctx, p.stream, map[string]interface{}{
		"type":   string(event.Type),
		"run_id": event.RunID,
		"event":  string(payload),
	})
	pipe.PublishEvent(ctx, p.channel, string(payload))

	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	return nil
}

// Bridge subscribes to the in-process bus topic and forwards every
// message to Redis. Forwarding errors are logged, never propagated to
// the engine.
func (p *EventPublisher) Bridge(ctx context.Context, q queue.Queue, topic string) error {
	return q.Subscribe(ctx, topic, func(ctx context.Context, key string, value []byte) error {
		var event models.RunEvent
		if err := json.Unmarshal(value, &event); err != nil {
			p.logger.Warn("dropping malformed run event", "key", key, "error", err)
			return nil
		}
		if err := p.Publish(ctx, &event); err != nil {
			p.logger.Error("failed to forward run event", "run_id", event.RunID, "type", event.Type, "error", err)
		}
		return nil
	})
}
