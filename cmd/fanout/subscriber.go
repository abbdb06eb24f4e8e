package main

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
)

// Subscriber feeds the hub from the orchestrator's run-update channel.
// The channel carries JSON-encoded run events; routing uses the owner
// stamped on each event.
type Subscriber struct {
	redis   *redis.Client
	hub     *Hub
	channel string
	log     *logger.Logger
}

// NewSubscriber creates a subscriber for the given pub/sub channel
func NewSubscriber(redisClient *redis.Client, hub *Hub, channel string, log *logger.Logger) *Subscriber {
	return &Subscriber{
		redis:   redisClient,
		hub:     hub,
		channel: channel,
		log:     log,
	}
}

// Run consumes the channel until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Confirm the subscription before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("subscribed to run updates", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("subscriber stopping")
			return nil

		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Subscriber) dispatch(payload string) {
	var event models.RunEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.log.Warn("dropping malformed run event", "error", err)
		return
	}
	if event.UserID == "" {
		// Ownerless events have no socket to go to
		s.log.Debug("dropping unowned run event", "type", event.Type, "run_id", event.RunID)
		return
	}

	s.hub.broadcast <- &Message{
		UserID: event.UserID,
		RunID:  event.RunID,
		Data:   []byte(payload),
	}
}
