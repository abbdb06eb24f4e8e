package queue

import (
	"context"
	"sync"

	"github.com/weftlabs/weft/common/logger"
)

// Queue interface for in-process message passing
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// MemoryQueue is an in-process bus. Every subscriber of a topic
// receives every message (fan-out), so the Redis bridge and local
// listeners can observe the same run events.
type MemoryQueue struct {
	subscribers map[string][]chan *Message
	mu          sync.RWMutex
	closed      bool
	log         *logger.Logger
}

// NewMemoryQueue creates a new in-process queue
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		subscribers: make(map[string][]chan *Message),
		log:         log,
	}
}

// Publish delivers a message to every subscriber of the topic. A full
// subscriber buffer drops the message for that subscriber with a
// warning rather than blocking the publisher.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil
	}

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	for _, ch := range q.subscribers[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			q.log.Warn("queue subscriber full, dropping message", "topic", topic, "key", key)
		}
	}

	return nil
}

// Subscribe registers a handler for a topic and processes messages
// until ctx is cancelled
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch := make(chan *Message, 1024)

	q.mu.Lock()
	q.subscribers[topic] = append(q.subscribers[topic], ch)
	q.mu.Unlock()

	q.log.Info("subscribing to topic", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg.Key, msg.Value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.Key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes the queue and all subscriber channels
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	for topic, chans := range q.subscribers {
		for _, ch := range chans {
			close(ch)
		}
		q.log.Info("closed topic", "topic", topic)
	}
	q.subscribers = make(map[string][]chan *Message)

	return nil
}
