package nats

import (
	"context"
	"fmt"
	"sync"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/events"

	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber binds durable JetStream consumers on the search stream.
type Subscriber struct {
	js     jetstream.JetStream
	logger logger.ILogger

	mu       sync.Mutex
	contexts []jetstream.ConsumeContext
}

var _ events.Subscriber = (*Subscriber)(nil)

func NewSubscriber(js jetstream.JetStream, log logger.ILogger) *Subscriber {
	return &Subscriber{js: js, logger: log}
}

// Subscribe registers a handler for a subject pattern. Every node binding the
// same durable name shares one consumer, so each message is handled once.
func (s *Subscriber) Subscribe(subject string, durableName string, handler events.Handler) error {
	ctx := context.Background()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(context.Background(), msg.Subject(), msg.Data()); err != nil {
			s.logger.Warn("NATS", "Handler failed, message will be redelivered", map[string]interface{}{
				"subject": msg.Subject(),
				"durable": durableName,
				"error":   err.Error(),
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.mu.Lock()
	s.contexts = append(s.contexts, cc)
	s.mu.Unlock()

	s.logger.Info("NATS", "Subscribed", map[string]interface{}{
		"subject": subject,
		"durable": durableName,
	})
	return nil
}

// Stop ends every consumer started by this subscriber.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cc := range s.contexts {
		cc.Stop()
	}
	s.contexts = nil
}
