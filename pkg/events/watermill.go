package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"ai-restaurant-search-be/internal/pkg/logger"
)

// MaxDeliver bounds redeliveries of a failing event, as on the JetStream
// consumers.
const MaxDeliver = 5

// Bus carries events over a watermill Pub/Sub. It serves single-node
// deployments where NATS is not configured.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	bound map[string]bool
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

func NewBus(publisher message.Publisher, subscriber message.Subscriber, log logger.ILogger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		bound:      make(map[string]bool),
	}
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := b.publisher.Publish(event.EventType(), msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Subscribe binds handler to one exact subject. A Pub/Sub topic has no
// wildcards, so patterns are rejected. Binding a durable name twice on the
// same subject is a no-op, which keeps one delivery per group.
func (b *Bus) Subscribe(subject, durable string, handler Handler) error {
	if strings.ContainsAny(subject, "*>") {
		return fmt.Errorf("subject %q: wildcard subjects need the NATS bus", subject)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := subject + "|" + durable
	if b.bound[key] {
		return nil
	}

	messages, err := b.subscriber.Subscribe(b.ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	b.bound[key] = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(subject, durable, messages, handler)
	}()

	b.logger.Info("EventBus", "Subscribed", map[string]interface{}{
		"subject": subject,
		"durable": durable,
	})
	return nil
}

func (b *Bus) consume(subject, durable string, messages <-chan *message.Message, handler Handler) {
	attempts := make(map[string]int)
	for msg := range messages {
		if err := handler(msg.Context(), subject, msg.Payload); err != nil {
			attempts[msg.UUID]++
			if attempts[msg.UUID] < MaxDeliver {
				b.logger.Warn("EventBus", "Handler failed, message will be redelivered", map[string]interface{}{
					"subject":  subject,
					"durable":  durable,
					"attempts": attempts[msg.UUID],
					"error":    err.Error(),
				})
				msg.Nack()
				continue
			}
			b.logger.Error("EventBus", "Handler failed, dropping message", map[string]interface{}{
				"subject":  subject,
				"durable":  durable,
				"attempts": attempts[msg.UUID],
				"error":    err.Error(),
			})
		}
		delete(attempts, msg.UUID)
		msg.Ack()
	}
}

// Close ends every subscription and waits for in-flight handlers.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
