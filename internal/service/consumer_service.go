package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/panjf2000/ants/v2"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/pkg/logger"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
	Close()
}

// consumerService pulls jobs off the queue topic and runs them on a bounded
// pool. Submission blocks while the pool is full.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	runner     *SearchRunner
	pool       *ants.Pool
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	runner *SearchRunner,
	workers int,
	log logger.ILogger,
) (IConsumerService, error) {
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create search worker pool: %w", err)
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		runner:     runner,
		pool:       pool,
		logger:     log,
	}, nil
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	var job dto.SearchJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal search job", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	// The job store is the source of truth from here on
	msg.Ack()

	if err := cs.pool.Submit(func() { cs.runner.Run(job) }); err != nil {
		cs.logger.Error("Consumer", "Failed to schedule search job", map[string]interface{}{
			"request_id": job.RequestID,
			"error":      err.Error(),
		})
		cs.runner.fail(job, err, time.Now())
	}
}

func (cs *consumerService) Close() {
	cs.pool.Release()
}
