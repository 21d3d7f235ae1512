package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/kafka"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes domain events to the topic bound to their kind.
type Publisher struct {
	producer kafka.Producer
	topics   Topics
	audience string
	timeout  time.Duration
	logger   observability.Logger
}

// NewPublisher creates a publisher. A zero timeout leaves the caller's
// context as the only bound on a write.
func NewPublisher(producer kafka.Producer, topics Topics, audience string, timeout time.Duration, logger observability.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topics:   topics,
		audience: audience,
		timeout:  timeout,
		logger:   logger,
	}
}

// Validate checks that every kind this service produces has a topic.
func (p *Publisher) Validate(kinds ...string) error {
	for _, kind := range kinds {
		if _, err := p.topics.Resolve(kind); err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
	}
	return nil
}

// Publish serializes the event and returns once the broker acknowledged it.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	kind := event.EventKind()
	topic, err := p.topics.Resolve(kind)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", kind, err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(event.EventKey()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: kafka.EventTypeHeader, Value: []byte(kind)},
			{Key: kafka.AudienceHeader, Value: []byte(p.audience)},
		},
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("❌ Failed to publish event",
			zap.Error(err),
			zap.String("event_type", kind),
			zap.String("topic", topic),
			zap.String("key", event.EventKey()),
		)
		return fmt.Errorf("publish %s to %s: %w", kind, topic, err)
	}

	p.logger.Info("📤 Sent event",
		zap.String("event_type", kind),
		zap.String("topic", topic),
		zap.String("key", event.EventKey()),
	)
	return nil
}
