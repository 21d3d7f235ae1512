package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Header names attached to every produced message.
const (
	EventTypeHeader = "event-type"
	AudienceHeader  = "audience"
)

type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer fetches without committing. Offsets only move forward through
// CommitMessages, which keeps uncommitted messages eligible for redelivery.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerFactory opens a fresh subscription to topic. Each call starts from
// the group's last committed offset.
type ConsumerFactory func(topic string) Consumer

// Header returns the value of the first header named key.
func Header(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
