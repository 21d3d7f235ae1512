package kafka

import (
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ReaderConfig holds what every consumer subscription shares.
type ReaderConfig struct {
	Brokers []string
	GroupID string
	MaxWait time.Duration
}

// NewConsumerFactory returns a factory of group readers with auto-commit
// disabled. A zero CommitInterval makes CommitMessages synchronous.
func NewConsumerFactory(cfg ReaderConfig) ConsumerFactory {
	return func(topic string) Consumer {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          topic,
			StartOffset:    kafka.LastOffset,
			CommitInterval: 0,
			MaxWait:        cfg.MaxWait,
		})
	}
}

// WriterConfig configures the shared producer.
type WriterConfig struct {
	Brokers      []string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// NewProducer builds a topic-less writer (each message names its topic)
// wrapped with OpenTelemetry instrumentation that injects trace context into
// the message headers.
func NewProducer(cfg WriterConfig, tp trace.TracerProvider) (Producer, error) {
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return writer, nil
}
