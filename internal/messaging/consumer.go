package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/kafka"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("handler panicked")

// fetchErrorBackoff keeps a failing broker from spinning the loop.
const fetchErrorBackoff = time.Second

type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopSubscribed
	LoopClosed
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopSubscribed:
		return "subscribed"
	case LoopClosed:
		return "closed"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

// ConsumerLoop consumes one event kind from its topic and commits offsets
// only when the handler asks for it.
type ConsumerLoop struct {
	binding         Binding
	newConsumer     kafka.ConsumerFactory
	redeliveryDelay time.Duration
	logger          observability.Logger
	tracer          observability.Tracer
	state           atomic.Int32
}

// NewConsumerLoop creates a loop for binding. An uncommitted message makes
// the loop drop its subscription, wait redeliveryDelay, and subscribe again so
// the broker redelivers from the last committed offset.
func NewConsumerLoop(binding Binding, newConsumer kafka.ConsumerFactory, redeliveryDelay time.Duration, logger observability.Logger, tracer observability.Tracer) *ConsumerLoop {
	return &ConsumerLoop{
		binding:         binding,
		newConsumer:     newConsumer,
		redeliveryDelay: redeliveryDelay,
		logger:          logger.With(zap.String("topic", binding.Topic), zap.String("event_type", binding.Kind)),
		tracer:          tracer,
	}
}

func (l *ConsumerLoop) State() LoopState { return LoopState(l.state.Load()) }

func (l *ConsumerLoop) Kind() string { return l.binding.Kind }

// Run blocks until ctx is cancelled. It never force-commits on the way out.
func (l *ConsumerLoop) Run(ctx context.Context) error {
	l.logger.Info("Kafka consumer started. Waiting for messages...")

	for {
		consumer := l.newConsumer(l.binding.Topic)
		l.state.Store(int32(LoopSubscribed))

		resubscribe := l.consume(ctx, consumer)

		if err := consumer.Close(); err != nil {
			l.logger.Error("Failed to close Kafka subscription", zap.Error(err))
		}
		if !resubscribe || ctx.Err() != nil {
			break
		}

		l.logger.Info("Re-subscribing to redeliver uncommitted message",
			zap.Duration("delay", l.redeliveryDelay))
		if !sleep(ctx, l.redeliveryDelay) {
			break
		}
	}

	l.state.Store(int32(LoopClosed))
	l.logger.Info("Consumer loop finished. Subscription closed.")
	return nil
}

// consume reads until ctx is done or a message stays uncommitted. Offsets are
// committed per partition as high-water marks, so a later commit would also
// cover the withheld message; the session has to end there.
func (l *ConsumerLoop) consume(ctx context.Context, consumer kafka.Consumer) (resubscribe bool) {
	for {
		msg, err := consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				return false
			}
			l.logger.Error("❌ Error reading from Kafka", zap.Error(err))
			if !sleep(ctx, fetchErrorBackoff) {
				return false
			}
			continue
		}

		if l.dispatch(ctx, consumer, msg) {
			return true
		}
	}
}

// dispatch handles one message and reports whether its offset was
// deliberately left uncommitted. A failed commit is not a withheld one: the
// work is done and must not be redelivered on purpose.
func (l *ConsumerLoop) dispatch(ctx context.Context, consumer kafka.Consumer, msg kafkago.Message) (withheld bool) {
	fields := []zap.Field{
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	if isEmptyPayload(msg.Value) {
		l.logger.Warn("A message equals null, skipping", fields...)
		return true
	}

	// Another producer may share the topic; its kinds are not ours to act on.
	if kind, ok := kafka.Header(msg, kafka.EventTypeHeader); ok && kind != l.binding.Kind {
		l.logger.Info("Skipping message of another event kind", append(fields, zap.String("message_event_type", kind))...)
		l.commit(consumer, msg, fields)
		return false
	}

	l.logger.Info("📨 Raw Kafka message received", append(fields, zap.ByteString("key", msg.Key))...)

	msgCtx := extractTraceContext(ctx, msg.Headers)
	msgCtx, span := l.tracer.Start(msgCtx, l.binding.Kind+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("kafka"),
			semconv.MessagingDestinationNameKey.String(l.binding.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	commit, err := l.handle(msgCtx, msg)
	span.SetAttributes(attribute.Bool("messaging.commit", commit))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		failure := append(fields, zap.Error(err), zap.Bool("commit", commit), zap.ByteString("raw_value", msg.Value))
		switch {
		case errors.Is(err, ErrMalformedMessage):
			l.logger.Error("❌ Malformed message can't be decoded", failure...)
		case errors.Is(err, ErrHandlerPanic):
			l.logger.Error("❌ Message can't be handled because of a panic", failure...)
		default:
			l.logger.Warn("Message handled with a failure", failure...)
		}
	}

	if !commit {
		l.logger.Info("Offset left uncommitted for redelivery", fields...)
		return true
	}
	l.commit(consumer, msg, fields)
	return false
}

func (l *ConsumerLoop) handle(ctx context.Context, msg kafkago.Message) (commit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			commit = false
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return l.binding.Handler.Handle(ctx, msg)
}

// commit runs detached from shutdown so a finished dispatch is never lost.
func (l *ConsumerLoop) commit(consumer kafka.Consumer, msg kafkago.Message, fields []zap.Field) {
	if err := consumer.CommitMessages(context.Background(), msg); err != nil {
		l.logger.Error("❌ Failed to commit offset", append(fields, zap.Error(err))...)
		return
	}
	l.logger.Info("✅ Offset committed", fields...)
}

// extractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
