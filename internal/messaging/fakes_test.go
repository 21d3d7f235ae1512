package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/kafka"

	kafkago "github.com/segmentio/kafka-go"
)

// fakeBroker keeps one partition per topic and one committed offset per
// topic, like a single-member consumer group.
type fakeBroker struct {
	mu            sync.Mutex
	messages      map[string][]kafkago.Message
	committed     map[string]int64
	subscriptions int
	closed        int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		messages:  make(map[string][]kafkago.Message),
		committed: make(map[string]int64),
	}
}

func (b *fakeBroker) produce(topic, kind, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := kafkago.Message{
		Topic:  topic,
		Offset: int64(len(b.messages[topic])),
		Key:    []byte("order-1"),
		Value:  []byte(value),
	}
	if kind != "" {
		msg.Headers = []kafkago.Header{{Key: kafka.EventTypeHeader, Value: []byte(kind)}}
	}
	b.messages[topic] = append(b.messages[topic], msg)
}

func (b *fakeBroker) committedOffset(topic string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed[topic]
}

func (b *fakeBroker) counts() (subscriptions, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscriptions, b.closed
}

func (b *fakeBroker) factory() kafka.ConsumerFactory {
	return func(topic string) kafka.Consumer {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subscriptions++
		return &fakeConsumer{broker: b, topic: topic, next: b.committed[topic]}
	}
}

type fakeConsumer struct {
	broker *fakeBroker
	topic  string
	next   int64
}

func (c *fakeConsumer) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	for {
		c.broker.mu.Lock()
		msgs := c.broker.messages[c.topic]
		if c.next < int64(len(msgs)) {
			msg := msgs[c.next]
			c.next++
			c.broker.mu.Unlock()
			return msg, nil
		}
		c.broker.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafkago.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (c *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	for _, m := range msgs {
		if m.Offset+1 > c.broker.committed[c.topic] {
			c.broker.committed[c.topic] = m.Offset + 1
		}
	}
	return nil
}

func (c *fakeConsumer) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.closed++
	return nil
}

// recordingHandler answers with the queued directives in order and with
// commit=true once they run out.
type recordingHandler struct {
	mu         sync.Mutex
	directives []bool
	offsets    []int64
}

func (h *recordingHandler) Handle(_ context.Context, msg kafkago.Message) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offsets = append(h.offsets, msg.Offset)
	if len(h.directives) == 0 {
		return true, nil
	}
	commit := h.directives[0]
	h.directives = h.directives[1:]
	return commit, nil
}

func (h *recordingHandler) handled() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.offsets...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	block    bool
}

func (p *fakeProducer) WriteMessage(ctx context.Context, msg kafkago.Message) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }
