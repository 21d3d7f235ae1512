package messaging

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testTopic = "coffee-machine-orders"
	testKind  = "CoffeeWasOrdered"
)

type loopHarness struct {
	broker *fakeBroker
	logs   *observer.ObservedLogs
	loop   *ConsumerLoop
	cancel context.CancelFunc
	done   chan error

	stopOnce sync.Once
	runErr   error
}

func startLoop(t *testing.T, h Handler, redeliveryDelay time.Duration) *loopHarness {
	t.Helper()
	broker := newFakeBroker()
	core, logs := observer.New(zap.InfoLevel)

	loop := NewConsumerLoop(
		Binding{Kind: testKind, Topic: testTopic, Handler: h},
		broker.factory(),
		redeliveryDelay,
		zap.New(core),
		noop.NewTracerProvider().Tracer("test"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	lh := &loopHarness{broker: broker, logs: logs, loop: loop, cancel: cancel, done: done}
	t.Cleanup(func() { _ = lh.stop() })
	return lh
}

// stop cancels the loop and returns what Run returned.
func (h *loopHarness) stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case h.runErr = <-h.done:
		case <-time.After(2 * time.Second):
			h.runErr = errors.New("loop did not stop")
		}
	})
	return h.runErr
}

func TestConsumerLoop_CommitsOnlyWhenAsked(t *testing.T) {
	handler := &recordingHandler{directives: []bool{true, false}}
	h := startLoop(t, handler, time.Hour)

	h.broker.produce(testTopic, testKind, `{"order_id":"1"}`)
	h.broker.produce(testTopic, testKind, `{"order_id":"2"}`)

	waitFor(t, "both messages handled", func() bool { return len(handler.handled()) == 2 })
	_ = h.stop()

	if got := h.broker.committedOffset(testTopic); got != 1 {
		t.Errorf("committed offset = %d, want 1", got)
	}
	if n := h.logs.FilterMessage("Offset left uncommitted for redelivery").Len(); n != 1 {
		t.Errorf("uncommitted records = %d, want 1", n)
	}
}

func TestConsumerLoop_RedeliversByResubscribing(t *testing.T) {
	handler := &recordingHandler{directives: []bool{false, true}}
	h := startLoop(t, handler, time.Millisecond)

	h.broker.produce(testTopic, testKind, `{"order_id":"1"}`)

	waitFor(t, "redelivered message committed", func() bool { return h.broker.committedOffset(testTopic) == 1 })
	_ = h.stop()

	if got := handler.handled(); !slices.Equal(got, []int64{0, 0}) {
		t.Errorf("handled offsets = %v, want the message twice", got)
	}
	subs, closed := h.broker.counts()
	if subs < 2 {
		t.Errorf("subscriptions = %d, want a re-subscription", subs)
	}
	if closed != subs {
		t.Errorf("closed %d of %d subscriptions", closed, subs)
	}
}

func TestConsumerLoop_WithheldMessageIsNotSkipped(t *testing.T) {
	handler := &recordingHandler{directives: []bool{false, true}}
	h := startLoop(t, handler, 0)

	h.broker.produce(testTopic, testKind, `{"order_id":"1"}`)
	h.broker.produce(testTopic, testKind, `{"order_id":"2"}`)

	waitFor(t, "both messages committed", func() bool { return h.broker.committedOffset(testTopic) == 2 })
	_ = h.stop()

	if got := handler.handled(); !slices.Equal(got, []int64{0, 0, 1}) {
		t.Errorf("handled offsets = %v, want the withheld message again before the next one", got)
	}
	if subs, _ := h.broker.counts(); subs != 2 {
		t.Errorf("subscriptions = %d, want 2", subs)
	}
}

func TestConsumerLoop_NullPayloadIsNotCommitted(t *testing.T) {
	for _, payload := range []string{"null", ""} {
		t.Run("payload "+strconv.Quote(payload), func(t *testing.T) {
			handler := &recordingHandler{}
			h := startLoop(t, handler, time.Hour)

			h.broker.produce(testTopic, testKind, payload)
			h.broker.produce(testTopic, testKind, `{"order_id":"2"}`)

			waitFor(t, "null payload skipped", func() bool {
				return h.logs.FilterMessage("A message equals null, skipping").Len() == 1
			})
			_ = h.stop()

			if len(handler.handled()) != 0 {
				t.Error("handler must not see null payloads or anything after them")
			}
			if got := h.broker.committedOffset(testTopic); got != 0 {
				t.Errorf("committed offset = %d, want 0", got)
			}
		})
	}
}

func TestConsumerLoop_MalformedPayloadIsNotCommitted(t *testing.T) {
	called := false
	handler := JSONHandler(func(context.Context, struct {
		OrderID string `json:"order_id"`
	}) (bool, error) {
		called = true
		return true, nil
	})
	h := startLoop(t, handler, time.Hour)

	h.broker.produce(testTopic, testKind, `{"order_id":`)

	waitFor(t, "malformed payload logged", func() bool {
		return h.logs.FilterMessage("❌ Malformed message can't be decoded").Len() == 1
	})
	_ = h.stop()

	if called {
		t.Error("handler must not run for a malformed payload")
	}
	if got := h.broker.committedOffset(testTopic); got != 0 {
		t.Errorf("committed offset = %d, want 0", got)
	}
}

func TestConsumerLoop_RecoversFromPanic(t *testing.T) {
	var panicked atomic.Bool
	handler := HandlerFunc(func(_ context.Context, msg kafkago.Message) (bool, error) {
		if msg.Offset == 0 && !panicked.Swap(true) {
			panic("boom")
		}
		return true, nil
	})
	h := startLoop(t, handler, 0)

	h.broker.produce(testTopic, testKind, `{"order_id":"1"}`)
	h.broker.produce(testTopic, testKind, `{"order_id":"2"}`)

	waitFor(t, "second message committed", func() bool { return h.broker.committedOffset(testTopic) == 2 })
	_ = h.stop()

	entries := h.logs.FilterMessage("❌ Message can't be handled because of a panic").All()
	if len(entries) != 1 {
		t.Fatalf("panic records = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["commit"] != false {
		t.Error("a panicking handler must not commit")
	}
}

func TestConsumerLoop_CommitsForeignKinds(t *testing.T) {
	handler := &recordingHandler{}
	h := startLoop(t, handler, 0)

	h.broker.produce(testTopic, "OrderHasBeenCompleted", `{"order_id":"1"}`)

	waitFor(t, "foreign kind committed", func() bool { return h.broker.committedOffset(testTopic) == 1 })
	_ = h.stop()

	if len(handler.handled()) != 0 {
		t.Error("handler must not see another event kind")
	}
}

func TestConsumerLoop_HandlerFailureWithCommit(t *testing.T) {
	handler := HandlerFunc(func(context.Context, kafkago.Message) (bool, error) {
		return true, errors.New("cooking failed")
	})
	h := startLoop(t, handler, 0)

	h.broker.produce(testTopic, testKind, `{"order_id":"1"}`)

	waitFor(t, "failed message committed", func() bool { return h.broker.committedOffset(testTopic) == 1 })
	_ = h.stop()

	if n := h.logs.FilterMessage("Message handled with a failure").Len(); n != 1 {
		t.Errorf("failure records = %d, want 1", n)
	}
}

func TestConsumerLoop_ShutdownClosesSubscription(t *testing.T) {
	h := startLoop(t, &recordingHandler{}, 0)

	waitFor(t, "subscription", func() bool { return h.loop.State() == LoopSubscribed })

	if err := h.stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if h.loop.State() != LoopClosed {
		t.Errorf("state = %s, want %s", h.loop.State(), LoopClosed)
	}
	if subs, closed := h.broker.counts(); subs != closed {
		t.Errorf("closed %d of %d subscriptions", closed, subs)
	}
}
