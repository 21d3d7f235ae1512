package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// ErrMalformedMessage marks payloads that cannot be decoded into the bound
// event type or fail its validation. No order context exists for them.
var ErrMalformedMessage = errors.New("malformed message")

// Handler processes one message and says whether its offset may be committed.
// commit=true with a non-nil error is valid: the work failed but must not be
// repeated.
type Handler interface {
	Handle(ctx context.Context, msg kafkago.Message) (commit bool, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg kafkago.Message) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, msg kafkago.Message) (bool, error) {
	return f(ctx, msg)
}

type validator interface {
	Validate() error
}

// JSONHandler decodes the message value into T before calling fn. Decoding
// and validation failures are reported as ErrMalformedMessage without
// committing.
func JSONHandler[T any](fn func(ctx context.Context, event T) (bool, error)) Handler {
	return HandlerFunc(func(ctx context.Context, msg kafkago.Message) (bool, error) {
		var event T
		dec := json.NewDecoder(bytes.NewReader(msg.Value))
		if err := dec.Decode(&event); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if v, ok := any(event).(validator); ok {
			if err := v.Validate(); err != nil {
				return false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
		}
		return fn(ctx, event)
	})
}

// isEmptyPayload reports a missing value or a JSON null.
func isEmptyPayload(value []byte) bool {
	trimmed := bytes.TrimSpace(value)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
