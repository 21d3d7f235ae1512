package messaging

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoTopic means an event kind has no topic binding.
	ErrNoTopic = errors.New("no topic bound to event kind")
	// ErrNoHandler means a consumed event kind has no registered handler.
	ErrNoHandler = errors.New("no handler registered for event kind")
)

// Event is anything the publisher can put on the wire. The kind names the
// event type and selects the topic, the key groups messages of one order on
// one partition.
type Event interface {
	EventKind() string
	EventKey() string
}

// TopicBinding lists the event kinds carried by one topic.
type TopicBinding struct {
	Name   string
	Events []string
}

// Topics maps an event kind to its topic name.
type Topics map[string]string

// NewTopics flattens topic bindings into a kind lookup. A kind bound to two
// different topics is rejected.
func NewTopics(bindings []TopicBinding) (Topics, error) {
	topics := make(Topics)
	for _, b := range bindings {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return nil, fmt.Errorf("topic binding for events %v has no name", b.Events)
		}
		for _, kind := range b.Events {
			if prev, ok := topics[kind]; ok && prev != name {
				return nil, fmt.Errorf("event kind %s bound to both %s and %s", kind, prev, name)
			}
			topics[kind] = name
		}
	}
	return topics, nil
}

// Resolve returns the topic bound to kind.
func (t Topics) Resolve(kind string) (string, error) {
	topic, ok := t[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTopic, kind)
	}
	return topic, nil
}
