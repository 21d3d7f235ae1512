package messaging

import (
	"fmt"
)

// Binding ties a consumed event kind to its topic and handler.
type Binding struct {
	Kind    string
	Topic   string
	Handler Handler
}

// Registry maps event kinds to handlers. Topics come from the same bindings
// the publisher uses.
type Registry struct {
	topics   Topics
	handlers map[string]Handler
}

func NewRegistry(topics Topics) *Registry {
	return &Registry{
		topics:   topics,
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (r *Registry) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// Bindings resolves topic and handler for each consumed kind. Any gap is a
// wiring error and the service must not start with it. Two consumed kinds
// may not share a topic, since each loop commits everything it reads.
func (r *Registry) Bindings(kinds ...string) ([]Binding, error) {
	bindings := make([]Binding, 0, len(kinds))
	seenTopics := make(map[string]string, len(kinds))

	for _, kind := range kinds {
		topic, err := r.topics.Resolve(kind)
		if err != nil {
			return nil, err
		}
		h, ok := r.handlers[kind]
		if !ok || h == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
		}
		if other, ok := seenTopics[topic]; ok {
			return nil, fmt.Errorf("event kinds %s and %s are both consumed from topic %s", other, kind, topic)
		}
		seenTopics[topic] = kind

		bindings = append(bindings, Binding{Kind: kind, Topic: topic, Handler: h})
	}
	return bindings, nil
}
