package brewing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/messaging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errSensor = errors.New("sensor offline")

type fakeSnapshots struct {
	snapshot *Snapshot
	err      error
}

func (f *fakeSnapshots) Snapshot(context.Context) (*Snapshot, error) {
	return f.snapshot, f.err
}

// fakeMachine implements all three sensors. Cooking deducts the ordered
// amounts from the sensors bound to the ordered ingredients.
type fakeMachine struct {
	mu sync.Mutex

	amounts        map[string]int    // sensor id -> amount
	sensorOf       map[string]string // ingredient id -> sensor id
	readErrs       map[string]error  // sensor id -> error before cooking
	readErrsCooked map[string]error  // sensor id -> error after cooking
	cookErr        error

	cooked        int
	cookedSensor  string
	presentPolls  int // polls reporting present before the beverage is taken
	alwaysPresent bool
	polls         int
}

func (m *fakeMachine) Amount(_ context.Context, sensorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cooked == 0 {
		if err := m.readErrs[sensorID]; err != nil {
			return 0, err
		}
	} else if err := m.readErrsCooked[sensorID]; err != nil {
		return 0, err
	}
	return m.amounts[sensorID], nil
}

func (m *fakeMachine) StartCooking(_ context.Context, sensorID string, ingredients []OrderedIngredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooked++
	m.cookedSensor = sensorID
	if m.cookErr != nil {
		return m.cookErr
	}
	for _, ing := range ingredients {
		if s, ok := m.sensorOf[ing.IngredientID]; ok {
			m.amounts[s] -= ing.Amount
		}
	}
	return nil
}

func (m *fakeMachine) IsPresent(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.alwaysPresent {
		return true, nil
	}
	return m.polls <= m.presentPolls, nil
}

func (m *fakeMachine) cookCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooked
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	fail   map[string]error // event kind -> error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[event.EventKind()]; err != nil {
		return err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.EventKind())
	}
	return kinds
}

func (p *recordingPublisher) published(kind string) bool {
	for _, k := range p.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *recordingPublisher) failedEvent(t *testing.T) OrderHasBeenFailed {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if f, ok := e.(OrderHasBeenFailed); ok {
			return f
		}
	}
	t.Fatalf("no %s event published", KindOrderHasBeenFailed)
	return OrderHasBeenFailed{}
}

type harness struct {
	machine   *fakeMachine
	snapshots *fakeSnapshots
	publisher *recordingPublisher
	logs      *observer.ObservedLogs
	orch      *Orchestrator
}

// newHarness builds a machine with ingredient A (5 units on sensor sa),
// ingredient B (7 units on sensor sb) and recipe R1 on sensor S1.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	machine := &fakeMachine{
		amounts:  map[string]int{"sa": 5, "sb": 7},
		sensorOf: map[string]string{"A": "sa", "B": "sb"},
	}
	snapshots := &fakeSnapshots{snapshot: &Snapshot{
		MachineID: "machine-1",
		Version:   1,
		Ingredients: []IngredientSensor{
			{IngredientID: "A", SensorID: "sa"},
			{IngredientID: "B", SensorID: "sb"},
		},
		Recipes: []RecipeSensor{{RecipeID: "R1", SensorID: "S1"}},
	}}
	publisher := &recordingPublisher{fail: map[string]error{}}

	core, logs := observer.New(zap.InfoLevel)

	if opts.PickupTimeout == 0 {
		opts.PickupTimeout = time.Second
	}
	if opts.PickupPollInterval == 0 {
		opts.PickupPollInterval = time.Millisecond
	}

	orch := NewOrchestrator(snapshots, machine, machine, machine, publisher, opts,
		zap.New(core), noop.NewTracerProvider().Tracer("test"))

	return &harness{
		machine:   machine,
		snapshots: snapshots,
		publisher: publisher,
		logs:      logs,
		orch:      orch,
	}
}

func order(ingredients ...OrderedIngredient) CoffeeWasOrdered {
	return CoffeeWasOrdered{OrderID: "order-1", RecipeID: "R1", Ingredients: ingredients}
}

func ingredient(id string, amount int) OrderedIngredient {
	return OrderedIngredient{IngredientID: id, Amount: amount}
}

// errorCodes returns the error_code field of every log entry with message msg.
func errorCodes(logs *observer.ObservedLogs, msg string) []string {
	var codes []string
	for _, e := range logs.FilterMessage(msg).All() {
		if code, ok := e.ContextMap()["error_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func mustParse(t *testing.T, code string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(code)
	if err != nil {
		t.Fatalf("error code %q is not a UUID: %v", code, err)
	}
	return id
}
