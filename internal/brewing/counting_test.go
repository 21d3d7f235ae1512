package brewing

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

type slowSensor struct {
	amounts  map[string]int
	errs     map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowSensor) Amount(_ context.Context, sensorID string) (int, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.errs[sensorID]; err != nil {
		return 0, err
	}
	return s.amounts[sensorID], nil
}

func TestCountIngredients_ReadsConcurrently(t *testing.T) {
	sensor := &slowSensor{amounts: map[string]int{"s1": 1, "s2": 2, "s3": 3}}
	ingredients := []IngredientSensor{
		{IngredientID: "A", SensorID: "s1"},
		{IngredientID: "B", SensorID: "s2"},
		{IngredientID: "C", SensorID: "s3"},
	}

	readings, failures := countIngredients(context.Background(), sensor, ingredients, time.Now)
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}
	if sensor.maxSeen.Load() < 2 {
		t.Errorf("max concurrent reads = %d, want reads to overlap", sensor.maxSeen.Load())
	}

	got := make([]string, 0, len(readings))
	for _, r := range readings {
		got = append(got, r.IngredientID)
		if r.ObservedAt.IsZero() {
			t.Errorf("reading %s has no observation time", r.IngredientID)
		}
	}
	if !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("readings order = %v, want snapshot order", got)
	}
}

func TestCountIngredients_FailsTogether(t *testing.T) {
	sensor := &slowSensor{
		amounts: map[string]int{"s1": 1, "s2": 2},
		errs:    map[string]error{"s2": errors.New("timeout")},
	}
	ingredients := []IngredientSensor{
		{IngredientID: "A", SensorID: "s1"},
		{IngredientID: "B", SensorID: "s2"},
	}

	readings, failures := countIngredients(context.Background(), sensor, ingredients, time.Now)
	if readings != nil {
		t.Errorf("readings = %v, want none when a read failed", readings)
	}
	if len(failures) != 1 || failures[0].IngredientID != "B" {
		t.Errorf("failures = %+v, want ingredient B", failures)
	}
}

type negativeSensor struct{}

func (negativeSensor) Amount(context.Context, string) (int, error) { return -1, nil }

func TestCountIngredients_RejectsNegativeAmounts(t *testing.T) {
	_, failures := countIngredients(context.Background(), negativeSensor{},
		[]IngredientSensor{{IngredientID: "A", SensorID: "s1"}}, time.Now)
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
}

func TestCheckFeasibility(t *testing.T) {
	readings := []IngredientReading{
		{IngredientID: "A", Amount: 5},
		{IngredientID: "B", Amount: 0},
	}

	tests := []struct {
		name          string
		ordered       []OrderedIngredient
		wantShortages []MissingIngredient
		wantUnknown   []string
	}{
		{
			name:    "enough of everything",
			ordered: []OrderedIngredient{{IngredientID: "A", Amount: 5}, {IngredientID: "B", Amount: 0}},
		},
		{
			name:          "one short",
			ordered:       []OrderedIngredient{{IngredientID: "A", Amount: 6}},
			wantShortages: []MissingIngredient{{IngredientID: "A", Requested: 6, Available: 5}},
		},
		{
			name:        "unknown ingredient does not block",
			ordered:     []OrderedIngredient{{IngredientID: "Z", Amount: 100}, {IngredientID: "A", Amount: 1}},
			wantUnknown: []string{"Z"},
		},
		{
			name:    "empty order",
			ordered: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shortages, unknown := checkFeasibility(tt.ordered, readings)
			if !slices.Equal(shortages, tt.wantShortages) {
				t.Errorf("shortages = %+v, want %+v", shortages, tt.wantShortages)
			}
			if !slices.Equal(unknown, tt.wantUnknown) {
				t.Errorf("unknown = %v, want %v", unknown, tt.wantUnknown)
			}
		})
	}
}

func TestPairReadings(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	tests := []struct {
		name         string
		before       []IngredientReading
		after        []IngredientReading
		wantDeltas   []ExecutedIngredient
		wantUnpaired []unpairedIngredient
	}{
		{
			name:       "one pair per ingredient",
			before:     []IngredientReading{{"A", 5, at(0)}, {"B", 9, at(0)}},
			after:      []IngredientReading{{"A", 3, at(10)}, {"B", 9, at(10)}},
			wantDeltas: []ExecutedIngredient{{"A", 5, 3}, {"B", 9, 9}},
		},
		{
			name:       "ordered by observation time",
			before:     []IngredientReading{{"A", 3, at(10)}},
			after:      []IngredientReading{{"A", 5, at(0)}},
			wantDeltas: []ExecutedIngredient{{"A", 5, 3}},
		},
		{
			name:         "missing after reading",
			before:       []IngredientReading{{"A", 5, at(0)}, {"B", 9, at(0)}},
			after:        []IngredientReading{{"B", 8, at(10)}},
			wantDeltas:   []ExecutedIngredient{{"B", 9, 8}},
			wantUnpaired: []unpairedIngredient{{"A", 1}},
		},
		{
			name:         "three readings",
			before:       []IngredientReading{{"A", 5, at(0)}, {"A", 5, at(1)}},
			after:        []IngredientReading{{"A", 3, at(10)}},
			wantDeltas:   []ExecutedIngredient{},
			wantUnpaired: []unpairedIngredient{{"A", 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas, unpaired := pairReadings(tt.before, tt.after)
			if !slices.Equal(deltas, tt.wantDeltas) {
				t.Errorf("deltas = %+v, want %+v", deltas, tt.wantDeltas)
			}
			if !slices.Equal(unpaired, tt.wantUnpaired) {
				t.Errorf("unpaired = %+v, want %+v", unpaired, tt.wantUnpaired)
			}
		})
	}
}
