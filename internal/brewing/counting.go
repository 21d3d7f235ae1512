package brewing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type countFailure struct {
	IngredientSensor
	err error
}

// countIngredients reads every ingredient of the snapshot concurrently and
// waits for all reads to settle. Readings are only usable when no read
// failed.
func countIngredients(ctx context.Context, sensor IngredientAmountSensor, ingredients []IngredientSensor, now func() time.Time) ([]IngredientReading, []countFailure) {
	readings := make([]IngredientReading, len(ingredients))
	errs := make([]error, len(ingredients))

	var wg sync.WaitGroup
	for i, ing := range ingredients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount, err := sensor.Amount(ctx, ing.SensorID)
			if err == nil && amount < 0 {
				err = fmt.Errorf("sensor reported negative amount %d", amount)
			}
			if err != nil {
				errs[i] = err
				return
			}
			readings[i] = IngredientReading{
				IngredientID: ing.IngredientID,
				Amount:       amount,
				ObservedAt:   now(),
			}
		}()
	}
	wg.Wait()

	var failures []countFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, countFailure{IngredientSensor: ingredients[i], err: err})
		}
	}
	if len(failures) > 0 {
		return nil, failures
	}
	return readings, nil
}

// checkFeasibility compares the order with the machine readings. Ordered
// ingredients the machine doesn't know are returned separately and don't
// make the order infeasible on their own.
func checkFeasibility(ordered []OrderedIngredient, readings []IngredientReading) (shortages []MissingIngredient, unknown []string) {
	for _, want := range ordered {
		idx := slices.IndexFunc(readings, func(r IngredientReading) bool {
			return r.IngredientID == want.IngredientID
		})
		if idx < 0 {
			unknown = append(unknown, want.IngredientID)
			continue
		}
		if have := readings[idx].Amount; want.Amount > have {
			shortages = append(shortages, MissingIngredient{
				IngredientID: want.IngredientID,
				Requested:    want.Amount,
				Available:    have,
			})
		}
	}
	return shortages, unknown
}

// unpairedIngredient is an ingredient whose readings don't form one
// before/after pair.
type unpairedIngredient struct {
	IngredientID string
	Readings     int
}

// pairReadings groups the readings by ingredient in first-seen order and
// turns every group of exactly two into a delta, earliest reading first.
func pairReadings(before, after []IngredientReading) ([]ExecutedIngredient, []unpairedIngredient) {
	var order []string
	groups := make(map[string][]IngredientReading)
	for _, r := range slices.Concat(before, after) {
		if _, ok := groups[r.IngredientID]; !ok {
			order = append(order, r.IngredientID)
		}
		groups[r.IngredientID] = append(groups[r.IngredientID], r)
	}

	deltas := make([]ExecutedIngredient, 0, len(order))
	var unpaired []unpairedIngredient
	for _, id := range order {
		group := groups[id]
		if len(group) != 2 {
			unpaired = append(unpaired, unpairedIngredient{IngredientID: id, Readings: len(group)})
			continue
		}
		slices.SortStableFunc(group, func(a, b IngredientReading) int {
			return a.ObservedAt.Compare(b.ObservedAt)
		})
		deltas = append(deltas, ExecutedIngredient{
			IngredientID: id,
			AmountBefore: group[0].Amount,
			AmountAfter:  group[1].Amount,
		})
	}
	return deltas, unpaired
}
