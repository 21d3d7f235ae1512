package brewing

import (
	"context"
	"time"
)

type IngredientSensor struct {
	IngredientID string `json:"ingredient_id"`
	SensorID     string `json:"sensor_id"`
}

type RecipeSensor struct {
	RecipeID string `json:"recipe_id"`
	SensorID string `json:"sensor_id"`
}

// Snapshot is the machine configuration one run works against. Providers
// hand out a new value on every change and never mutate one already
// returned.
type Snapshot struct {
	MachineID   string             `json:"machine_id"`
	Version     uint64             `json:"version"`
	Ingredients []IngredientSensor `json:"ingredients"`
	Recipes     []RecipeSensor     `json:"recipes"`
}

// RecipeSensor returns the cooking sensor bound to recipeID.
func (s *Snapshot) RecipeSensor(recipeID string) (string, bool) {
	for _, r := range s.Recipes {
		if r.RecipeID == recipeID {
			return r.SensorID, true
		}
	}
	return "", false
}

type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// IngredientReading is one sensor observation of an ingredient amount.
type IngredientReading struct {
	IngredientID string
	Amount       int
	ObservedAt   time.Time
}
