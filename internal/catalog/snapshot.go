package catalog

import (
	"context"
	"fmt"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
)

// SnapshotProvider builds machine snapshots from the catalog. The version is
// the catalog revision, so stock changes from cooking don't produce a new
// version.
type SnapshotProvider struct {
	store     *Store
	machineID string
}

func NewSnapshotProvider(store *Store, machineID string) *SnapshotProvider {
	return &SnapshotProvider{store: store, machineID: machineID}
}

// Snapshot reads the revision and the sensor bindings in one transaction so
// a concurrent seed can't produce a mix of two revisions.
func (p *SnapshotProvider) Snapshot(ctx context.Context) (*brewing.Snapshot, error) {
	tx, err := p.store.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning snapshot read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rev, err := queryRevision(ctx, tx)
	if err != nil {
		return nil, err
	}
	ingredients, err := queryIngredients(ctx, tx)
	if err != nil {
		return nil, err
	}
	recipes, err := queryRecipes(ctx, tx)
	if err != nil {
		return nil, err
	}

	snap := &brewing.Snapshot{
		MachineID:   p.machineID,
		Version:     rev,
		Ingredients: make([]brewing.IngredientSensor, 0, len(ingredients)),
		Recipes:     make([]brewing.RecipeSensor, 0, len(recipes)),
	}
	for _, ing := range ingredients {
		snap.Ingredients = append(snap.Ingredients, brewing.IngredientSensor{IngredientID: ing.ID, SensorID: ing.SensorID})
	}
	for _, r := range recipes {
		snap.Recipes = append(snap.Recipes, brewing.RecipeSensor{RecipeID: r.ID, SensorID: r.SensorID})
	}
	return snap, nil
}
