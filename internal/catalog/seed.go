package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document accepted by `catalog seed`.
type Seed struct {
	Ingredients []SeedIngredient `yaml:"ingredients"`
	Recipes     []SeedRecipe     `yaml:"recipes"`
}

type SeedIngredient struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	SensorID string `yaml:"sensor_id"`
	Amount   int    `yaml:"amount"`
}

type SeedRecipe struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	SensorID    string                 `yaml:"sensor_id"`
	Ingredients []SeedRecipeIngredient `yaml:"ingredients"`
}

type SeedRecipeIngredient struct {
	IngredientID string `yaml:"ingredient_id"`
	Amount       int    `yaml:"amount"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document. Unknown fields are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) Validate() error {
	var errs []error
	known := make(map[string]bool, len(s.Ingredients))
	for i, ing := range s.Ingredients {
		if ing.ID == "" || ing.SensorID == "" {
			errs = append(errs, fmt.Errorf("ingredients[%d]: id and sensor_id are required", i))
		}
		if ing.Amount < 0 {
			errs = append(errs, fmt.Errorf("ingredients[%d]: amount must not be negative", i))
		}
		known[ing.ID] = true
	}
	for i, r := range s.Recipes {
		if r.ID == "" || r.SensorID == "" {
			errs = append(errs, fmt.Errorf("recipes[%d]: id and sensor_id are required", i))
		}
		for _, ri := range r.Ingredients {
			if !known[ri.IngredientID] {
				errs = append(errs, fmt.Errorf("recipes[%d]: ingredient %s is not seeded", i, ri.IngredientID))
			}
			if ri.Amount < 0 {
				errs = append(errs, fmt.Errorf("recipes[%d]: amount of %s must not be negative", i, ri.IngredientID))
			}
		}
	}
	return errors.Join(errs...)
}

// ApplySeed upserts everything in seed as one catalog revision.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed) error {
	return s.withRevision(ctx, func(tx *sql.Tx) error {
		for _, ing := range seed.Ingredients {
			if err := upsertIngredient(ctx, tx, Ingredient{
				ID:       ing.ID,
				Name:     ing.Name,
				SensorID: ing.SensorID,
				Amount:   ing.Amount,
			}); err != nil {
				return err
			}
		}
		for _, r := range seed.Recipes {
			recipe := Recipe{ID: r.ID, Name: r.Name, SensorID: r.SensorID}
			for _, ri := range r.Ingredients {
				recipe.Ingredients = append(recipe.Ingredients, RecipeIngredient(ri))
			}
			if err := upsertRecipe(ctx, tx, recipe); err != nil {
				return err
			}
		}
		return nil
	})
}
