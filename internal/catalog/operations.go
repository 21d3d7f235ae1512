package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnknownSensor indicates no ingredient or recipe is bound to a sensor.
var ErrUnknownSensor = errors.New("unknown sensor")

// ErrInsufficientStock indicates cooking would take more than is left.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrIngredientNotFound indicates an ingredient id the catalog doesn't hold.
var ErrIngredientNotFound = errors.New("ingredient not found")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Ingredient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SensorID string `json:"sensor_id"`
	Amount   int    `json:"amount"`
}

type Recipe struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	SensorID    string             `json:"sensor_id"`
	Ingredients []RecipeIngredient `json:"ingredients"`
}

type RecipeIngredient struct {
	IngredientID string `json:"ingredient_id"`
	Amount       int    `json:"amount"`
}

// Usage is an amount of one ingredient taken by a cooking run.
type Usage struct {
	IngredientID string
	Amount       int
}

// Revision counts changes to ingredients and recipes. Amount changes made by
// cooking don't count.
func (s *Store) Revision(ctx context.Context) (uint64, error) {
	return queryRevision(ctx, s.DB)
}

func (s *Store) Ingredients(ctx context.Context) ([]Ingredient, error) {
	return queryIngredients(ctx, s.DB)
}

// Recipes lists recipes with their ingredients in insertion order.
func (s *Store) Recipes(ctx context.Context) ([]Recipe, error) {
	return queryRecipes(ctx, s.DB)
}

func queryRevision(ctx context.Context, q querier) (uint64, error) {
	var rev uint64
	err := q.QueryRowContext(ctx, `SELECT revision FROM catalog_meta WHERE id = 1`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("querying revision: %w", err)
	}
	return rev, nil
}

func queryIngredients(ctx context.Context, q querier) ([]Ingredient, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, sensor_id, amount
		FROM ingredients
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ingredients: %w", err)
	}
	defer rows.Close()

	var ingredients []Ingredient
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.SensorID, &ing.Amount); err != nil {
			return nil, fmt.Errorf("scanning ingredient: %w", err)
		}
		ingredients = append(ingredients, ing)
	}
	return ingredients, rows.Err()
}

func queryRecipes(ctx context.Context, q querier) ([]Recipe, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.name, r.sensor_id, ri.ingredient_id, ri.amount
		FROM recipes r
		LEFT JOIN recipe_ingredients ri ON ri.recipe_id = r.id
		ORDER BY r.rowid, ri.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var (
			r            Recipe
			ingredientID sql.NullString
			amount       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.SensorID, &ingredientID, &amount); err != nil {
			return nil, fmt.Errorf("scanning recipe: %w", err)
		}
		if n := len(recipes); n == 0 || recipes[n-1].ID != r.ID {
			recipes = append(recipes, r)
		}
		if ingredientID.Valid {
			last := &recipes[len(recipes)-1]
			last.Ingredients = append(last.Ingredients, RecipeIngredient{
				IngredientID: ingredientID.String,
				Amount:       int(amount.Int64),
			})
		}
	}
	return recipes, rows.Err()
}

// AmountBySensor returns the stock of the ingredient bound to sensorID.
func (s *Store) AmountBySensor(ctx context.Context, sensorID string) (int, error) {
	var amount int
	err := s.QueryRowContext(ctx, `SELECT amount FROM ingredients WHERE sensor_id = ?`, sensorID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}
	if err != nil {
		return 0, fmt.Errorf("querying amount: %w", err)
	}
	return amount, nil
}

// UpsertIngredient creates or replaces an ingredient, amount included.
func (s *Store) UpsertIngredient(ctx context.Context, ing Ingredient) error {
	return s.withRevision(ctx, func(tx *sql.Tx) error {
		return upsertIngredient(ctx, tx, ing)
	})
}

// UpsertRecipe creates or replaces a recipe and its ingredient list.
func (s *Store) UpsertRecipe(ctx context.Context, r Recipe) error {
	return s.withRevision(ctx, func(tx *sql.Tx) error {
		return upsertRecipe(ctx, tx, r)
	})
}

// Cook deducts every usage in one transaction for the recipe bound to
// recipeSensorID. Nothing is deducted when any usage can't be served.
func (s *Store) Cook(ctx context.Context, recipeSensorID string, usages []Usage) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var recipeID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM recipes WHERE sensor_id = ?`, recipeSensorID).Scan(&recipeID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, recipeSensorID)
	}
	if err != nil {
		return fmt.Errorf("querying recipe: %w", err)
	}

	for _, u := range usages {
		result, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET amount = amount - ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND amount >= ?
		`, u.Amount, u.IngredientID, u.Amount)
		if err != nil {
			return fmt.Errorf("deducting %s: %w", u.IngredientID, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 1 {
			continue
		}

		var exists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ingredients WHERE id = ?)`, u.IngredientID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking ingredient: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrIngredientNotFound, u.IngredientID)
		}
		return fmt.Errorf("%w: %s for recipe %s", ErrInsufficientStock, u.IngredientID, recipeID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) withRevision(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE catalog_meta SET revision = revision + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bumping revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func upsertIngredient(ctx context.Context, tx *sql.Tx, ing Ingredient) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, sensor_id, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sensor_id = excluded.sensor_id,
			amount = excluded.amount,
			updated_at = CURRENT_TIMESTAMP
	`, ing.ID, ing.Name, ing.SensorID, ing.Amount)
	if err != nil {
		return fmt.Errorf("upserting ingredient %s: %w", ing.ID, err)
	}
	return nil
}

func upsertRecipe(ctx context.Context, tx *sql.Tx, r Recipe) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (id, name, sensor_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sensor_id = excluded.sensor_id,
			updated_at = CURRENT_TIMESTAMP
	`, r.ID, r.Name, r.SensorID)
	if err != nil {
		return fmt.Errorf("upserting recipe %s: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clearing recipe %s ingredients: %w", r.ID, err)
	}
	for _, ri := range r.Ingredients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount)
			VALUES (?, ?, ?)
		`, r.ID, ri.IngredientID, ri.Amount)
		if err != nil {
			return fmt.Errorf("adding %s to recipe %s: %w", ri.IngredientID, r.ID, err)
		}
	}
	return nil
}
