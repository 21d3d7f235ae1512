package brewing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Event kinds as carried in the event-type header.
const (
	KindCoffeeWasOrdered        = "CoffeeWasOrdered"
	KindCoffeeStartedBrewing    = "CoffeeStartedBrewing"
	KindCoffeeIsReadyToBeGotten = "CoffeeIsReadyToBeGotten"
	KindOrderHasBeenCompleted   = "OrderHasBeenCompleted"
	KindOrderHasBeenFailed      = "OrderHasBeenFailed"
	KindCoffeeIsAwaitingRestock = "CoffeeIsAwaitingRestock"
)

// ProducedKinds lists the kinds the orchestrator always publishes.
var ProducedKinds = []string{
	KindCoffeeStartedBrewing,
	KindCoffeeIsReadyToBeGotten,
	KindOrderHasBeenCompleted,
	KindOrderHasBeenFailed,
}

type OrderedIngredient struct {
	IngredientID string `json:"ingredient_id"`
	Amount       int    `json:"amount"`
}

// CoffeeWasOrdered is the order-placed event that starts a fulfillment run.
type CoffeeWasOrdered struct {
	OrderID     string              `json:"order_id"`
	RecipeID    string              `json:"recipe_id"`
	Ingredients []OrderedIngredient `json:"ingredients"`
}

func (e CoffeeWasOrdered) EventKind() string { return KindCoffeeWasOrdered }
func (e CoffeeWasOrdered) EventKey() string  { return e.OrderID }

func (e CoffeeWasOrdered) Validate() error {
	var errs []error
	if e.OrderID == "" {
		errs = append(errs, errors.New("order_id is required"))
	}
	if e.RecipeID == "" {
		errs = append(errs, errors.New("recipe_id is required"))
	}
	for _, ing := range e.Ingredients {
		if ing.IngredientID == "" {
			errs = append(errs, errors.New("ingredient_id is required"))
		}
		if ing.Amount < 0 {
			errs = append(errs, fmt.Errorf("ingredient %s: amount %d is negative", ing.IngredientID, ing.Amount))
		}
	}
	return errors.Join(errs...)
}

type CoffeeStartedBrewing struct {
	OrderID   string `json:"order_id"`
	MachineID string `json:"machine_id"`
}

func (e CoffeeStartedBrewing) EventKind() string { return KindCoffeeStartedBrewing }
func (e CoffeeStartedBrewing) EventKey() string  { return e.OrderID }

// ExecutedIngredient is the amount of one ingredient before and after brewing.
type ExecutedIngredient struct {
	IngredientID string `json:"ingredient_id"`
	AmountBefore int    `json:"amount_before"`
	AmountAfter  int    `json:"amount_after"`
}

type CoffeeIsReadyToBeGotten struct {
	MachineID   string               `json:"machine_id"`
	OrderID     string               `json:"order_id"`
	Ingredients []ExecutedIngredient `json:"ingredients"`
}

func (e CoffeeIsReadyToBeGotten) EventKind() string { return KindCoffeeIsReadyToBeGotten }
func (e CoffeeIsReadyToBeGotten) EventKey() string  { return e.OrderID }

type OrderHasBeenCompleted struct {
	OrderID string `json:"order_id"`
}

func (e OrderHasBeenCompleted) EventKind() string { return KindOrderHasBeenCompleted }
func (e OrderHasBeenCompleted) EventKey() string  { return e.OrderID }

type OrderHasBeenFailed struct {
	OrderID   string    `json:"order_id"`
	ErrorCode uuid.UUID `json:"error_code"`
}

func (e OrderHasBeenFailed) EventKind() string { return KindOrderHasBeenFailed }
func (e OrderHasBeenFailed) EventKey() string  { return e.OrderID }

// MissingIngredient describes one shortage of an infeasible order.
type MissingIngredient struct {
	IngredientID string `json:"ingredient_id"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
}

type CoffeeIsAwaitingRestock struct {
	OrderID     string              `json:"order_id"`
	MachineID   string              `json:"machine_id"`
	Ingredients []MissingIngredient `json:"ingredients"`
}

func (e CoffeeIsAwaitingRestock) EventKind() string { return KindCoffeeIsAwaitingRestock }
func (e CoffeeIsAwaitingRestock) EventKey() string  { return e.OrderID }
