package brewing

import (
	"context"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/messaging"
)

// IngredientAmountSensor reads how much of an ingredient the machine holds.
type IngredientAmountSensor interface {
	Amount(ctx context.Context, sensorID string) (int, error)
}

// RecipeCookingSensor starts a cook cycle. Once called, the physical action
// may have begun even if an error is returned.
type RecipeCookingSensor interface {
	StartCooking(ctx context.Context, sensorID string, ingredients []OrderedIngredient) error
}

// PresenceSensor reports whether the finished beverage still sits in the
// machine.
type PresenceSensor interface {
	IsPresent(ctx context.Context) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}
