package brewing

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSnapshot              = errors.New("machine configuration unavailable")
	ErrIngredientCounting    = errors.New("can't count ingredients in the machine")
	ErrRecipeNotFound        = errors.New("recipe not found in the machine configuration")
	ErrCooking               = errors.New("cooking failed")
	ErrRecountAfterExecution = errors.New("failed while counting after execution")
	ErrPublish               = errors.New("publishing outcome event failed")
)

// NewErrorCode mints the token that ties failure log records to the
// OrderHasBeenFailed event sent downstream.
func NewErrorCode() uuid.UUID {
	return uuid.New()
}
