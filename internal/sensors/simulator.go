package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/catalog"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"go.uber.org/zap"
)

// Stock is the catalog view the simulator reads and deducts from.
type Stock interface {
	AmountBySensor(ctx context.Context, sensorID string) (int, error)
	Cook(ctx context.Context, recipeSensorID string, usages []catalog.Usage) error
}

// Simulator stands in for the machine hardware. Ingredient amounts live in
// the catalog, cooking deducts the ordered amounts, and a cooked beverage
// sits in the dispenser for the dwell time before it counts as collected.
type Simulator struct {
	stock  Stock
	dwell  time.Duration
	logger observability.Logger
	now    func() time.Time

	mu            sync.Mutex
	occupiedUntil time.Time
}

func NewSimulator(stock Stock, dwell time.Duration, logger observability.Logger) *Simulator {
	return &Simulator{
		stock:  stock,
		dwell:  dwell,
		logger: logger,
		now:    time.Now,
	}
}

var (
	_ brewing.IngredientAmountSensor = (*Simulator)(nil)
	_ brewing.RecipeCookingSensor    = (*Simulator)(nil)
	_ brewing.PresenceSensor         = (*Simulator)(nil)
)

func (s *Simulator) Amount(ctx context.Context, sensorID string) (int, error) {
	return s.stock.AmountBySensor(ctx, sensorID)
}

func (s *Simulator) StartCooking(ctx context.Context, sensorID string, ingredients []brewing.OrderedIngredient) error {
	usages := make([]catalog.Usage, 0, len(ingredients))
	for _, ing := range ingredients {
		usages = append(usages, catalog.Usage{IngredientID: ing.IngredientID, Amount: ing.Amount})
	}
	if err := s.stock.Cook(ctx, sensorID, usages); err != nil {
		return fmt.Errorf("cooking on sensor %s: %w", sensorID, err)
	}

	s.mu.Lock()
	s.occupiedUntil = s.now().Add(s.dwell)
	s.mu.Unlock()

	s.logger.Info("☕ Beverage dispensed", zap.String("sensor_id", sensorID), zap.Duration("dwell", s.dwell))
	return nil
}

func (s *Simulator) IsPresent(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.occupiedUntil), nil
}
