package brewing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/messaging"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultPickupTimeout      = 5 * time.Minute
	DefaultPickupPollInterval = time.Second
)

type Options struct {
	PickupTimeout         time.Duration
	PickupPollInterval    time.Duration
	TimeoutPolicy         PickupTimeoutPolicy
	MaxRewaits            int
	NotifyAwaitingRestock bool
}

func (o Options) withDefaults() Options {
	if o.PickupTimeout <= 0 {
		o.PickupTimeout = DefaultPickupTimeout
	}
	if o.PickupPollInterval <= 0 {
		o.PickupPollInterval = DefaultPickupPollInterval
	}
	if o.TimeoutPolicy == "" {
		o.TimeoutPolicy = PickupPolicyComplete
	}
	if o.MaxRewaits < 0 {
		o.MaxRewaits = 0
	}
	return o
}

// Orchestrator fulfills one order per Execute call.
type Orchestrator struct {
	snapshots    SnapshotProvider
	ingredients  IngredientAmountSensor
	recipes      RecipeCookingSensor
	presence     PresenceSensor
	publisher    Publisher
	opts         Options
	logger       observability.Logger
	tracer       observability.Tracer
	now          func() time.Time
	newErrorCode func() uuid.UUID
}

func NewOrchestrator(
	snapshots SnapshotProvider,
	ingredients IngredientAmountSensor,
	recipes RecipeCookingSensor,
	presence PresenceSensor,
	publisher Publisher,
	opts Options,
	logger observability.Logger,
	tracer observability.Tracer,
) *Orchestrator {
	return &Orchestrator{
		snapshots:    snapshots,
		ingredients:  ingredients,
		recipes:      recipes,
		presence:     presence,
		publisher:    publisher,
		opts:         opts.withDefaults(),
		logger:       logger,
		tracer:       tracer,
		now:          time.Now,
		newErrorCode: NewErrorCode,
	}
}

// Handler exposes Execute to the consumer loop.
func (o *Orchestrator) Handler() messaging.Handler {
	return messaging.JSONHandler(o.Execute)
}

// Execute runs the order and returns the commit directive for the message
// that carried it. A nil error is success. commit=false asks for
// redelivery; it is only returned while no physical action has started.
func (o *Orchestrator) Execute(ctx context.Context, order CoffeeWasOrdered) (bool, error) {
	ctx, span := o.tracer.Start(ctx, "order_fulfillment")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("recipe.id", order.RecipeID),
		attribute.Int("order.ingredients", len(order.Ingredients)),
	)

	r := newRun(order.OrderID)
	commit, err := o.execute(ctx, r, order)

	span.SetAttributes(
		attribute.String("order.final_state", r.Current()),
		attribute.Bool("order.commit", commit),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "order handled")
	}
	return commit, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run, order CoffeeWasOrdered) (bool, error) {
	// Sensor reads, cooking and publishing finish even during shutdown; only
	// the pickup wait gives up on cancellation.
	work := context.WithoutCancel(ctx)

	snapshot, err := o.snapshots.Snapshot(work)
	if err != nil {
		code := o.newErrorCode()
		logger := o.logger.With(zap.String("order_id", order.OrderID))
		logger.Error("❌ Machine configuration can't be read",
			zap.Error(err), zap.Stringer("error_code", code))
		return o.fail(work, r, order, code, fmt.Errorf("%w: %w", ErrSnapshot, err), logger)
	}

	logger := o.logger.With(
		zap.String("machine_id", snapshot.MachineID),
		zap.String("order_id", order.OrderID),
		zap.Uint64("configuration_version", snapshot.Version),
	)
	logger.Info("🔍 Checking ingredients for order", zap.String("recipe_id", order.RecipeID))

	before, failures := o.count(work, snapshot)
	if len(failures) > 0 {
		code := o.newErrorCode()
		for _, f := range failures {
			logger.Error("❌ Error during counting an ingredient",
				zap.String("ingredient_id", f.IngredientID),
				zap.String("sensor_id", f.SensorID),
				zap.Error(f.err),
				zap.Stringer("error_code", code),
			)
		}
		return o.fail(work, r, order, code, fmt.Errorf("%w: error code %s", ErrIngredientCounting, code), logger)
	}
	o.advance(work, r, RunEventCounted, logger)

	shortages, unknown := checkFeasibility(order.Ingredients, before)
	if len(unknown) > 0 {
		code := o.newErrorCode()
		for _, id := range unknown {
			logger.Error("❌ An ingredient can't be found in the machine",
				zap.String("ingredient_id", id),
				zap.Stringer("error_code", code),
			)
		}
	}
	if len(shortages) > 0 {
		o.advance(work, r, RunEventDefer, logger)
		logger.Info("Order can't be executed yet, leaving it for redelivery",
			zap.Any("shortages", shortages))
		if o.opts.NotifyAwaitingRestock {
			event := CoffeeIsAwaitingRestock{OrderID: order.OrderID, MachineID: snapshot.MachineID, Ingredients: shortages}
			if err := o.publisher.Publish(work, event); err != nil {
				return false, fmt.Errorf("%w: %w", ErrPublish, err)
			}
		}
		return false, nil
	}
	o.advance(work, r, RunEventFeasible, logger)

	sensorID, ok := snapshot.RecipeSensor(order.RecipeID)
	if !ok {
		code := o.newErrorCode()
		logger.Error("❌ A recipe can't be found in the machine configuration",
			zap.String("recipe_id", order.RecipeID),
			zap.Stringer("error_code", code),
		)
		return o.fail(work, r, order, code, fmt.Errorf("%w: %s", ErrRecipeNotFound, order.RecipeID), logger)
	}

	if err := o.publisher.Publish(work, CoffeeStartedBrewing{OrderID: order.OrderID, MachineID: snapshot.MachineID}); err != nil {
		return r.mustCommit(), fmt.Errorf("%w: %w", ErrPublish, err)
	}
	o.advance(work, r, RunEventResolved, logger)

	if err := o.cook(work, sensorID, order); err != nil {
		code := o.newErrorCode()
		logger.Error("❌ Failed during cooking the recipe",
			zap.String("recipe_id", order.RecipeID),
			zap.String("sensor_id", sensorID),
			zap.Error(err),
			zap.Stringer("error_code", code),
		)
		return o.fail(work, r, order, code, fmt.Errorf("%w: %w", ErrCooking, err), logger)
	}
	o.advance(work, r, RunEventCooked, logger)

	after, failures := o.count(work, snapshot)
	if len(failures) > 0 {
		code := o.newErrorCode()
		for _, f := range failures {
			logger.Error("❌ Error during counting an ingredient after execution",
				zap.String("ingredient_id", f.IngredientID),
				zap.String("sensor_id", f.SensorID),
				zap.Error(f.err),
				zap.Stringer("error_code", code),
			)
		}
		logger.Error("❌ Failed while counting the ingredients after execution",
			zap.Int("failed_sensors", len(failures)),
			zap.Stringer("error_code", code),
		)
		return o.fail(work, r, order, code, fmt.Errorf("%w: error code %s", ErrRecountAfterExecution, code), logger)
	}
	o.advance(work, r, RunEventRecounted, logger)

	deltas, unpaired := pairReadings(before, after)
	for _, u := range unpaired {
		logger.Error("❌ An ingredient count didn't construct a pair",
			zap.String("ingredient_id", u.IngredientID),
			zap.Int("readings", u.Readings),
		)
	}
	ready := CoffeeIsReadyToBeGotten{MachineID: snapshot.MachineID, OrderID: order.OrderID, Ingredients: deltas}
	if err := o.publisher.Publish(work, ready); err != nil {
		o.advance(work, r, RunEventFail, logger)
		return r.mustCommit(), fmt.Errorf("%w: %w", ErrPublish, err)
	}
	o.advance(work, r, RunEventAnnounced, logger)

	result := o.waitForPickup(ctx, logger)
	logger.Info("Pickup wait finished", zap.Stringer("result", result))

	if err := o.publisher.Publish(work, OrderHasBeenCompleted{OrderID: order.OrderID}); err != nil {
		o.advance(work, r, RunEventFail, logger)
		return r.mustCommit(), fmt.Errorf("%w: %w", ErrPublish, err)
	}
	o.advance(work, r, RunEventComplete, logger)

	logger.Info("✅ Order completed")
	return r.mustCommit(), nil
}

func (o *Orchestrator) count(ctx context.Context, snapshot *Snapshot) ([]IngredientReading, []countFailure) {
	ctx, span := o.tracer.Start(ctx, "ingredients_count")
	defer span.End()

	readings, failures := countIngredients(ctx, o.ingredients, snapshot.Ingredients, o.now)
	span.SetAttributes(
		attribute.Int("ingredients.sensors", len(snapshot.Ingredients)),
		attribute.Int("ingredients.failed", len(failures)),
	)
	if len(failures) > 0 {
		span.SetStatus(codes.Error, "ingredient sensor read failed")
	}
	return readings, failures
}

func (o *Orchestrator) cook(ctx context.Context, sensorID string, order CoffeeWasOrdered) error {
	ctx, span := o.tracer.Start(ctx, "recipe_cooking")
	defer span.End()

	span.SetAttributes(
		attribute.String("recipe.id", order.RecipeID),
		attribute.String("recipe.sensor_id", sensorID),
	)
	if err := o.recipes.StartCooking(ctx, sensorID, order.Ingredients); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// fail publishes OrderHasBeenFailed carrying code and ends the run.
func (o *Orchestrator) fail(ctx context.Context, r *run, order CoffeeWasOrdered, code uuid.UUID, cause error, logger observability.Logger) (bool, error) {
	o.advance(ctx, r, RunEventFail, logger)

	if err := o.publisher.Publish(ctx, OrderHasBeenFailed{OrderID: order.OrderID, ErrorCode: code}); err != nil {
		cause = errors.Join(cause, fmt.Errorf("%w: %w", ErrPublish, err))
	}
	return r.mustCommit(), cause
}

func (o *Orchestrator) advance(ctx context.Context, r *run, event string, logger observability.Logger) {
	if err := r.advance(ctx, event); err != nil {
		logger.Error("Invalid order state transition",
			zap.String("event", event),
			zap.String("state", r.Current()),
			zap.Error(err),
		)
	}
}
