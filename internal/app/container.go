package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/api"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/catalog"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/config"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/messaging"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/kafka"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/sensors"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config            *config.Config
	level             zapcore.Level
	logger            *zap.Logger
	tracer            observability.Tracer
	store             *catalog.Store
	snapshots         brewing.SnapshotProvider
	producer          kafka.Producer
	loops             []*messaging.ConsumerLoop
	server            *api.Server
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer loads the configuration and wires every component. Any
// wiring gap is returned and the service doesn't start.
func NewContainer(ctx context.Context, v *viper.Viper) (*Container, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c := &Container{config: cfg}

	if err := c.setupLogger(); err != nil {
		return nil, err
	}

	tp := c.setupObservability(ctx)

	if err := c.setup(v, tp); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) setup(v *viper.Viper, tp trace.TracerProvider) error {
	if err := c.setupCatalog(v); err != nil {
		return err
	}

	topics, err := messaging.NewTopics(c.config.TopicBindings())
	if err != nil {
		return fmt.Errorf("topic bindings: %w", err)
	}

	publisher, err := c.setupPublisher(topics, tp)
	if err != nil {
		return err
	}

	simulator := sensors.NewSimulator(c.store, c.config.Sensors.PresenceDwell, c.logger)
	orchestrator := brewing.NewOrchestrator(
		c.snapshots,
		simulator,
		simulator,
		simulator,
		publisher,
		c.config.FulfillmentOptions(),
		c.logger,
		c.tracer,
	)

	registry := messaging.NewRegistry(topics)
	registry.Handle(brewing.KindCoffeeWasOrdered, orchestrator.Handler())

	bindings, err := registry.Bindings(brewing.KindCoffeeWasOrdered)
	if err != nil {
		return fmt.Errorf("consumer bindings: %w", err)
	}

	factory := kafka.NewConsumerFactory(c.config.ReaderConfig())
	for _, b := range bindings {
		c.loops = append(c.loops, messaging.NewConsumerLoop(b, factory, c.config.Kafka.RedeliveryDelay, c.logger, c.tracer))
	}

	if c.config.HTTP.Addr != "" {
		var recipes api.Recipes
		if c.config.Catalog.Driver == config.CatalogDriverSQLite {
			recipes = c.store
		}
		c.server = api.NewServer(c.snapshots, recipes, c.LoopStatus, c.logger)
	}
	return nil
}

// setupLogger starts with a console logger at the configured level
func (c *Container) setupLogger() error {
	level, err := observability.ParseLevel(c.config.Log.Level)
	if err != nil {
		return err
	}
	c.level = level
	c.logger = observability.NewConsoleLogger(config.ServiceName, level)
	return nil
}

// setupObservability configures OpenTelemetry logging and tracing and
// returns the provider the Kafka writer reports to.
func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	settings := c.config.Observability()
	c.tracer = otel.Tracer(config.ServiceName)

	if !settings.Enabled() {
		c.logger.Info("OpenTelemetry export disabled, no endpoint configured")
		return otel.GetTracerProvider()
	}

	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, settings)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	sdkProvider, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, settings)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown

	c.logger = observability.NewBridgedLogger(config.ServiceName, c.level)
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge")

	c.tracer = otel.Tracer(config.ServiceName)
	if sdkProvider == nil {
		return otel.GetTracerProvider()
	}
	return sdkProvider
}

// setupCatalog opens the stock database the sensors work on and picks the
// source of machine snapshots.
func (c *Container) setupCatalog(v *viper.Viper) error {
	store, err := catalog.Open(c.config.Catalog.Path)
	if err != nil {
		return err
	}
	c.store = store

	if err := store.Migrate(); err != nil {
		return err
	}

	if c.config.Catalog.Driver == config.CatalogDriverSQLite {
		c.snapshots = catalog.NewSnapshotProvider(store, c.config.Machine.ID)
		c.logger.Info("🔍 Machine configuration served from the catalog", zap.String("path", c.config.Catalog.Path))
		return nil
	}

	watched, err := config.NewWatchedSnapshot(c.config.Machine, c.logger)
	if err != nil {
		return fmt.Errorf("machine configuration: %w", err)
	}
	watched.Watch(v)
	c.snapshots = watched
	return nil
}

func (c *Container) setupPublisher(topics messaging.Topics, tp trace.TracerProvider) (*messaging.Publisher, error) {
	producer, err := kafka.NewProducer(c.config.WriterConfig(), tp)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	c.producer = producer

	publisher := messaging.NewPublisher(producer, topics, c.config.Kafka.Audience, c.config.Kafka.PublishTimeout, c.logger)

	produced := brewing.ProducedKinds
	if c.config.Fulfillment.NotifyAwaitingRestock {
		produced = append(append([]string(nil), produced...), brewing.KindCoffeeIsAwaitingRestock)
	}
	if err := publisher.Validate(produced...); err != nil {
		return nil, err
	}
	return publisher, nil
}

// LoopStatus reports every consumer loop for the status endpoint.
func (c *Container) LoopStatus() []api.LoopStatus {
	status := make([]api.LoopStatus, 0, len(c.loops))
	for _, l := range c.loops {
		status = append(status, api.LoopStatus{EventType: l.Kind(), State: l.State().String()})
	}
	return status
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	var errs []error
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("message producer: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog: %w", err))
		}
	}
	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("OTel tracing: %w", err))
		}
	}
	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("OTel logging: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Failed to shut down cleanly", zap.Error(err))
	}

	c.logger.Info("Infrastructure shutdown complete")

	// Can't log this error since logger might be closed
	_ = c.logger.Sync()
}

// Getters for accessing infrastructure components
func (c *Container) Logger() observability.Logger     { return c.logger }
func (c *Container) Config() *config.Config           { return c.config }
func (c *Container) Loops() []*messaging.ConsumerLoop { return c.loops }
func (c *Container) Server() *api.Server              { return c.server }
