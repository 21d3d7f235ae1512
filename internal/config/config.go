package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/messaging"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/kafka"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"github.com/spf13/viper"
)

const (
	ServiceName    = "coffee-machine"
	ServiceVersion = "0.1.0"
	EnvPrefix      = "COFFEE"
)

const (
	OrdersTopic  = "coffee-machine-orders"
	EventsTopic  = "coffee-machine-events"
	BatchTimeout = 10 * time.Millisecond
)

const (
	CatalogDriverConfig = "config"
	CatalogDriverSQLite = "sqlite"
)

type Config struct {
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Otel        OtelConfig        `mapstructure:"otel"`
	Log         LogConfig         `mapstructure:"log"`
	Machine     MachineConfig     `mapstructure:"machine"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Sensors     SensorsConfig     `mapstructure:"sensors"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

type KafkaConfig struct {
	Brokers         []string       `mapstructure:"brokers"`
	GroupID         string         `mapstructure:"group_id"`
	ClientID        string         `mapstructure:"client_id"`
	Audience        string         `mapstructure:"audience"`
	Topics          []TopicBinding `mapstructure:"topics"`
	PublishTimeout  time.Duration  `mapstructure:"publish_timeout"`
	RedeliveryDelay time.Duration  `mapstructure:"redelivery_delay"`
	MaxWait         time.Duration  `mapstructure:"max_wait"`
}

type TopicBinding struct {
	Name   string   `mapstructure:"name"`
	Events []string `mapstructure:"events"`
}

type OtelConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AuthHeader string `mapstructure:"auth_header"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MachineConfig is the hot-reloadable machine section.
type MachineConfig struct {
	ID          string             `mapstructure:"id"`
	Ingredients []IngredientSensor `mapstructure:"ingredients"`
	Recipes     []RecipeSensor     `mapstructure:"recipes"`
}

type IngredientSensor struct {
	IngredientID string `mapstructure:"ingredient_id"`
	SensorID     string `mapstructure:"sensor_id"`
}

type RecipeSensor struct {
	RecipeID string `mapstructure:"recipe_id"`
	SensorID string `mapstructure:"sensor_id"`
}

type FulfillmentConfig struct {
	PickupTimeout         time.Duration `mapstructure:"pickup_timeout"`
	PickupPollInterval    time.Duration `mapstructure:"pickup_poll_interval"`
	PickupTimeoutPolicy   string        `mapstructure:"pickup_timeout_policy"`
	MaxRewaits            int           `mapstructure:"max_rewaits"`
	NotifyAwaitingRestock bool          `mapstructure:"notify_awaiting_restock"`
}

type CatalogConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type SensorsConfig struct {
	PresenceDwell time.Duration `mapstructure:"presence_dwell"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a viper instance with defaults and environment bindings.
// An explicit file must exist; without one the usual locations are searched
// and a missing file is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables the service was deployed with before the config file existed.
	_ = v.BindEnv("kafka.brokers", EnvPrefix+"_KAFKA_BROKERS", "KAFKA_BROKER")
	_ = v.BindEnv("otel.endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_ENDPOINT")
	_ = v.BindEnv("otel.auth_header", EnvPrefix+"_OTEL_AUTH_HEADER", "OTEL_AUTH_HEADER")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName("coffeemachine")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/coffeemachine")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "coffee-machine-group")
	v.SetDefault("kafka.client_id", ServiceName)
	v.SetDefault("kafka.audience", ServiceName)
	v.SetDefault("kafka.topics", []map[string]any{
		{"name": OrdersTopic, "events": []string{brewing.KindCoffeeWasOrdered}},
		{"name": EventsTopic, "events": []string{
			brewing.KindCoffeeStartedBrewing,
			brewing.KindCoffeeIsReadyToBeGotten,
			brewing.KindOrderHasBeenCompleted,
			brewing.KindOrderHasBeenFailed,
			brewing.KindCoffeeIsAwaitingRestock,
		}},
	})
	v.SetDefault("kafka.publish_timeout", 10*time.Second)
	v.SetDefault("kafka.redelivery_delay", 5*time.Second)
	v.SetDefault("kafka.max_wait", time.Second)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.auth_header", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("machine.id", "")

	v.SetDefault("fulfillment.pickup_timeout", brewing.DefaultPickupTimeout)
	v.SetDefault("fulfillment.pickup_poll_interval", brewing.DefaultPickupPollInterval)
	v.SetDefault("fulfillment.pickup_timeout_policy", string(brewing.PickupPolicyComplete))
	v.SetDefault("fulfillment.max_rewaits", 1)
	v.SetDefault("fulfillment.notify_awaiting_restock", false)

	v.SetDefault("catalog.driver", CatalogDriverConfig)
	v.SetDefault("catalog.path", "coffeemachine.db")

	v.SetDefault("sensors.presence_dwell", 3*time.Second)

	v.SetDefault("http.addr", "")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required"))
	}
	if _, err := messaging.NewTopics(c.TopicBindings()); err != nil {
		errs = append(errs, fmt.Errorf("kafka.topics: %w", err))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := brewing.ParsePickupTimeoutPolicy(c.Fulfillment.PickupTimeoutPolicy); err != nil {
		errs = append(errs, fmt.Errorf("fulfillment.pickup_timeout_policy: %w", err))
	}
	if c.Kafka.RedeliveryDelay < 0 {
		errs = append(errs, errors.New("kafka.redelivery_delay must not be negative"))
	}
	if c.Fulfillment.MaxRewaits < 0 {
		errs = append(errs, errors.New("fulfillment.max_rewaits must not be negative"))
	}

	// The simulated sensors keep stock in the catalog whatever the driver.
	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}
	switch c.Catalog.Driver {
	case CatalogDriverConfig:
		if err := c.Machine.Validate(); err != nil {
			errs = append(errs, err)
		}
	case CatalogDriverSQLite:
		if c.Machine.ID == "" {
			errs = append(errs, errors.New("machine.id is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.driver %q is not one of %s, %s",
			c.Catalog.Driver, CatalogDriverConfig, CatalogDriverSQLite))
	}

	return errors.Join(errs...)
}

// Validate checks the machine section on its own, so a reload can be
// rejected without touching the rest of the configuration.
func (m MachineConfig) Validate() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("machine.id is required"))
	}
	for i, ing := range m.Ingredients {
		if ing.IngredientID == "" || ing.SensorID == "" {
			errs = append(errs, fmt.Errorf("machine.ingredients[%d]: ingredient_id and sensor_id are required", i))
		}
	}
	seen := make(map[string]bool, len(m.Recipes))
	for i, r := range m.Recipes {
		if r.RecipeID == "" || r.SensorID == "" {
			errs = append(errs, fmt.Errorf("machine.recipes[%d]: recipe_id and sensor_id are required", i))
		}
		if seen[r.RecipeID] {
			errs = append(errs, fmt.Errorf("machine.recipes[%d]: recipe %s listed twice", i, r.RecipeID))
		}
		seen[r.RecipeID] = true
	}
	return errors.Join(errs...)
}

// Snapshot converts the machine section into the value one run works against.
func (m MachineConfig) Snapshot(version uint64) *brewing.Snapshot {
	s := &brewing.Snapshot{
		MachineID:   m.ID,
		Version:     version,
		Ingredients: make([]brewing.IngredientSensor, 0, len(m.Ingredients)),
		Recipes:     make([]brewing.RecipeSensor, 0, len(m.Recipes)),
	}
	for _, ing := range m.Ingredients {
		s.Ingredients = append(s.Ingredients, brewing.IngredientSensor{IngredientID: ing.IngredientID, SensorID: ing.SensorID})
	}
	for _, r := range m.Recipes {
		s.Recipes = append(s.Recipes, brewing.RecipeSensor{RecipeID: r.RecipeID, SensorID: r.SensorID})
	}
	return s
}

func (c *Config) TopicBindings() []messaging.TopicBinding {
	bindings := make([]messaging.TopicBinding, 0, len(c.Kafka.Topics))
	for _, t := range c.Kafka.Topics {
		bindings = append(bindings, messaging.TopicBinding{Name: t.Name, Events: t.Events})
	}
	return bindings
}

func (c *Config) Observability() observability.Settings {
	return observability.Settings{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Endpoint:       c.Otel.Endpoint,
		AuthHeader:     c.Otel.AuthHeader,
	}
}

func (c *Config) ReaderConfig() kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers: c.Kafka.Brokers,
		GroupID: c.Kafka.GroupID,
		MaxWait: c.Kafka.MaxWait,
	}
}

func (c *Config) WriterConfig() kafka.WriterConfig {
	return kafka.WriterConfig{
		Brokers:      c.Kafka.Brokers,
		ClientID:     c.Kafka.ClientID,
		BatchTimeout: BatchTimeout,
		WriteTimeout: c.Kafka.PublishTimeout,
	}
}

// FulfillmentOptions assumes Validate has accepted the policy.
func (c *Config) FulfillmentOptions() brewing.Options {
	policy, _ := brewing.ParsePickupTimeoutPolicy(c.Fulfillment.PickupTimeoutPolicy)
	return brewing.Options{
		PickupTimeout:         c.Fulfillment.PickupTimeout,
		PickupPollInterval:    c.Fulfillment.PickupPollInterval,
		TimeoutPolicy:         policy,
		MaxRewaits:            c.Fulfillment.MaxRewaits,
		NotifyAwaitingRestock: c.Fulfillment.NotifyAwaitingRestock,
	}
}
