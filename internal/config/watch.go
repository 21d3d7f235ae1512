package config

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var errNoSnapshot = errors.New("machine configuration not loaded")

// WatchedSnapshot serves the machine section of the config file and swaps in
// a new version whenever the file changes. An invalid edit keeps the last
// good snapshot.
type WatchedSnapshot struct {
	current atomic.Pointer[brewing.Snapshot]
	version atomic.Uint64
	logger  observability.Logger
}

func NewWatchedSnapshot(machine MachineConfig, logger observability.Logger) (*WatchedSnapshot, error) {
	w := &WatchedSnapshot{logger: logger}
	if err := w.Update(machine); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WatchedSnapshot) Snapshot(context.Context) (*brewing.Snapshot, error) {
	s := w.current.Load()
	if s == nil {
		return nil, errNoSnapshot
	}
	return s, nil
}

// Update publishes machine as the next snapshot version.
func (w *WatchedSnapshot) Update(machine MachineConfig) error {
	if err := machine.Validate(); err != nil {
		return err
	}
	s := machine.Snapshot(w.version.Add(1))
	w.current.Store(s)
	w.logger.Info("🔍 Machine configuration loaded",
		zap.String("machine_id", s.MachineID),
		zap.Uint64("version", s.Version),
		zap.Int("ingredients", len(s.Ingredients)),
		zap.Int("recipes", len(s.Recipes)),
	)
	return nil
}

// Watch reloads the machine section on every change of v's config file.
// It does nothing when v has no file.
func (w *WatchedSnapshot) Watch(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		var machine MachineConfig
		if err := v.UnmarshalKey("machine", &machine); err != nil {
			w.logger.Error("❌ Failed to decode machine configuration", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := w.Update(machine); err != nil {
			w.logger.Error("❌ Rejected machine configuration change", zap.String("file", e.Name), zap.Error(err))
		}
	})
	v.WatchConfig()
}
