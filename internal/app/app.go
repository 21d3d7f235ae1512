package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context, v *viper.Viper) (*Application, error) {
	// Set up signal handling
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	// Initialize container (expensive singletons)
	container, err := NewContainer(app.ctx, v)
	if err != nil {
		cancel() // Clean up context if initialization fails
		return nil, err
	}
	app.container = container

	app.container.Logger().Info("Application initialized successfully",
		zap.String("machine_id", container.Config().Machine.ID),
		zap.Int("consumer_loops", len(container.Loops())),
	)
	return app, nil
}

// Run starts one goroutine per consumer loop plus the optional status
// endpoint and blocks until all of them have stopped.
func (app *Application) Run() error {
	loops := app.container.Loops()
	server := app.container.Server()

	var wg sync.WaitGroup
	errCh := make(chan error, len(loops)+1)

	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Run(app.ctx); err != nil {
				errCh <- fmt.Errorf("consumer loop %s: %w", loop.Kind(), err)
			}
		}()
	}

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(app.ctx, app.container.Config().HTTP.Addr); err != nil {
				errCh <- fmt.Errorf("status endpoint: %w", err)
				app.cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	// Cancel context
	if app.cancel != nil {
		app.cancel()
	}

	// Shutdown container
	if app.container != nil {
		app.container.Shutdown(context.Background())
	}
}
