package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/brewing"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/catalog"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Recipes lists the catalog recipes. It is nil when the catalog isn't the
// configuration source.
type Recipes interface {
	Recipes(ctx context.Context) ([]catalog.Recipe, error)
}

// LoopStatus reports one consumer loop.
type LoopStatus struct {
	EventType string `json:"event_type"`
	State     string `json:"state"`
}

// StatusFunc returns the consumer loops' states.
type StatusFunc func() []LoopStatus

type Server struct {
	snapshots brewing.SnapshotProvider
	recipes   Recipes
	status    StatusFunc
	logger    observability.Logger
}

func NewServer(snapshots brewing.SnapshotProvider, recipes Recipes, status StatusFunc, logger observability.Logger) *Server {
	return &Server{
		snapshots: snapshots,
		recipes:   recipes,
		status:    status,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/machine", s.handleMachine)
	mux.HandleFunc("GET /v1/recipes", s.handleRecipes)
	return mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type healthz struct {
	Status string       `json:"status"`
	Loops  []LoopStatus `json:"loops"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	loops := s.status()
	for _, l := range loops {
		if l.State != "subscribed" {
			writeJSON(w, http.StatusServiceUnavailable, Envelope[healthz]{
				Result: healthz{Status: "degraded", Loops: loops},
				Error:  fmt.Sprintf("consumer for %s is %s", l.EventType, l.State),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, Success(healthz{Status: "ok", Loops: loops}))
}

func (s *Server) handleMachine(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("❌ Failed to read machine configuration", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Failure[*brewing.Snapshot]("machine configuration unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, Success(snap))
}

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	if s.recipes == nil {
		writeJSON(w, http.StatusNotFound, Failure[[]catalog.Recipe]("recipes are not served by this machine"))
		return
	}
	recipes, err := s.recipes.Recipes(r.Context())
	if err != nil {
		s.logger.Error("❌ Failed to list recipes", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Failure[[]catalog.Recipe]("recipes unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, Success(recipes))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
