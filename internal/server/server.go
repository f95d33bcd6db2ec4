package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"laundry-engine/internal/cache"
	"laundry-engine/internal/engine"
	"laundry-engine/internal/repository"
)

// Engine is the lifecycle surface the HTTP layer drives.
type Engine interface {
	CreateOrder(ctx context.Context, in engine.CreateOrderInput) (*repository.Order, error)
	Get(ctx context.Context, id string) (*repository.Order, error)
	Transition(ctx context.Context, id string, target repository.Status, reason string) (*repository.Order, error)
	Advance(ctx context.Context, id string) (*repository.Order, error)
	Reject(ctx context.Context, id, reason string) (*repository.Order, error)
	Cancel(ctx context.Context, id string) (*repository.Order, error)
	Reschedule(ctx context.Context, id string, newDate time.Time, newTime string) (*repository.Order, error)
	StartTimer(ctx context.Context, id string, stage repository.Status) (*repository.Order, error)
	StopTimer(ctx context.Context, id string) (*repository.Order, error)
	TimerStatus(ctx context.Context, id string) (engine.TimerSnapshot, error)
	ToggleAutoAdvance(ctx context.Context, id string, enabled bool) (*repository.Order, error)
	Archive(ctx context.Context, id string) (*repository.Order, error)
	Restore(ctx context.Context, id string, kind repository.Kind) (*repository.Order, error)
	Purge(ctx context.Context, id string, kind repository.Kind) error
	SoftDelete(ctx context.Context, id string) (*repository.Order, error)
	OrdersWithExpiredTimers(ctx context.Context) ([]*repository.Order, error)
}

type UserRepo interface {
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

type Server struct {
	engine   Engine
	capacity cache.CapacityReader
	userRepo UserRepo
	validate *validator.Validate
	logger   *zap.Logger
	server   *http.Server
}

func New(eng Engine, capacity cache.CapacityReader, userRepo UserRepo, logger *zap.Logger) *Server {
	return &Server{
		engine:   eng,
		capacity: capacity,
		userRepo: userRepo,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Server) Run(port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/").Subrouter()
	api.Use(s.basicAuthMiddleware)

	api.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/expired-timers", s.handleExpiredTimers).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleSoftDelete).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/transition", s.handleTransition).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/advance", s.handleAdvance).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/reschedule", s.handleReschedule).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/timer", s.handleStartTimer).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/timer", s.handleStopTimer).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/timer", s.handleTimerStatus).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/auto-advance", s.handleToggleAutoAdvance).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/archive", s.handleArchive).Methods(http.MethodPost)
	api.HandleFunc("/history/{id}/restore", s.handleRestore).Methods(http.MethodPost)
	api.HandleFunc("/history/{id}", s.handlePurge).Methods(http.MethodDelete)
	api.HandleFunc("/capacity", s.handleCapacity).Methods(http.MethodGet)

	return router
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		valid, err := s.userRepo.ValidateUser(r.Context(), username, password)
		if err != nil || !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses so
// callers always get a specific, stable failure kind.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrCapacityExceeded):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrNotEligible),
		errors.Is(err, engine.ErrNotInHistory),
		errors.Is(err, engine.ErrAlreadyDeleted),
		errors.Is(err, engine.ErrReasonRequired):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
