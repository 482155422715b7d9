package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusProvider exposes the lifecycle of a worker to the health server
type StatusProvider interface {
	State() State
	QuadCount() int
}

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	port        int
	redisClient *redis.Client
	status      StatusProvider
	logger      *zap.Logger
	server      *http.Server
}

// NewHealthServer creates a new health server. redisClient may be nil when
// the worker does not use Redis.
func NewHealthServer(port int, redisClient *redis.Client, status StatusProvider, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		port:        port,
		redisClient: redisClient,
		status:      status,
		logger:      logger,
	}
}

// Handler returns the HTTP handler serving /health and /ready
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	return mux
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	State  string            `json:"state,omitempty"`
	Quads  *int              `json:"quads,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports liveness and the Redis connection
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if hs.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := hs.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = fmt.Sprintf("unhealthy: %v", err)
			hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Checks: checks,
			})
			return
		}
		checks["redis"] = "healthy"
	}

	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		State:  hs.status.State().String(),
		Checks: checks,
	})
}

// handleReady succeeds only once the store is loaded
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	state := hs.status.State()
	if state != StateReady {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
			State:  state.String(),
		})
		return
	}

	quads := hs.status.QuadCount()
	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
		State:  state.String(),
		Quads:  &quads,
	})
}

// respondJSON writes a JSON response
func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
