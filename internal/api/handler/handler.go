// Package handler implements the admin API endpoints.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/potlock-network/potlock-indexer/internal/coordinator"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"go.uber.org/zap"
)

// Controller starts and stops the indexing run.
type Controller interface {
	Start(opts coordinator.StartOptions) error
	Stop()
	Running() bool
	State() coordinator.State
	CurrentHeight() uint64
}

// CheckpointReader reads the durable resume position.
type CheckpointReader interface {
	GetCheckpoint(ctx context.Context) (*models.Checkpoint, bool, error)
}

// QueueStats mirrors the worker's per-stream statistics.
type QueueStats struct {
	Topic        string `json:"topic"`
	StreamLength int64  `json:"stream_length"`
	Pending      int64  `json:"pending"`
	Consumers    int64  `json:"consumers"`
}

// StatsSource reports job queue statistics.
type StatsSource interface {
	QueueStats(ctx context.Context) ([]QueueStats, error)
}

// ReindexFunc runs a ranged backfill. It is invoked on a background
// goroutine per accepted request.
type ReindexFunc func(ctx context.Context, start, end uint64) error

// Handler holds the dependencies for API handlers
type Handler struct {
	Controller  Controller
	Checkpoints CheckpointReader
	Stats       StatsSource
	Reindex     ReindexFunc
	Logger      *zap.Logger
	AdminToken  string
}

// NewHandler creates a new Handler instance
func NewHandler(ctrl Controller, cps CheckpointReader, stats StatsSource, reindex ReindexFunc, logger *zap.Logger, adminToken string) *Handler {
	return &Handler{
		Controller:  ctrl,
		Checkpoints: cps,
		Stats:       stats,
		Reindex:     reindex,
		Logger:      logger,
		AdminToken:  adminToken,
	}
}

// NewRouter creates and configures the HTTP router with all API routes
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()

	// Public health check endpoint
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet)

	// Protected indexing control endpoints
	r.HandleFunc("/api/status", h.RequireAuth(h.HandleStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/indexing/start", h.RequireAuth(h.HandleIndexingStart)).Methods(http.MethodPost)
	r.HandleFunc("/api/indexing/stop", h.RequireAuth(h.HandleIndexingStop)).Methods(http.MethodPost)
	r.HandleFunc("/api/indexing/reindex", h.RequireAuth(h.HandleReindex)).Methods(http.MethodPost)

	return r
}

// RequireAuth is a middleware that validates the bearer token
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + h.AdminToken

		if auth != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next(w, r)
	}
}

// HandleHealth returns a simple health check response
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
