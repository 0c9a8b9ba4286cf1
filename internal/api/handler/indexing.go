package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/coordinator"
	"go.uber.org/zap"
)

// statusResponse is the /api/status payload.
type statusResponse struct {
	State               string       `json:"state"`
	Running             bool         `json:"running"`
	CurrentHeight       uint64       `json:"current_height"`
	CheckpointHeight    uint64       `json:"checkpoint_height"`
	CheckpointBlockTime *time.Time   `json:"checkpoint_block_time,omitempty"`
	Queues              []QueueStats `json:"queues,omitempty"`
}

// HandleStatus reports the coordinator state, checkpoint and queues.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:         string(h.Controller.State()),
		Running:       h.Controller.Running(),
		CurrentHeight: h.Controller.CurrentHeight(),
	}

	cp, found, err := h.Checkpoints.GetCheckpoint(r.Context())
	if err != nil {
		h.Logger.Error("failed to read checkpoint", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if found {
		resp.CheckpointHeight = cp.BlockHeight
		ts := cp.BlockTimestamp
		resp.CheckpointBlockTime = &ts
	}

	if h.Stats != nil {
		queues, err := h.Stats.QueueStats(r.Context())
		if err != nil {
			h.Logger.Warn("failed to read queue stats", zap.Error(err))
		} else {
			resp.Queues = queues
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// startRequest selects the start position for a fresh run.
type startRequest struct {
	FromHeight uint64 `json:"from_height"`
	Latest     bool   `json:"latest"`
}

// HandleIndexingStart launches the indexing run.
func (h *Handler) HandleIndexingStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.Warn("bad json in indexing start request", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
			return
		}
	}

	err := h.Controller.Start(coordinator.StartOptions{
		FromHeight: req.FromHeight,
		FromLatest: req.Latest,
	})
	switch {
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		h.Logger.Error("failed to start indexing", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.Logger.Info("indexing started",
		zap.Uint64("from_height", req.FromHeight),
		zap.Bool("latest", req.Latest),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// HandleIndexingStop stops the indexing run.
func (h *Handler) HandleIndexingStop(w http.ResponseWriter, r *http.Request) {
	if !h.Controller.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "indexing not running"})
		return
	}

	h.Controller.Stop()
	h.Logger.Info("indexing stopped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// reindexRequest is a ranged backfill request.
type reindexRequest struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// HandleReindex launches a ranged backfill in the background.
func (h *Handler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("bad json in reindex request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.Start == 0 || req.End < req.Start {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid height range"})
		return
	}

	h.Logger.Info("reindex accepted",
		zap.Uint64("start", req.Start),
		zap.Uint64("end", req.End),
	)

	// Outlives the request on purpose.
	go func() {
		if err := h.Reindex(context.Background(), req.Start, req.End); err != nil {
			h.Logger.Error("reindex failed",
				zap.Uint64("start", req.Start),
				zap.Uint64("end", req.End),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
