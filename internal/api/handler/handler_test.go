package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/coordinator"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	state    coordinator.State
	height   uint64
	startErr error
	started  []coordinator.StartOptions
	stops    int
}

func (f *fakeController) Start(opts coordinator.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, opts)
	f.running = true
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeController) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeController) State() coordinator.State { return f.state }
func (f *fakeController) CurrentHeight() uint64    { return f.height }

type fakeCheckpoints struct {
	cp  *models.Checkpoint
	err error
}

func (f *fakeCheckpoints) GetCheckpoint(ctx context.Context) (*models.Checkpoint, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.cp == nil {
		return nil, false, nil
	}
	return f.cp, true, nil
}

type fakeStats struct {
	stats []QueueStats
}

func (f *fakeStats) QueueStats(ctx context.Context) ([]QueueStats, error) {
	return f.stats, nil
}

const testToken = "test-admin-token"

func newTestHandler(ctrl *fakeController, cps *fakeCheckpoints, reindex ReindexFunc) *Handler {
	return NewHandler(ctrl, cps, &fakeStats{}, reindex, zap.NewNop(), testToken)
}

func doRequest(h *Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)
	rec := doRequest(h, http.MethodGet, "/api/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedEndpointsRejectMissingToken(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/status"},
		{http.MethodPost, "/api/indexing/start"},
		{http.MethodPost, "/api/indexing/stop"},
		{http.MethodPost, "/api/indexing/reindex"},
	} {
		rec := doRequest(h, tc.method, tc.path, "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestAuthRejectsWrongToken(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus(t *testing.T) {
	blockTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl := &fakeController{running: true, state: coordinator.StateStreaming, height: 120_000_005}
	cps := &fakeCheckpoints{cp: &models.Checkpoint{
		ID:             models.CheckpointID,
		BlockHeight:    120_000_004,
		BlockTimestamp: blockTime,
	}}
	h := newTestHandler(ctrl, cps, nil)
	h.Stats = &fakeStats{stats: []QueueStats{
		{Topic: "donation-usd-jobs", StreamLength: 3, Pending: 1, Consumers: 2},
	}}

	rec := doRequest(h, http.MethodGet, "/api/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "streaming", got.State)
	assert.True(t, got.Running)
	assert.Equal(t, uint64(120_000_005), got.CurrentHeight)
	assert.Equal(t, uint64(120_000_004), got.CheckpointHeight)
	require.NotNil(t, got.CheckpointBlockTime)
	assert.True(t, blockTime.Equal(*got.CheckpointBlockTime))
	require.Len(t, got.Queues, 1)
	assert.Equal(t, "donation-usd-jobs", got.Queues[0].Topic)
}

func TestStatusWithoutCheckpoint(t *testing.T) {
	h := newTestHandler(&fakeController{state: coordinator.StateStopped}, &fakeCheckpoints{}, nil)
	rec := doRequest(h, http.MethodGet, "/api/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Zero(t, got.CheckpointHeight)
	assert.Nil(t, got.CheckpointBlockTime)
}

func TestIndexingStart(t *testing.T) {
	ctrl := &fakeController{}
	h := newTestHandler(ctrl, &fakeCheckpoints{}, nil)

	rec := doRequest(h, http.MethodPost, "/api/indexing/start", `{"from_height": 115000000}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctrl.started, 1)
	assert.Equal(t, uint64(115_000_000), ctrl.started[0].FromHeight)
	assert.False(t, ctrl.started[0].FromLatest)
}

func TestIndexingStartEmptyBody(t *testing.T) {
	ctrl := &fakeController{}
	h := newTestHandler(ctrl, &fakeCheckpoints{}, nil)

	rec := doRequest(h, http.MethodPost, "/api/indexing/start", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctrl.started, 1)
	assert.Zero(t, ctrl.started[0].FromHeight)
}

func TestIndexingStartConflict(t *testing.T) {
	ctrl := &fakeController{startErr: coordinator.ErrAlreadyRunning}
	h := newTestHandler(ctrl, &fakeCheckpoints{}, nil)

	rec := doRequest(h, http.MethodPost, "/api/indexing/start", `{"latest": true}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIndexingStartBadJSON(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)
	rec := doRequest(h, http.MethodPost, "/api/indexing/start", `{"from_height":`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexingStop(t *testing.T) {
	ctrl := &fakeController{running: true}
	h := newTestHandler(ctrl, &fakeCheckpoints{}, nil)

	rec := doRequest(h, http.MethodPost, "/api/indexing/stop", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.stops)
}

func TestIndexingStopNotRunning(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)
	rec := doRequest(h, http.MethodPost, "/api/indexing/stop", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReindexAccepted(t *testing.T) {
	type call struct{ start, end uint64 }
	calls := make(chan call, 1)
	reindex := func(ctx context.Context, start, end uint64) error {
		calls <- call{start, end}
		return nil
	}
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, reindex)

	rec := doRequest(h, http.MethodPost, "/api/indexing/reindex", `{"start": 100, "end": 200}`, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case c := <-calls:
		assert.Equal(t, call{100, 200}, c)
	case <-time.After(2 * time.Second):
		t.Fatal("reindex func never invoked")
	}
}

func TestReindexInvalidRange(t *testing.T) {
	h := newTestHandler(&fakeController{}, &fakeCheckpoints{}, nil)

	rec := doRequest(h, http.MethodPost, "/api/indexing/reindex", `{"start": 0, "end": 10}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h, http.MethodPost, "/api/indexing/reindex", `{"start": 200, "end": 100}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
