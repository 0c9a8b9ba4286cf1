package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Manager owns the coordinator's goroutine so the admin API can stop
// and restart indexing without tearing down the process.
type Manager struct {
	coord  *Coordinator
	parent context.Context

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewManager wraps a coordinator. parent bounds every run; cancelling
// it stops the current run for good.
func NewManager(parent context.Context, coord *Coordinator) *Manager {
	return &Manager{coord: coord, parent: parent}
}

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("indexing already running")

// Start launches a run with the given options. The start height is
// resolved before the goroutine launches, so a caller with neither a
// checkpoint nor an explicit height gets ErrNoStartHeight back directly
// instead of a run that dies in the background.
func (m *Manager) Start(opts StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
		default:
			return ErrAlreadyRunning
		}
	}

	start, err := m.coord.resolveStart(m.parent, opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(m.parent)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		err := m.coord.runFrom(runCtx, start)
		if err != nil && runCtx.Err() == nil {
			slog.Error("indexing run ended", "err", err)
		}
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels the current run and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a run is in progress.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// State returns the coordinator state, normalized to stopped when no
// run is active.
func (m *Manager) State() State {
	if !m.Running() {
		return StateStopped
	}
	return m.coord.State()
}

// CurrentHeight returns the last fully applied block height.
func (m *Manager) CurrentHeight() uint64 {
	return m.coord.CurrentHeight()
}

// LastError returns the error the previous run ended with, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Wait blocks until the current run finishes or ctx is cancelled.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return m.LastError()
	}
}
