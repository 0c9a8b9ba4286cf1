package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/potlock-network/potlock-indexer/pkg/near"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	seekedAt   []uint64
	results    []func() (*near.Block, error)
	next       int
	stopCalled bool
}

func (f *fakeSource) Seek(ctx context.Context, height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekedAt = append(f.seekedAt, height)
}

func (f *fakeSource) Next(ctx context.Context) (*near.Block, error) {
	f.mu.Lock()
	if f.next < len(f.results) {
		fn := f.results[f.next]
		f.next++
		f.mu.Unlock()
		return fn()
	}
	f.mu.Unlock()
	// Exhausted; behave like a caught-up stream.
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalled = true
}

func (f *fakeSource) seeks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.seekedAt...)
}

type fakeApplier struct {
	mu      sync.Mutex
	heights []uint64
	applied chan uint64
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{applied: make(chan uint64, 16)}
}

func (f *fakeApplier) ApplyBlock(ctx context.Context, b *near.Block) {
	f.mu.Lock()
	f.heights = append(f.heights, b.Header.Height)
	f.mu.Unlock()
	f.applied <- b.Header.Height
}

type fakeProgress struct {
	mu          sync.Mutex
	checkpoint  *models.Checkpoint
	checkpoints []uint64
	progress    []uint64
}

func (f *fakeProgress) GetCheckpoint(ctx context.Context) (*models.Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoint == nil {
		return nil, false, nil
	}
	return f.checkpoint, true, nil
}

func (f *fakeProgress) UpsertCheckpoint(ctx context.Context, height uint64, blockTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, height)
	return nil
}

func (f *fakeProgress) RecordIndexed(ctx context.Context, height uint64, ms float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, height)
	return nil
}

func blockAt(height uint64) *near.Block {
	return &near.Block{Header: near.BlockHeader{
		Height:      height,
		TimestampNs: uint64(time.Now().UnixNano()),
	}}
}

func fixedHead(height uint64) HeadFunc {
	return func(ctx context.Context) (uint64, error) { return height, nil }
}

func TestRunRequiresExplicitStartWithoutCheckpoint(t *testing.T) {
	c := New(&fakeSource{}, newFakeApplier(), &fakeProgress{}, fixedHead(0), Config{})
	err := c.Run(context.Background(), StartOptions{})
	require.ErrorIs(t, err, ErrNoStartHeight)
	assert.Equal(t, StateStopped, c.State())
}

func TestRunResumesAfterCheckpoint(t *testing.T) {
	src := &fakeSource{results: []func() (*near.Block, error){
		func() (*near.Block, error) { return blockAt(42), nil },
	}}
	applier := newFakeApplier()
	progress := &fakeProgress{checkpoint: &models.Checkpoint{
		ID: models.CheckpointID, BlockHeight: 41,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	// Explicit options must lose to the checkpoint.
	go func() {
		done <- New(src, applier, progress, fixedHead(0), Config{}).Run(ctx, StartOptions{FromHeight: 5})
	}()

	select {
	case h := <-applier.applied:
		assert.Equal(t, uint64(42), h)
	case <-time.After(2 * time.Second):
		t.Fatal("block never applied")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []uint64{42}, src.seeks())
	assert.Equal(t, []uint64{42}, progress.checkpoints)
	assert.Equal(t, []uint64{42}, progress.progress)
}

func TestRunStartsFromExplicitHeight(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(src, newFakeApplier(), &fakeProgress{}, fixedHead(0), Config{}).Run(ctx, StartOptions{FromHeight: 77})
	}()

	require.Eventually(t, func() bool {
		return len(src.seeks()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{77}, src.seeks())

	cancel()
	<-done
}

func TestRunStartsFromLatest(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(src, newFakeApplier(), &fakeProgress{}, fixedHead(900), Config{}).Run(ctx, StartOptions{FromLatest: true})
	}()

	require.Eventually(t, func() bool {
		return len(src.seeks()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{900}, src.seeks())

	cancel()
	<-done
}

func TestRunBacksOffOnSourceErrorThenRecovers(t *testing.T) {
	src := &fakeSource{results: []func() (*near.Block, error){
		func() (*near.Block, error) { return nil, errors.New("gateway hiccup") },
		func() (*near.Block, error) { return blockAt(10), nil },
	}}
	applier := newFakeApplier()
	progress := &fakeProgress{}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- New(src, applier, progress, fixedHead(0), cfg).Run(ctx, StartOptions{FromHeight: 10}) }()

	select {
	case h := <-applier.applied:
		assert.Equal(t, uint64(10), h)
	case <-time.After(2 * time.Second):
		t.Fatal("block never applied after source error")
	}
	cancel()
	<-done

	assert.Equal(t, []uint64{10}, progress.checkpoints)
}

func TestRunStopsOnCancellation(t *testing.T) {
	src := &fakeSource{}
	c := New(src, newFakeApplier(), &fakeProgress{}, fixedHead(0), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, StartOptions{FromHeight: 1}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, StateStopped, c.State())
}

func TestManagerStartFailsFastWithoutStartHeight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(&fakeSource{}, newFakeApplier(), &fakeProgress{}, fixedHead(0), Config{})
	m := NewManager(ctx, c)

	// No checkpoint, no explicit height: the error comes back from
	// Start itself, not from a background run that quietly dies.
	require.ErrorIs(t, m.Start(StartOptions{}), ErrNoStartHeight)
	assert.False(t, m.Running())
	assert.Equal(t, StateStopped, m.State())

	// The failed attempt must not block a valid one.
	require.NoError(t, m.Start(StartOptions{FromHeight: 1}))
	m.Stop()
}

func TestManagerRejectsDoubleStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(&fakeSource{}, newFakeApplier(), &fakeProgress{}, fixedHead(0), Config{})
	m := NewManager(ctx, c)

	require.NoError(t, m.Start(StartOptions{FromHeight: 1}))
	require.Eventually(t, m.Running, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, m.Start(StartOptions{FromHeight: 1}), ErrAlreadyRunning)

	m.Stop()
	assert.False(t, m.Running())

	// A fresh start after stop is allowed.
	require.NoError(t, m.Start(StartOptions{FromHeight: 2}))
	m.Stop()
}
