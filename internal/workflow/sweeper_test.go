package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carebear/internal/correlation"
	"carebear/pkg/models"
)

func TestSweeper_EvictsAbandonedWorkflows(t *testing.T) {
	h := newHarness(t)
	h.stubProfiles("U9")
	ctx := context.Background()
	sweeper := NewSweeper(h.orch, 30*time.Minute, time.Minute)

	h.openForm(t, "U1", "F1")
	h.clock.Advance(20 * time.Minute)
	h.openForm(t, "U2", "F2")

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.WorkflowActive))

	h.clock.Advance(15 * time.Minute)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WorkflowActive))
	assert.Equal(t, 1.0, h.completions("failed"))

	_, err = h.store.Get(ctx, correlation.FormKey("F1"))
	assert.ErrorIs(t, err, correlation.ErrNotFound)
	_, err = h.store.Get(ctx, correlation.FormKey("F2"))
	assert.NoError(t, err)

	// A late submit on the evicted form is an expired session.
	assert.ErrorIs(t, h.orch.Submit(ctx, Submit{FormID: "F1", UserID: "U1"}), correlation.ErrNotFound)
}

func TestSweeper_LeavesSubmittedWorkflows(t *testing.T) {
	h := newHarness(t)
	h.stubProfiles("U9", "U1")
	ctx := context.Background()
	sweeper := NewSweeper(h.orch, time.Minute, time.Minute)

	h.openForm(t, "U1", "F1")
	require.NoError(t, h.orch.ChangeField(ctx, FieldChange{FormID: "F1", Value: models.RankHigh}))

	release := make(chan struct{})
	h.issues.On("Create", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(nil)
	h.gateway.On("PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, h.orch.Submit(ctx, Submit{FormID: "F1", UserID: "U1"}))

	h.clock.Advance(time.Hour)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(release)
	h.orch.Wait()
	assert.Equal(t, 1.0, h.completions("persisted"))
}

func TestSweeper_RemovesTerminalLeftovers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()
	_, err := h.store.Put(ctx, correlation.Workflow{
		ID:        "wf-1",
		UserID:    "U1",
		State:     correlation.StatePersisted,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	n, err := NewSweeper(h.orch, time.Hour, time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.WorkflowActive))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(h.orch, time.Hour, time.Millisecond).Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_RunRejectsNonPositiveInterval(t *testing.T) {
	h := newHarness(t)
	for _, interval := range []time.Duration{0, -time.Second} {
		err := NewSweeper(h.orch, time.Hour, interval).Run(context.Background())
		assert.Error(t, err, "interval %s", interval)
	}
}
