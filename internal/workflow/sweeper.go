package workflow

import (
	"context"
	"fmt"
	"time"

	"carebear/internal/correlation"
)

// Sweeper evicts workflows whose user walked away from the form.
type Sweeper struct {
	orch     *Orchestrator
	maxAge   time.Duration
	interval time.Duration
}

// NewSweeper creates a sweeper that fails workflows older than maxAge,
// checking every interval.
func NewSweeper(orch *Orchestrator, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{orch: orch, maxAge: maxAge, interval: interval}
}

// Sweep runs one eviction pass and returns how many workflows it failed.
// Workflows being persisted are left alone; terminal workflows whose
// removal failed earlier are removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	all, err := s.orch.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.orch.now()
	cutoff := now.Add(-s.maxAge)
	evicted, remaining := 0, len(all)
	for _, wf := range all {
		switch {
		case wf.State.Terminal():
			removed, err := s.orch.store.Remove(ctx, wf.UserID, wf.ID)
			if err != nil {
				s.orch.logger.Error("Failed to remove terminal workflow", append(wf.LogFields(), "error", err)...)
				continue
			}
			if removed {
				remaining--
			}
		case wf.State == correlation.StateSubmitted:
		case wf.CreatedAt.Before(cutoff):
			failed, err := s.orch.advance(ctx, wf, correlation.StateFailed, nil,
				correlation.StateCreated, correlation.StateFormOpening, correlation.StateFormOpen)
			if err != nil {
				s.orch.stale(wf, err)
				continue
			}
			s.orch.logger.Warn("Evicted abandoned workflow", append(failed.LogFields(), "age", now.Sub(wf.CreatedAt))...)
			s.orch.retire(ctx, failed)
			evicted++
			remaining--
		}
	}
	// Other instances sharing the store move the count too.
	s.orch.metrics.WorkflowActive.Set(float64(remaining))
	return evicted, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweeper: interval must be positive, got %s", s.interval)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.orch.logger.Info("Workflow sweeper started", "max_age", s.maxAge, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.orch.logger.Error("Workflow sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.orch.logger.Info("Workflow sweep finished", "evicted", n)
			}
		}
	}
}
