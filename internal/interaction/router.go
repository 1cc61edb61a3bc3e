package interaction

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"carebear/internal/correlation"
	"carebear/internal/logging"
	"carebear/internal/observability"
	"carebear/internal/workflow"
)

// Transitions is the set of state machine entry points a Router drives.
type Transitions interface {
	Initiate(ctx context.Context, ev workflow.Initiate) error
	ChangeField(ctx context.Context, ev workflow.FieldChange) error
	Submit(ctx context.Context, ev workflow.Submit) error
}

// Router hands each event to exactly one transition.
type Router struct {
	target  Transitions
	logger  *logging.Logger
	metrics *observability.Metrics
}

// NewRouter creates a Router. logger and metrics may be nil.
func NewRouter(target Transitions, logger *logging.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = logging.Nop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return &Router{target: target, logger: logger, metrics: metrics}
}

// Dispatch routes ev. A nil or unrecognised event is counted and ignored.
// Any returned error has already been logged.
func (r *Router) Dispatch(ctx context.Context, ev workflow.Event) error {
	kind := "unknown"
	if ev != nil {
		kind = ev.Kind()
	}
	r.metrics.CallbacksTotal.WithLabelValues(kind).Inc()

	var err error
	switch ev := ev.(type) {
	case workflow.Initiate:
		err = r.target.Initiate(ctx, ev)
	case workflow.FieldChange:
		err = r.target.ChangeField(ctx, ev)
	case workflow.Submit:
		err = r.target.Submit(ctx, ev)
	default:
		r.logger.Debug("Ignoring callback", "kind", kind)
		return nil
	}

	if err != nil {
		r.report(ev, err)
	}
	return err
}

func (r *Router) report(ev workflow.Event, err error) {
	fields := []any{"kind", ev.Kind(), "error", err}
	switch ev := ev.(type) {
	case workflow.Initiate:
		fields = append(fields, "user_id", ev.UserID)
	case workflow.FieldChange:
		fields = append(fields, "form_id", ev.FormID)
	case workflow.Submit:
		fields = append(fields, "form_id", ev.FormID, "user_id", ev.UserID)
	}

	switch {
	case errors.Is(err, correlation.ErrNotFound):
		r.logger.Warn("Unknown or expired workflow, dropping callback", fields...)
	case errors.Is(err, workflow.ErrNotAccepting),
		errors.Is(err, workflow.ErrThreadedReply),
		errors.Is(err, workflow.ErrInvalidSubmission):
		r.logger.Warn("Callback rejected", fields...)
	default:
		r.logger.Error("Callback failed", fields...)
	}
}
