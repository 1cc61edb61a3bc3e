// Package workflow drives the create-issue state machine. Each interaction
// callback is applied to the correlation store synchronously and returns;
// calls to the chat platform and the issue store run afterwards as tracked
// background tasks so the callback can be acknowledged within the
// platform's deadline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"carebear/internal/config"
	"carebear/internal/correlation"
	"carebear/internal/logging"
	"carebear/internal/observability"
	"carebear/internal/services"
	"carebear/pkg/models"
)

// Upstream operation names, used in UpstreamError and metrics.
const (
	OpGetUserProfile = "get_user_profile"
	OpOpenForm       = "open_form"
	OpCreateIssue    = "create_issue"
	OpPostMessage    = "post_message"
)

const tracerName = "carebear/internal/workflow"

var nonTerminal = []correlation.State{
	correlation.StateCreated,
	correlation.StateFormOpening,
	correlation.StateFormOpen,
	correlation.StateSubmitted,
}

// IssueCreator persists a finished issue.
type IssueCreator interface {
	Create(ctx context.Context, issue *models.Issue) error
}

// Orchestrator owns the workflow state machine.
type Orchestrator struct {
	store   correlation.Store
	gateway services.PlatformGateway
	issues  IssueCreator

	logger  *logging.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string

	confirmation    string
	persistAttempts int
	retryInterval   time.Duration

	inFlight *semaphore.Weighted
	tasks    sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics the orchestrator records into.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the UUID generator used for workflow and issue ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithConfirmationText sets the reply posted once an issue is stored.
func WithConfirmationText(text string) Option {
	return func(o *Orchestrator) { o.confirmation = text }
}

// WithPersistRetry sets how many times issue creation is attempted and the
// initial backoff between attempts.
func WithPersistRetry(attempts int, initialInterval time.Duration) Option {
	return func(o *Orchestrator) {
		o.persistAttempts = attempts
		o.retryInterval = initialInterval
	}
}

// WithMaxInFlight bounds the number of background tasks running at once.
// Further tasks queue.
func WithMaxInFlight(n int64) Option {
	return func(o *Orchestrator) { o.inFlight = semaphore.NewWeighted(n) }
}

// New creates an Orchestrator over store.
func New(store correlation.Store, gateway services.PlatformGateway, issues IssueCreator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           store,
		gateway:         gateway,
		issues:          issues,
		logger:          logging.Nop(),
		tracer:          otel.Tracer(tracerName),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           func() string { return uuid.New().String() },
		confirmation:    config.DefaultConfirmationText,
		persistAttempts: 3,
		retryInterval:   500 * time.Millisecond,
		inFlight:        semaphore.NewWeighted(64),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if o.persistAttempts < 1 {
		o.persistAttempts = 1
	}
	return o
}

// Initiate starts a workflow for the flagging user, replacing any workflow
// the user already has. Profile lookup and form opening happen in the
// background.
func (o *Orchestrator) Initiate(ctx context.Context, ev Initiate) error {
	if ev.UserID == "" {
		return errors.New("initiate: missing user id")
	}
	if ev.Message.IsThreadedReply() {
		return ErrThreadedReply
	}

	now := o.now()
	wf := correlation.Workflow{
		ID:        o.newID(),
		UserID:    ev.UserID,
		Message:   ev.Message,
		Reporter:  models.Profile{ID: ev.UserID},
		State:     correlation.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	replaced, err := o.store.Put(ctx, wf)
	if err != nil {
		return fmt.Errorf("store workflow: %w", err)
	}
	o.recordTransition(wf)
	if replaced == nil {
		o.metrics.WorkflowActive.Inc()
	}
	if replaced != nil && !replaced.State.Terminal() {
		o.logger.Warn("Replaced in-progress workflow", append(replaced.LogFields(), "replaced_by", wf.ID)...)
		o.metrics.WorkflowCompletions.WithLabelValues("superseded").Inc()
	}

	o.spawn(ctx, "open_form", wf, func(ctx context.Context) {
		o.openForm(ctx, wf, ev.TriggerID)
	})
	return nil
}

// ChangeField records the rank picked in an open form. The latest change
// wins.
func (o *Orchestrator) ChangeField(ctx context.Context, ev FieldChange) error {
	if !ev.Value.Valid() {
		return fmt.Errorf("field change: unknown rank %q", ev.Value)
	}
	wf, err := o.store.Update(ctx, correlation.FormKey(ev.FormID), func(cur *correlation.Workflow) error {
		if !accepting(cur.State) {
			return fmt.Errorf("%w: %s", ErrNotAccepting, cur.State)
		}
		cur.Rank = ev.Value
		cur.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.Info("Rank selected", append(wf.LogFields(), "rank", string(wf.Rank))...)
	return nil
}

// Submit claims the workflow for persistence. A workflow without a rank is
// failed immediately; otherwise the issue is stored and confirmed in the
// background.
func (o *Orchestrator) Submit(ctx context.Context, ev Submit) error {
	wf, err := o.store.Update(ctx, correlation.FormKey(ev.FormID), func(cur *correlation.Workflow) error {
		if !accepting(cur.State) {
			return fmt.Errorf("%w: %s", ErrNotAccepting, cur.State)
		}
		if cur.HasRank() {
			cur.State = correlation.StateSubmitted
		} else {
			cur.State = correlation.StateFailed
		}
		cur.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return err
	}
	o.recordTransition(wf)

	if wf.State == correlation.StateFailed {
		o.logger.Error("Workflow failed", append(wf.LogFields(), "error", ErrInvalidSubmission)...)
		o.retire(ctx, wf)
		return ErrInvalidSubmission
	}

	submitter := ev.UserID
	if submitter == "" {
		submitter = wf.UserID
	}
	o.spawn(ctx, "persist", wf, func(ctx context.Context) {
		o.persist(ctx, wf, submitter)
	})
	return nil
}

// Wait blocks until every background task has finished.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Drain waits for background tasks until ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) openForm(ctx context.Context, wf correlation.Workflow, triggerID string) {
	ctx, span := o.tracer.Start(ctx, "workflow.initiate", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("user.id", wf.UserID),
	))
	defer span.End()

	author := wf.Message.Author
	if author.ID != "" {
		profile, err := o.getUserProfile(ctx, author.ID)
		if err != nil {
			o.abort(ctx, span, wf, err)
			return
		}
		author = profile
	}

	opening, err := o.advance(ctx, wf, correlation.StateFormOpening, func(cur *correlation.Workflow) {
		cur.Message.Author = author
	}, correlation.StateCreated)
	if err != nil {
		o.stale(wf, err)
		return
	}

	var formID string
	err = o.call(ctx, OpOpenForm, func(ctx context.Context) error {
		var err error
		formID, err = o.gateway.OpenForm(ctx, triggerID, wf.UserID)
		return err
	})
	if err != nil {
		o.abort(ctx, span, opening, err)
		return
	}

	open, err := o.advance(ctx, opening, correlation.StateFormOpen, func(cur *correlation.Workflow) {
		cur.FormID = formID
	}, correlation.StateFormOpening)
	if errors.Is(err, correlation.ErrFormBound) {
		o.abort(ctx, span, opening, err)
		return
	}
	if err != nil {
		o.stale(opening, err)
		return
	}
	span.SetAttributes(attribute.String("form.id", open.FormID))
}

func (o *Orchestrator) persist(ctx context.Context, wf correlation.Workflow, submitterID string) {
	ctx, span := o.tracer.Start(ctx, "workflow.submit", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("user.id", wf.UserID),
		attribute.String("form.id", wf.FormID),
		attribute.String("issue.rank", string(wf.Rank)),
	))
	defer span.End()

	reporter, err := o.getUserProfile(ctx, submitterID)
	if err != nil {
		o.abort(ctx, span, wf, err)
		return
	}

	now := o.now()
	issue := &models.Issue{
		ID:            o.newID(),
		Rank:          wf.Rank,
		Message:       wf.Message,
		ReportingUser: reporter,
		Status:        models.StatusBacklog,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.createIssue(ctx, issue); err != nil {
		o.abort(ctx, span, wf, err)
		return
	}
	span.SetAttributes(attribute.String("issue.id", issue.ID))
	o.logger.Info("Issue created", append(wf.LogFields(), "issue_id", issue.ID, "rank", string(issue.Rank))...)

	threadTS := wf.Message.ThreadTimestamp
	if threadTS == "" {
		threadTS = wf.Message.Timestamp
	}
	err = o.call(ctx, OpPostMessage, func(ctx context.Context) error {
		return o.gateway.PostMessage(ctx, wf.Message.Channel.ID, threadTS, o.confirmation)
	})
	if err != nil {
		o.abort(ctx, span, wf, fmt.Errorf("issue %s stored but not confirmed: %w", issue.ID, err))
		return
	}

	done, err := o.advance(ctx, wf, correlation.StatePersisted, nil, correlation.StateSubmitted)
	if err != nil {
		o.stale(wf, err)
		return
	}
	o.retire(ctx, done)
}

func (o *Orchestrator) createIssue(ctx context.Context, issue *models.Issue) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.persistAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return o.call(ctx, OpCreateIssue, func(ctx context.Context) error {
			return o.issues.Create(ctx, issue)
		})
	}, policy, func(err error, wait time.Duration) {
		o.logger.Warn("Retrying issue persistence",
			"issue_id", issue.ID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	})
}

func (o *Orchestrator) getUserProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := o.call(ctx, OpGetUserProfile, func(ctx context.Context) error {
		var err error
		profile, err = o.gateway.GetUserProfile(ctx, userID)
		return err
	})
	return profile, err
}

// call runs one upstream call and records its outcome.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveUpstream(op, start, err)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	return nil
}

// advance moves the stored copy of wf to state to, provided the user's
// workflow is still wf and sits in one of the from states.
func (o *Orchestrator) advance(ctx context.Context, wf correlation.Workflow, to correlation.State, mutate func(*correlation.Workflow), from ...correlation.State) (correlation.Workflow, error) {
	next, err := o.store.Update(ctx, correlation.UserKey(wf.UserID), func(cur *correlation.Workflow) error {
		if cur.ID != wf.ID {
			return ErrSuperseded
		}
		if !slices.Contains(from, cur.State) {
			return fmt.Errorf("%w: %s", ErrNotAccepting, cur.State)
		}
		if mutate != nil {
			mutate(cur)
		}
		cur.State = to
		cur.UpdatedAt = o.now()
		return nil
	})
	if errors.Is(err, correlation.ErrNotFound) {
		return correlation.Workflow{}, fmt.Errorf("%w: retired", ErrSuperseded)
	}
	if err != nil {
		return correlation.Workflow{}, err
	}
	o.recordTransition(next)
	return next, nil
}

// abort fails wf after an upstream or binding error and retires it.
func (o *Orchestrator) abort(ctx context.Context, span trace.Span, wf correlation.Workflow, cause error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	o.logger.Error("Workflow failed", append(wf.LogFields(), "error", cause)...)

	failed, err := o.advance(ctx, wf, correlation.StateFailed, nil, nonTerminal...)
	if err != nil {
		o.stale(wf, err)
		return
	}
	o.retire(ctx, failed)
}

// stale logs a background task that lost its workflow to a newer callback.
func (o *Orchestrator) stale(wf correlation.Workflow, err error) {
	if errors.Is(err, ErrSuperseded) || errors.Is(err, ErrNotAccepting) {
		o.logger.Info("Workflow moved on before task finished", append(wf.LogFields(), "reason", err)...)
		return
	}
	o.logger.Error("Failed to update workflow", append(wf.LogFields(), "error", err)...)
}

// retire removes a workflow that reached a terminal state.
func (o *Orchestrator) retire(ctx context.Context, wf correlation.Workflow) {
	o.metrics.WorkflowCompletions.WithLabelValues(string(wf.State)).Inc()
	removed, err := o.store.Remove(ctx, wf.UserID, wf.ID)
	if err != nil {
		o.logger.Error("Failed to retire workflow", append(wf.LogFields(), "error", err)...)
		return
	}
	if removed {
		o.metrics.WorkflowActive.Dec()
	}
}

func (o *Orchestrator) recordTransition(wf correlation.Workflow) {
	o.metrics.WorkflowTransitions.WithLabelValues(string(wf.State)).Inc()
	o.logger.Info("Workflow transition", wf.LogFields()...)
}

// spawn runs fn after the current callback has been answered. The task
// outlives the request context but keeps its values for tracing.
func (o *Orchestrator) spawn(ctx context.Context, name string, wf correlation.Workflow, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With(append(wf.LogFields(), "task", name)...)
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Background task panicked", "panic", r)
			}
		}()

		if err := o.inFlight.Acquire(ctx, 1); err != nil {
			return
		}
		defer o.inFlight.Release(1)

		start := time.Now()
		fn(ctx)
		log.Debug("Background task finished", "duration", time.Since(start))
	}()
}

// accepting reports whether a form callback may still change the workflow.
func accepting(s correlation.State) bool {
	return s != correlation.StateSubmitted && !s.Terminal()
}
