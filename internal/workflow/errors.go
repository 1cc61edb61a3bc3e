package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSubmission is returned for a Submit that arrives before any
	// rank was chosen. The workflow is failed and retired.
	ErrInvalidSubmission = errors.New("workflow: submitted without a rank")

	// ErrThreadedReply is returned for an Initiate on a reply inside a
	// thread. No workflow is created.
	ErrThreadedReply = errors.New("workflow: threaded replies cannot be flagged")

	// ErrSuperseded means the workflow a task was advancing has been
	// replaced by a newer one for the same user, or retired.
	ErrSuperseded = errors.New("workflow: superseded")

	// ErrNotAccepting is returned when a callback reaches a workflow whose
	// state does not accept it, such as a second Submit while the first is
	// being persisted.
	ErrNotAccepting = errors.New("workflow: callback not accepted in current state")
)

// UpstreamError wraps a failed call to the chat platform or the issue store.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
