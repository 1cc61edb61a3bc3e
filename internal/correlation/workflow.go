// Package correlation tracks in-flight "create issue" workflows between the
// independent interaction callbacks that drive them.
//
// A workflow is stored under the reporting user's id. Once its form has
// been opened the form id becomes a secondary key that resolves to the same
// user, because field-change callbacks only carry the form id.
package correlation

import (
	"time"

	"carebear/pkg/models"
)

// State is a workflow's position in the create-issue state machine.
type State string

const (
	StateCreated     State = "created"
	StateFormOpening State = "form_opening"
	StateFormOpen    State = "form_open"
	StateSubmitted   State = "submitted"
	StatePersisted   State = "persisted"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions are permitted from s.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// Workflow is one correlated create-issue attempt.
type Workflow struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	// FormID is empty until the form-open response binds it.
	FormID string `json:"formId,omitempty"`

	Message  models.Message `json:"message"`
	Reporter models.Profile `json:"reporter"`
	// Rank is empty until the first field change; later changes overwrite it.
	Rank models.Rank `json:"rank,omitempty"`

	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasRank reports whether a rank has been selected.
func (w Workflow) HasRank() bool {
	return w.Rank != ""
}

// LogFields returns the identifying key/value pairs for log lines.
func (w Workflow) LogFields() []any {
	fields := []any{"workflow_id", w.ID, "user_id", w.UserID, "state", string(w.State)}
	if w.FormID != "" {
		fields = append(fields, "form_id", w.FormID)
	}
	return fields
}
