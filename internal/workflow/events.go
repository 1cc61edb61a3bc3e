package workflow

import "carebear/pkg/models"

// Event is one inbound interaction callback, reduced to the fields the
// orchestrator consumes. The set of implementations is closed.
type Event interface {
	// Kind names the event for logs and metrics.
	Kind() string
	event()
}

// Initiate is sent when a user flags a message.
type Initiate struct {
	// TriggerID authorises opening a form for this interaction. It expires
	// within seconds of the callback.
	TriggerID string
	UserID    string
	Message   models.Message
}

// FieldChange is sent when the user picks a rank in the open form.
type FieldChange struct {
	FormID string
	Value  models.Rank
}

// Submit is sent when the user presses the form's submit control.
type Submit struct {
	FormID string
	UserID string
}

func (Initiate) Kind() string    { return "initiate" }
func (FieldChange) Kind() string { return "field_change" }
func (Submit) Kind() string      { return "submit" }

func (Initiate) event()    {}
func (FieldChange) event() {}
func (Submit) event()      {}
