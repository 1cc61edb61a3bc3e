// Package interaction turns chat platform callbacks into workflow events
// and routes them to the orchestrator.
package interaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"carebear/internal/services"
	"carebear/internal/workflow"
	"carebear/pkg/models"
)

// ErrMalformed is returned for a payload that cannot be decoded or carries
// values the form never offers.
var ErrMalformed = errors.New("interaction: malformed payload")

// Callback is a decoded interactivity payload.
type Callback struct {
	// Token is the shared verification token the platform sent.
	Token string
	// Type is the platform's own discriminant, kept for logging.
	Type string
	// Event is nil when the callback is not one the service handles.
	Event workflow.Event
}

// Parse decodes the JSON "payload" form field of an interactivity request.
// When the JSON decodes but carries an unusable value, the returned Callback
// still holds Token and Type alongside the error.
func Parse(raw []byte) (Callback, error) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := Callback{Token: cb.Token, Type: string(cb.Type)}
	switch cb.Type {
	case slack.InteractionTypeMessageAction:
		out.Event = workflow.Initiate{
			TriggerID: cb.TriggerID,
			UserID:    cb.User.ID,
			Message: models.Message{
				Channel:         models.Channel{ID: cb.Channel.ID, Name: cb.Channel.Name},
				Timestamp:       cb.Message.Timestamp,
				Text:            cb.Message.Text,
				Author:          models.Profile{ID: cb.Message.User, TeamID: cb.Message.Team},
				ThreadTimestamp: cb.Message.ThreadTimestamp,
			},
		}

	case slack.InteractionTypeBlockActions:
		if cb.View.ID == "" {
			return out, nil
		}
		for _, action := range cb.ActionCallback.BlockActions {
			if action == nil || action.ActionID != services.RankActionID {
				continue
			}
			rank, err := models.ParseRank(action.SelectedOption.Value)
			if err != nil {
				out.Event = nil
				return out, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			out.Event = workflow.FieldChange{FormID: cb.View.ID, Value: rank}
		}

	case slack.InteractionTypeViewSubmission:
		if cb.View.CallbackID != services.RankFormCallbackID {
			return out, nil
		}
		out.Event = workflow.Submit{FormID: cb.View.ID, UserID: cb.User.ID}
	}
	return out, nil
}
