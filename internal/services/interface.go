package services

import (
	"context"

	"carebear/pkg/models"
)

// PlatformGateway is the subset of the chat platform the service drives.
type PlatformGateway interface {
	// OpenForm opens the rank form for the user behind triggerID and returns
	// the new form's id. userID travels with the form as private metadata.
	OpenForm(ctx context.Context, triggerID, userID string) (formID string, err error)
	// GetUserProfile looks up a user's display details.
	GetUserProfile(ctx context.Context, userID string) (models.Profile, error)
	// PostMessage posts text into a channel, threaded under threadTS when it
	// is not empty.
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
}
