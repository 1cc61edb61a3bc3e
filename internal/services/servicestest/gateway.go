// Package servicestest provides test doubles for the services package.
package servicestest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"carebear/pkg/models"
)

// MockGateway satisfies services.PlatformGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) OpenForm(ctx context.Context, triggerID, userID string) (string, error) {
	args := m.Called(ctx, triggerID, userID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) GetUserProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Profile), args.Error(1)
}

func (m *MockGateway) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	args := m.Called(ctx, channelID, threadTS, text)
	return args.Error(0)
}

// Profile returns a profile for userID with predictable details.
func Profile(userID string) models.Profile {
	return models.Profile{
		ID:     userID,
		Name:   "Name " + userID,
		Handle: "handle-" + userID,
		TeamID: "T1",
	}
}
