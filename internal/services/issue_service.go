package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carebear/internal/logging"
	"carebear/internal/repository"
	"carebear/pkg/models"
)

const maxUpdateAttempts = 5

// IssueService is the dashboard's view of stored issues.
type IssueService struct {
	store   repository.IssueStore
	gateway PlatformGateway
	logger  *logging.Logger
	now     func() time.Time
}

// NewIssueService creates a new IssueService. gateway may be nil, in which
// case status changes are not announced.
func NewIssueService(store repository.IssueStore, gateway PlatformGateway, logger *logging.Logger) *IssueService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &IssueService{
		store:   store,
		gateway: gateway,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns every issue, newest first.
func (s *IssueService) List(ctx context.Context) ([]*models.Issue, error) {
	return s.store.List(ctx)
}

// Get retrieves one issue.
func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	return s.store.Get(ctx, id)
}

// Update applies patch to a stored issue. The write only lands if the status
// read beforehand is still stored, so the announced "from" status is the one
// actually replaced. When the status changes a reply is posted into the
// flagged message's thread; failing to post it does not fail the update.
func (s *IssueService) Update(ctx context.Context, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	for attempt := 1; ; attempt++ {
		issue, err := s.store.Get(ctx, patch.ID)
		if err != nil {
			return nil, err
		}
		previous := issue.Status

		patch.Apply(issue)
		issue.UpdatedAt = s.now()
		err = s.store.Update(ctx, issue, previous)
		if errors.Is(err, repository.ErrConflict) && attempt < maxUpdateAttempts {
			s.logger.Debug("Issue changed during update, retrying", "issue_id", patch.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		if issue.Status != previous {
			s.announceStatus(ctx, issue, previous)
		}
		return issue, nil
	}
}

// Delete removes an issue.
func (s *IssueService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: issue id is required", ErrInvalidPatch)
	}
	return s.store.Delete(ctx, id)
}

func (s *IssueService) announceStatus(ctx context.Context, issue *models.Issue, previous models.Status) {
	if s.gateway == nil || issue.Message.Channel.ID == "" {
		return
	}
	text := fmt.Sprintf("The issue raised from this message moved from *%s* to *%s*.", previous, issue.Status)
	err := s.gateway.PostMessage(ctx, issue.Message.Channel.ID, issue.Message.Timestamp, text)
	if err != nil {
		s.logger.Warn("Failed to announce issue status change",
			"issue_id", issue.ID,
			"status", string(issue.Status),
			"error", err,
		)
	}
}
