package repository

import (
	"context"
	"errors"

	"carebear/pkg/models"
)

var (
	// ErrNotFound is returned when no issue has the requested id.
	ErrNotFound = errors.New("issue not found")
	// ErrConflict is returned by Update when the stored status is no longer
	// the one the caller read.
	ErrConflict = errors.New("issue changed concurrently")
)

// IssueStore is an interface for storing and retrieving issues.
type IssueStore interface {
	// Create stores a new issue. Creating an id that already exists is a
	// no-op, so a retried create never duplicates the record.
	Create(ctx context.Context, issue *models.Issue) error
	// Get retrieves an issue by its ID.
	Get(ctx context.Context, id string) (*models.Issue, error)
	// List returns every issue, newest first.
	List(ctx context.Context) ([]*models.Issue, error)
	// Update replaces the rank, status and updated time of an existing issue
	// whose stored status is still expected.
	Update(ctx context.Context, issue *models.Issue, expected models.Status) error
	// Delete removes an issue.
	Delete(ctx context.Context, id string) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
