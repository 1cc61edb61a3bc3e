package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"carebear/pkg/models"
)

// MemoryIssueStore keeps issues in process memory. It is meant for local
// development and tests.
type MemoryIssueStore struct {
	mu     sync.RWMutex
	issues map[string]models.Issue
}

// NewMemoryIssueStore creates an empty MemoryIssueStore.
func NewMemoryIssueStore() *MemoryIssueStore {
	return &MemoryIssueStore{issues: make(map[string]models.Issue)}
}

func (s *MemoryIssueStore) Create(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; ok {
		return nil
	}
	s.issues[issue.ID] = *issue
	return nil
}

func (s *MemoryIssueStore) Get(_ context.Context, id string) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return &issue, nil
}

func (s *MemoryIssueStore) List(_ context.Context) ([]*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issues := make([]*models.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		issue := issue
		issues = append(issues, &issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].CreatedAt.Equal(issues[j].CreatedAt) {
			return issues[i].ID < issues[j].ID
		}
		return issues[i].CreatedAt.After(issues[j].CreatedAt)
	})
	return issues, nil
}

func (s *MemoryIssueStore) Update(_ context.Context, issue *models.Issue, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.issues[issue.ID]
	if !ok {
		return fmt.Errorf("issue %s: %w", issue.ID, ErrNotFound)
	}
	if stored.Status != expected {
		return fmt.Errorf("issue %s is %s, not %s: %w", issue.ID, stored.Status, expected, ErrConflict)
	}
	stored.Rank = issue.Rank
	stored.Status = issue.Status
	stored.UpdatedAt = issue.UpdatedAt
	s.issues[issue.ID] = stored
	return nil
}

func (s *MemoryIssueStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	delete(s.issues, id)
	return nil
}

func (s *MemoryIssueStore) Ping(context.Context) error { return nil }
