package correlation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-process Store. It is only correct while a single
// server process receives every callback.
type MemoryStore struct {
	mu          sync.Mutex
	workflows   map[string]Workflow            // key: user ID
	forms       map[string]string              // key: form ID, value: user ID
	formsByUser map[string]map[string]struct{} // key: user ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]Workflow),
		forms:       make(map[string]string),
		formsByUser: make(map[string]map[string]struct{}),
	}
}

// Put stores wf under its user key.
func (s *MemoryStore) Put(_ context.Context, wf Workflow) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.FormID != "" {
		if err := s.bindLocked(wf.UserID, wf.FormID); err != nil {
			return nil, err
		}
	}
	var replaced *Workflow
	if prev, ok := s.workflows[wf.UserID]; ok {
		replaced = &prev
	}
	s.workflows[wf.UserID] = wf
	return replaced, nil
}

// Get returns the workflow key resolves to.
func (s *MemoryStore) Get(_ context.Context, key Key) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.resolveLocked(key)
	if !ok {
		return Workflow{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return s.workflows[userID], nil
}

// Update applies fn under the store lock.
func (s *MemoryStore) Update(_ context.Context, key Key, fn func(*Workflow) error) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.resolveLocked(key)
	if !ok {
		return Workflow{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	wf := s.workflows[userID]
	if err := fn(&wf); err != nil {
		return Workflow{}, err
	}
	if wf.UserID != userID {
		return Workflow{}, fmt.Errorf("%s: user id is immutable", key)
	}
	if wf.FormID != "" {
		if err := s.bindLocked(userID, wf.FormID); err != nil {
			return Workflow{}, err
		}
	}
	s.workflows[userID] = wf
	return wf, nil
}

// Remove retires the user's workflow if it is still workflowID.
func (s *MemoryStore) Remove(_ context.Context, userID, workflowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[userID]
	if !ok || wf.ID != workflowID {
		return false, nil
	}
	delete(s.workflows, userID)
	for formID := range s.formsByUser[userID] {
		delete(s.forms, formID)
	}
	delete(s.formsByUser, userID)
	return true, nil
}

// List returns every stored workflow, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		result = append(result, wf)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Len returns the number of stored workflows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workflows)
}

func (s *MemoryStore) resolveLocked(key Key) (string, bool) {
	userID := key.id
	if key.kind == formKey {
		var ok bool
		userID, ok = s.forms[key.id]
		if !ok {
			return "", false
		}
	}
	_, ok := s.workflows[userID]
	return userID, ok
}

func (s *MemoryStore) bindLocked(userID, formID string) error {
	if owner, ok := s.forms[formID]; ok && owner != userID {
		return fmt.Errorf("form %s: %w", formID, ErrFormBound)
	}
	s.forms[formID] = userID
	set, ok := s.formsByUser[userID]
	if !ok {
		set = make(map[string]struct{})
		s.formsByUser[userID] = set
	}
	set[formID] = struct{}{}
	return nil
}
