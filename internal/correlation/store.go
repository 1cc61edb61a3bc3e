package correlation

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means no workflow is bound to the key: it was never
	// created, already reached a terminal state, or was evicted.
	ErrNotFound = errors.New("correlation: workflow not found")

	// ErrFormBound means the form id already resolves to another user.
	ErrFormBound = errors.New("correlation: form already bound to another workflow")
)

type keyKind int

const (
	userKey keyKind = iota
	formKey
)

// Key locates a workflow either by the reporting user or by its form.
type Key struct {
	kind keyKind
	id   string
}

// UserKey is the primary key of a workflow.
func UserKey(userID string) Key { return Key{kind: userKey, id: userID} }

// FormKey is the secondary key bound once the form is open.
func FormKey(formID string) Key { return Key{kind: formKey, id: formID} }

// ID returns the raw identifier.
func (k Key) ID() string { return k.id }

func (k Key) String() string {
	if k.kind == formKey {
		return "form:" + k.id
	}
	return "user:" + k.id
}

// Store holds the live state of every in-flight workflow.
//
// Implementations must apply Update atomically per workflow: fn runs inside
// the critical section and must only touch the workflow in memory.
type Store interface {
	// Put stores wf under its user key, replacing the user's current
	// workflow if there is one. The replaced workflow is returned. Form ids
	// bound to the replaced workflow keep resolving to the user.
	Put(ctx context.Context, wf Workflow) (replaced *Workflow, err error)

	// Get returns a copy of the workflow key resolves to, or ErrNotFound.
	Get(ctx context.Context, key Key) (Workflow, error)

	// Update applies fn to the workflow key resolves to and stores the
	// result. If fn returns an error nothing is written and the error is
	// returned unchanged. Setting FormID binds it as a secondary key.
	Update(ctx context.Context, key Key, fn func(*Workflow) error) (Workflow, error)

	// Remove retires the user's workflow and every form id resolving to it,
	// but only while the stored workflow still has workflowID. It reports
	// whether anything was removed.
	Remove(ctx context.Context, userID, workflowID string) (bool, error)

	// List returns copies of all stored workflows.
	List(ctx context.Context) ([]Workflow, error)
}
