// Package storage defines the repository interface the engine's callers
// implement, plus the error scheme shared by all backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
)

// ErrorType classifies storage failures.
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the error is a storage not-found condition.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == ErrNotFound
}

// DeleteScope selects what a delete removes.
type DeleteScope int

const (
	// DeleteSeries removes the master together with all its exceptions
	// and materialized occurrence copies, as one unit.
	DeleteSeries DeleteScope = iota
	// DeleteOccurrences removes only the materialized, non-exception
	// occurrence copies of a master.
	DeleteOccurrences
)

// Repository is the narrow persistence interface the engine's callers
// provide. Implementations must serialize concurrent writes to the same
// master; the engine assumes it is handed a consistent snapshot.
type Repository interface {
	// Get fetches a master or a specific instance/exception by
	// identifier ("<uid>" or "<uid>-<instance>").
	Get(ctx context.Context, id string) (*event.Event, error)

	// Put inserts or updates a record and returns the persisted
	// identifier.
	Put(ctx context.Context, ev *event.Event) (string, error)

	// Delete removes an event or its recurrence copies.
	Delete(ctx context.Context, uid string, scope DeleteScope) error

	// ListExceptions returns the stored exceptions of a master, ordered
	// by (instance, start). A non-empty instance filters to one slot.
	ListExceptions(ctx context.Context, masterUID string, instance string) ([]event.Event, error)

	// MaterializeOccurrences expands the master within the window and
	// joins the result against its stored exceptions, returning one
	// event record per concrete occurrence.
	MaterializeOccurrences(ctx context.Context, masterUID string, w recurrence.Window) ([]event.Event, error)
}

// Find is a lookup variant that folds the not-found case into an empty
// option; any other storage failure still surfaces as an error.
func Find(ctx context.Context, repo Repository, id string) (mo.Option[*event.Event], error) {
	ev, err := repo.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return mo.None[*event.Event](), nil
		}
		return mo.None[*event.Event](), err
	}
	return mo.Some(ev), nil
}
