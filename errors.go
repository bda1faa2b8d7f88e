package rowscope

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a find by identifier matches zero rows
// after the row filter has been applied.
var ErrNotFound = errors.New("rowscope: record not found")

// ConfigurationError reports an invalid entity, subtype or relation
// definition. It is raised eagerly at registration time; callers are
// expected to treat it as fatal during startup.
type ConfigurationError struct {
	Definition string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rowscope: invalid definition %q: %s", e.Definition, e.Reason)
}

// ConstraintViolationError reports a write rejected either by the storage
// backend (uniqueness, foreign key, check constraints) or by an enforced
// subtype predicate.
type ConstraintViolationError struct {
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rowscope: constraint %q violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("rowscope: constraint %q violated", e.Constraint)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// RelationResolutionError reports that a relation could not be resolved
// for a record, typically because the relation name is unknown for the
// record's base entity or the record came through a subtype chain deeper
// than one level.
type RelationResolutionError struct {
	Relation string
	Reason   string
}

func (e *RelationResolutionError) Error() string {
	return fmt.Sprintf("rowscope: cannot resolve relation %q: %s", e.Relation, e.Reason)
}

// BackendError wraps a failure surfaced by the storage backend. It is
// propagated unchanged to the caller; no retry happens at this layer.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("rowscope: backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// wrapBackendErr classifies an error coming back from a Backend call.
// Errors already mapped onto the taxonomy pass through untouched.
func wrapBackendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var constraintErr *ConstraintViolationError
	if errors.As(err, &constraintErr) {
		return err
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
