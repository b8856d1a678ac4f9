package spanstore

import (
	"errors"
	"fmt"
)

// Common errors returned by the store.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrUnknownField is returned when a filter names a field that is not an indexed scalar.
	ErrUnknownField = errors.New("unknown filter field")

	// ErrInvalidFilter is returned when a filter value has the wrong type for its field.
	ErrInvalidFilter = errors.New("invalid filter value")

	// ErrMigrationRequired is returned by Open when the backing file holds
	// data this build cannot read and DeleteIfMigrationNeeded is not set.
	ErrMigrationRequired = errors.New("existing data is incompatible with this schema")

	// ErrStoreInvalidated is the cause delivered to subscriptions when the
	// backing file is removed or replaced underneath an open store.
	ErrStoreInvalidated = errors.New("backing file was removed or replaced")

	// ErrSubscriptionNotFound is returned when an observer reference cannot be resolved.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Error kinds. Typed errors below match these with errors.Is.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTransactionAborted  = errors.New("transaction aborted")
	ErrObservation         = errors.New("observation error")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ConfigError is returned by Open when the backing location is unusable.
// Extractable via errors.As(). Supports Unwrap().
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// ConstraintError is returned when a write collides with an existing primary key.
// The transaction is rolled back; callers may retry with a new ID.
type ConstraintError struct {
	Field string
	Value string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation: %s %q already exists", e.Field, e.Value)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }

// TxError is returned when a write transaction fails part way.
// Nothing from the transaction is visible afterwards.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction aborted: %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

func (e *TxError) Is(target error) bool { return target == ErrTransactionAborted }

// ObservationError is carried by a ChangeError event. It ends the
// subscription that received it and nothing else.
type ObservationError struct {
	Err error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation failed: %v", e.Err)
}

func (e *ObservationError) Unwrap() error { return e.Err }

func (e *ObservationError) Is(target error) bool { return target == ErrObservation }
