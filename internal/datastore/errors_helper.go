package datastore

import (
	"fmt"

	"github.com/tphakala/fieldlog/internal/errors"
)

// Sentinel errors for datastore operations.
var (
	// ErrDraftChanged means the draft slot no longer holds the capture a
	// commit was prepared from; nothing was written.
	ErrDraftChanged = errors.NewStd("draft changed since it was read")

	// ErrEntryNotPending means the entry is missing or already finalized.
	ErrEntryNotPending = errors.NewStd("log entry is not pending")

	// ErrNotOpen is returned when the store is used before Open.
	ErrNotOpen = errors.NewStd("database connection is not initialized")
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// conflictError wraps a sentinel that signals a lost race rather than a failure.
func conflictError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for rejected input
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}
