package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/docview/internal/store"
)

var (
	// ErrNotFound is returned for an unknown document, mapping or session. Safe to retry after a fresh resolve.
	ErrNotFound = errors.New("not found")
	// ErrGone is returned when the document was deleted. Not retryable.
	ErrGone = errors.New("document is gone")
	// ErrIntegrity is returned on token collisions and invariant violations that survived a retry.
	ErrIntegrity = errors.New("integrity violation")
	// ErrUnavailable is returned on store timeouts and lock contention. Retry with backoff.
	ErrUnavailable = errors.New("store unavailable")
	// ErrAnomaly marks malformed but tolerated telemetry. It is reported, never returned as a failure.
	ErrAnomaly = errors.New("telemetry anomaly")
	// ErrPermissionDenied is returned when the caller lacks the admin capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidArgument is returned when a request cannot be processed as sent.
	ErrInvalidArgument = errors.New("invalid argument")
)

// storeError maps store failures onto the service taxonomy. Errors already in
// the taxonomy pass through unchanged.
func storeError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s: %v", ErrIntegrity, what, err)
	case errors.Is(err, store.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
	default:
		return err
	}
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound)
}
