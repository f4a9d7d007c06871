// Package apperr defines the error taxonomy shared by gateways, the session
// controller, and the transport layers.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrUnavailable      = errors.New("gateway unavailable")
	ErrConflict         = errors.New("operation already in progress")
	ErrCanceled         = errors.New("operation canceled")
)

// Kind is the caller-facing classification of a failure.
type Kind string

// Failure kinds.
const (
	KindValidation       Kind = "validation"
	KindNotAuthenticated Kind = "not-authenticated"
	KindNotFound         Kind = "not-found"
	KindUnavailable      Kind = "gateway-unavailable"
	KindConflict         Kind = "operation-conflict"
	KindCanceled         Kind = "canceled"
	KindUnknown          Kind = "unknown"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// ValidationError lists per-field problems. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError rejects a second concurrent request of the same kind.
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in progress", e.Op)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
