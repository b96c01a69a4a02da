package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies engine failures. Every error surfaced by the facade
// carries one of these kinds; raw collaborator errors never escape.
type ErrorKind string

const (
	// ErrorKindUnknownScope indicates de-anonymization was requested for a
	// scope that has no mappings. Recoverable: the caller should check its
	// scope parameters.
	ErrorKindUnknownScope ErrorKind = "unknown_scope"
	// ErrorKindInvalidDocument indicates structured input that is cyclic,
	// too deeply nested, or contains an unsupported node type.
	ErrorKindInvalidDocument ErrorKind = "invalid_document"
	// ErrorKindGenerationExhausted indicates the replacement catalog could
	// not produce a unique fake value within the retry budget.
	ErrorKindGenerationExhausted ErrorKind = "generation_exhausted"
	// ErrorKindStoreUnavailable indicates a storage timeout or connection
	// failure. Retryable by the caller with backoff.
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"
	// ErrorKindInvalidRequest indicates a malformed request from the caller.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
)

// EngineError is the base error type for all engine failures.
// Error messages never contain protected values.
type EngineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Underlying cause for debugging; not exposed to clients.
	Err error `json:"-"`
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// HTTPStatusCode maps the error kind to an HTTP status.
func (e *EngineError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindUnknownScope:
		return http.StatusNotFound
	case ErrorKindInvalidDocument, ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case ErrorKindStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrorKindGenerationExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *EngineError) Retryable() bool {
	return e.Kind == ErrorKindStoreUnavailable
}

// NewUnknownScopeError creates an UnknownScope error.
func NewUnknownScopeError(message string) *EngineError {
	return &EngineError{Kind: ErrorKindUnknownScope, Message: message}
}

// NewInvalidDocumentError creates an InvalidDocument error.
func NewInvalidDocumentError(message string) *EngineError {
	return &EngineError{Kind: ErrorKindInvalidDocument, Message: message}
}

// NewGenerationExhaustedError creates a GenerationExhausted error.
func NewGenerationExhaustedError(entityType EntityType) *EngineError {
	return &EngineError{
		Kind:    ErrorKindGenerationExhausted,
		Message: fmt.Sprintf("replacement catalog exhausted for entity type %s", entityType),
	}
}

// NewStoreUnavailableError wraps a storage failure.
func NewStoreUnavailableError(err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindStoreUnavailable,
		Message: "storage operation timed out or failed",
		Err:     err,
	}
}

// NewInvalidRequestError creates an InvalidRequest error.
func NewInvalidRequestError(message string, err error) *EngineError {
	return &EngineError{Kind: ErrorKindInvalidRequest, Message: message, Err: err}
}

// AsEngineError extracts an EngineError from err, wrapping unknown errors as
// StoreUnavailable so no raw collaborator error escapes the facade boundary.
func AsEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return NewStoreUnavailableError(err)
}
