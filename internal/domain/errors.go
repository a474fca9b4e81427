package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("not authorized")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
	ErrQueryTimeout = errors.New("statement timeout")
)

// Specific errors.
var (
	ErrResourceNotFound    = fmt.Errorf("resource: %w", ErrNotFound)
	ErrWorkspaceNotFound   = fmt.Errorf("workspace: %w", ErrNotFound)
	ErrStoreNotFound       = fmt.Errorf("store: %w", ErrNotFound)
	ErrLayerNotFound       = fmt.Errorf("layer: %w", ErrNotFound)
	ErrPublicationNotFound = fmt.Errorf("publication: %w", ErrNotFound)
	ErrStyleNotFound       = fmt.Errorf("style: %w", ErrNotFound)
	ErrNotSpatialized      = fmt.Errorf("resource has no geometry column: %w", ErrInvalidInput)
)

// NotFoundError names the missing object while still matching its sentinel.
type NotFoundError struct {
	Kind error  // One of the specific not-found sentinels
	Name string // Identifier that was looked up
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q was not found", kindName(e.Kind), e.Name)
}

// Unwrap returns the specific sentinel.
func (e *NotFoundError) Unwrap() error {
	return e.Kind
}

func kindName(kind error) string {
	switch kind {
	case ErrResourceNotFound:
		return "Resource"
	case ErrWorkspaceNotFound:
		return "Workspace"
	case ErrStoreNotFound:
		return "Store"
	case ErrLayerNotFound:
		return "Layer"
	case ErrPublicationNotFound:
		return "Publication"
	case ErrStyleNotFound:
		return "Style"
	default:
		return "Object"
	}
}

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ValidationErrors collects field errors the way CKAN reports them:
// a map of field name to messages.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap returns the underlying error type.
func (v ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// Fields returns the errors grouped by field, with fields in sorted order.
func (v ValidationErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, e := range v {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

// NewQueryTooLongError is the error reported when the datastore cancels a
// statement because of its statement timeout.
func NewQueryTooLongError() *ValidationError {
	return &ValidationError{
		Field:   "query",
		Message: "Query took too long",
	}
}

// DatastoreError represents an error during a datastore operation.
type DatastoreError struct {
	Op       string // Operation that failed (fields, add_column, update, ...)
	Resource string // Resource (table) identifier
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *DatastoreError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("datastore error during %s on %s: %v", e.Op, e.Resource, e.Err)
	}
	return fmt.Sprintf("datastore error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx answer from the remote catalog. It is fatal for
// the operation that received it.
type UpstreamError struct {
	Method string // HTTP method
	URL    string // Request URL
	Status int    // HTTP status code
	Body   string // Response body
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("geoserver %s %s returned %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Unwrap returns the underlying error type.
func (e *UpstreamError) Unwrap() error {
	return ErrUnavailable
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
