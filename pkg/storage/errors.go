package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by storage backends.
//
// Typed errors (NotFoundError, AlreadyExistsError) unwrap to these
// sentinels, so callers can use errors.Is without knowing the concrete
// error type.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a resource with the same ID already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotSupported indicates the backend does not implement the operation.
	ErrNotSupported = errors.New("operation not supported by this backend")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("storage backend is closed")
)

// NotFoundError provides details about a missing resource.
type NotFoundError struct {
	ResourceType string // "scan", "data file"
	ResourceID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceID string) error {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// InvalidInputError indicates a request parameter failed validation.
type InvalidInputError struct {
	Message string
	Field   string
}

func (e *InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input (%s): %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// NewInvalidInputError creates an InvalidInputError with a human-readable
// message and the name of the offending field.
func NewInvalidInputError(message, field string) error {
	return &InvalidInputError{Message: message, Field: field}
}

// AlreadyExistsError indicates a create collided with an existing resource.
type AlreadyExistsError struct {
	ResourceType string
	ResourceID   string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.ResourceType, e.ResourceID)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// NewAlreadyExistsError creates an AlreadyExistsError for the given resource.
func NewAlreadyExistsError(resourceType, resourceID string) error {
	return &AlreadyExistsError{ResourceType: resourceType, ResourceID: resourceID}
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err indicates invalid input.
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// IsAlreadyExists reports whether err indicates a duplicate resource.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
