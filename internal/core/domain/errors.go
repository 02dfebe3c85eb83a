// Package domain defines the core domain models for EntMesh.
package domain

import (
	"errors"
	"fmt"
)

// EntityError represents an entity-level error with a structured error code.
// Error codes follow the format defined in specs/governance/error-codes.md.
//
// @req RQ-0104
// @design DS-0104
type EntityError struct {
	Code        string // Error code (e.g., "EM-ENTY-4040")
	Message     string // Human-readable message
	EntityClass string // Entity class name, if known
	EntityName  string // Entity instance name, if known
	Details     string // Optional additional details
	Cause       error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *EntityError) Error() string {
	target := ""
	if e.EntityClass != "" || e.EntityName != "" {
		target = fmt.Sprintf(" (%s/%s)", e.EntityClass, e.EntityName)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s%s: %s", e.Code, e.Message, target, e.Details)
	}
	return fmt.Sprintf("[%s] %s%s", e.Code, e.Message, target)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *EntityError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
// Two EntityErrors compare equal when their codes match.
func (e *EntityError) Is(target error) bool {
	t, ok := target.(*EntityError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEntityError creates a new EntityError with the given code and message.
//
// @design DS-0104
func NewEntityError(code, message string) *EntityError {
	return &EntityError{
		Code:    code,
		Message: message,
	}
}

// ForEntity returns a copy of the error bound to an entity class and name.
func (e *EntityError) ForEntity(entityClass, entityName string) *EntityError {
	return &EntityError{
		Code:        e.Code,
		Message:     e.Message,
		EntityClass: entityClass,
		EntityName:  entityName,
		Details:     e.Details,
		Cause:       e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EntityError) WithDetails(details string) *EntityError {
	return &EntityError{
		Code:        e.Code,
		Message:     e.Message,
		EntityClass: e.EntityClass,
		EntityName:  e.EntityName,
		Details:     details,
		Cause:       e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *EntityError) WithCause(cause error) *EntityError {
	return &EntityError{
		Code:        e.Code,
		Message:     e.Message,
		EntityClass: e.EntityClass,
		EntityName:  e.EntityName,
		Details:     e.Details,
		Cause:       cause,
	}
}

// IsEntityError checks if an error is an EntityError with the given code.
// If code is empty, it only checks if the error is an EntityError.
//
// @design DS-0104
func IsEntityError(err error, code string) bool {
	var ee *EntityError
	if errors.As(err, &ee) {
		if code == "" {
			return true
		}
		return ee.Code == code
	}
	return false
}

// ErrorCode extracts the error code from an error if it is an EntityError.
func ErrorCode(err error) string {
	var ee *EntityError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// WrapUserFailure wraps an unexpected failure raised by entity business
// logic into a user-facing error carrying the entity class and name.
//
// Unexpected failures are never sent unwrapped: the caller only ever sees
// an EntityError with the EM-USER-5000 code.
//
// @req RQ-0104 § 2.3
func WrapUserFailure(entityClass, entityName string, cause error) *EntityError {
	return &EntityError{
		Code:        CodeUserFailure,
		Message:     "unexpected failure in entity logic",
		EntityClass: entityClass,
		EntityName:  entityName,
		Cause:       cause,
	}
}

// Error codes.
const (
	CodeNotFound        = "EM-ENTY-4040"
	CodeAlreadyExists   = "EM-ENTY-4090"
	CodeVersionMismatch = "EM-ENTY-4120"
	CodeNoService       = "EM-ENTY-4130"
	CodeNotFetched      = "EM-ENTY-4140"
	CodeUserFailure     = "EM-USER-5000"
	CodeInternal        = "EM-SYS-5000"
	CodeBadMessage      = "EM-SYS-4000"
)

// ============================================================================
// Entity Errors (ENTY)
// Reference: specs/governance/error-codes.md Section 3.2
// ============================================================================

var (
	// ErrEntityNotFound indicates no entity exists for the class and name.
	ErrEntityNotFound = NewEntityError(CodeNotFound, "entity not found")

	// ErrEntityAlreadyExists indicates a create collided with a live entity.
	ErrEntityAlreadyExists = NewEntityError(CodeAlreadyExists, "entity already exists")

	// ErrVersionMismatch indicates the requested entity version does not
	// match the version offered by the registered service.
	ErrVersionMismatch = NewEntityError(CodeVersionMismatch, "entity version mismatch")

	// ErrNoService indicates no registered service handles the entity class.
	ErrNoService = NewEntityError(CodeNoService, "no service for entity class")

	// ErrNotFetched indicates a client operated on an entity it never fetched.
	ErrNotFetched = NewEntityError(CodeNotFetched, "entity not fetched by client")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an internal platform error.
	ErrInternal = NewEntityError(CodeInternal, "internal error")

	// ErrBadMessage indicates a malformed operation payload.
	ErrBadMessage = NewEntityError(CodeBadMessage, "malformed operation")
)
