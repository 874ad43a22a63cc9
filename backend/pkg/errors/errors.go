package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents rejected caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing entity
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeStore represents an unreachable or failing graph store
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeGraph represents a query the graph engine rejected
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeIntegrity represents a broken uniqueness or cardinality rule
	ErrorTypeIntegrity ErrorType = "integrity"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind reports the error category. Typed errors inherit it through embedding.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned when caller input breaks one or more rules
type ErrValidation struct {
	*BaseError
	Problems []string
}

// NewValidationError collects every problem found in one input.
func NewValidationError(problems ...string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, strings.Join(problems, ", "), nil),
		Problems:  problems,
	}
}

// Lookup Errors

// ErrNotFound is returned when a referenced entity does not exist
type ErrNotFound struct {
	*BaseError
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, id), nil),
		Entity:    entity,
		ID:        id,
	}
}

// Store Errors

// ErrStoreUnavailable is returned when the graph store cannot serve a unit of work
type ErrStoreUnavailable struct {
	*BaseError
	Operation string
}

func NewStoreUnavailable(operation string, err error) *ErrStoreUnavailable {
	return &ErrStoreUnavailable{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("store unavailable: %s", operation), err),
		Operation: operation,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrIntegrityViolation is returned when a write would break a uniqueness or cardinality rule
type ErrIntegrityViolation struct {
	*BaseError
	Detail string
}

func NewIntegrityViolation(detail string, err error) *ErrIntegrityViolation {
	return &ErrIntegrityViolation{
		BaseError: NewBaseError(ErrorTypeIntegrity, fmt.Sprintf("integrity violation: %s", detail), err),
		Detail:    detail,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// TypeOf returns the category of the outermost typed error in the chain, or "".
func TypeOf(err error) ErrorType {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a rejected-input error.
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsIntegrity reports whether err is an integrity violation.
func IsIntegrity(err error) bool {
	return IsErrorType(err, ErrorTypeIntegrity)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Only store availability problems go away on their own
	return IsErrorType(err, ErrorTypeStore)
}
