package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeLoad represents malformed or inconsistent graph documents
	ErrorTypeLoad ErrorType = "load"
	// ErrorTypeStore represents persistence failures (file, Neo4j, SQLite)
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents rejected append requests
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeProfile represents unknown or invalid scoring profiles
	ErrorTypeProfile ErrorType = "profile"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
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

// Category reports the error type. Typed wrappers inherit it through embedding.
func (e *BaseError) Category() ErrorType {
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

// Load Errors

// ErrLoadFailed is returned when a graph document cannot be decoded or is inconsistent
type ErrLoadFailed struct {
	*BaseError
	Path string
}

func NewLoadFailed(path, reason string, err error) *ErrLoadFailed {
	return &ErrLoadFailed{
		BaseError: NewBaseError(ErrorTypeLoad, fmt.Sprintf("cannot load %s: %s", path, reason), err),
		Path:      path,
	}
}

// ErrDuplicateNode is returned when two nodes share an id
type ErrDuplicateNode struct {
	*BaseError
	NodeID string
}

func NewDuplicateNode(nodeID string) *ErrDuplicateNode {
	return &ErrDuplicateNode{
		BaseError: NewBaseError(ErrorTypeLoad, fmt.Sprintf("duplicate node id: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrDanglingEdge is returned when an edge endpoint names a node that does not exist
type ErrDanglingEdge struct {
	*BaseError
	EdgeID string
	NodeID string
}

func NewDanglingEdge(edgeID, nodeID string) *ErrDanglingEdge {
	return &ErrDanglingEdge{
		BaseError: NewBaseError(ErrorTypeLoad, fmt.Sprintf("edge %s references unknown node %s", edgeID, nodeID), nil),
		EdgeID:    edgeID,
		NodeID:    nodeID,
	}
}

// Store Errors

// ErrStoreWriteFailed is returned when a rewrite of the backing store fails
type ErrStoreWriteFailed struct {
	*BaseError
	Target string
}

func NewStoreWriteFailed(target string, err error) *ErrStoreWriteFailed {
	return &ErrStoreWriteFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("write failed: %s", target), err),
		Target:    target,
	}
}

// ErrStoreQueryFailed is returned when a backend query fails
type ErrStoreQueryFailed struct {
	*BaseError
	Query string
}

func NewStoreQueryFailed(query string, err error) *ErrStoreQueryFailed {
	return &ErrStoreQueryFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// Validation Errors

// ErrInvalidInput is returned when an appended node or edge fails validation
type ErrInvalidInput struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidInput(field, reason string) *ErrInvalidInput {
	return &ErrInvalidInput{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Profile Errors

// ErrProfileNotFound is returned when a scoring profile name is not registered
type ErrProfileNotFound struct {
	*BaseError
	Name string
}

func NewProfileNotFound(name string) *ErrProfileNotFound {
	return &ErrProfileNotFound{
		BaseError: NewBaseError(ErrorTypeProfile, fmt.Sprintf("unknown scoring profile: %s", name), nil),
		Name:      name,
	}
}

// ErrProfileInvalid is returned when a profile carries inconsistent settings
type ErrProfileInvalid struct {
	*BaseError
	Name   string
	Reason string
}

func NewProfileInvalid(name, reason string) *ErrProfileInvalid {
	return &ErrProfileInvalid{
		BaseError: NewBaseError(ErrorTypeProfile, fmt.Sprintf("profile %s: %s", name, reason), nil),
		Name:      name,
		Reason:    reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
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

type categorized interface {
	Category() ErrorType
}

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if c, ok := err.(categorized); ok && c.Category() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsLoadError reports whether err means the graph document was rejected at load.
func IsLoadError(err error) bool {
	return IsErrorType(err, ErrorTypeLoad)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// A rejected document stays rejected
	if IsErrorType(err, ErrorTypeLoad) || IsErrorType(err, ErrorTypeValidation) {
		return false
	}
	// Backend connectivity can recover
	return IsErrorType(err, ErrorTypeStore)
}
