package base

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ===================================================================
// CUSTOM ERROR TYPES
// ===================================================================

// RepositoryError represents base repository error
type RepositoryError struct {
	Operation string
	Table     string
	Message   string
	Cause     error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to %s %s: %s (caused by: %v)", e.Operation, e.Table, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Table, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// EntityNotFoundError represents entity not found error
type EntityNotFoundError struct {
	Table      string
	Identifier string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with %s not found", e.Table, e.Identifier)
}

// DuplicateEntityError represents duplicate entity error
type DuplicateEntityError struct {
	Table string
	Field string
	Value string
}

func (e *DuplicateEntityError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s already exists", e.Table)
	}
	return fmt.Sprintf("%s with %s '%s' already exists", e.Table, e.Field, e.Value)
}

// ValidationError represents validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s (value: %s): %s", e.Field, e.Value, e.Message)
}

// ===================================================================
// ERROR CONSTRUCTORS
// ===================================================================

func NewRepositoryError(operation, table, message string, cause error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Table:     table,
		Message:   message,
		Cause:     cause,
	}
}

func NewEntityNotFoundError(table, identifier string) *EntityNotFoundError {
	return &EntityNotFoundError{
		Table:      table,
		Identifier: identifier,
	}
}

func NewDuplicateEntityError(table, field, value string) *DuplicateEntityError {
	return &DuplicateEntityError{
		Table: table,
		Field: field,
		Value: value,
	}
}

func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ===================================================================
// ERROR HANDLING HELPERS
// ===================================================================

// HandleDBError handles database errors with consistent error wrapping
func HandleDBError(operation, table, identifier string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewEntityNotFoundError(table, identifier)
	}
	if IsUniqueViolation(err) {
		return NewDuplicateEntityError(table, "", "")
	}
	return NewRepositoryError(operation, table, "database operation failed", err)
}

// WrapDBError wraps database error with operation context
func WrapDBError(operation, table string, err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return NewDuplicateEntityError(table, "", "")
	}
	return NewRepositoryError(operation, table, "database operation failed", err)
}

// IsUniqueViolation recognizes unique-constraint failures from either
// driver, translated or not.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func IsEntityNotFound(err error) bool {
	var entityNotFoundError *EntityNotFoundError
	return errors.As(err, &entityNotFoundError)
}

func IsDuplicateEntity(err error) bool {
	var duplicateEntityError *DuplicateEntityError
	return errors.As(err, &duplicateEntityError)
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// ===================================================================
// ERROR MESSAGE HELPERS
// ===================================================================

// GetErrorMessage extracts user-friendly error message
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		notFound  *EntityNotFoundError
		duplicate *DuplicateEntityError
		invalid   *ValidationError
		repoErr   *RepositoryError
	)
	switch {
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &duplicate):
		return duplicate.Error()
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &repoErr):
		return fmt.Sprintf("Database operation failed: %s", repoErr.Message)
	default:
		return "An unexpected error occurred"
	}
}
