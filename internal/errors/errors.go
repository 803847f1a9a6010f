// Package errors provides categorized errors with a fluent builder for the attendance pipeline
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"face-attendance/internal/models"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryTransient     ErrorCategory = "transient-dependency"
	CategoryInvariant     ErrorCategory = "invariant-violation"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNetwork       ErrorCategory = "network"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryDelivery      ErrorCategory = "delivery"
	CategoryQueue         ErrorCategory = "retry-queue"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when no component was given.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Reason    models.RejectReason
	Context   map[string]any
	Timestamp time.Time
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	reason    models.RejectReason
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Reason attaches a reject reason; it implies CategoryValidation unless set otherwise
func (eb *ErrorBuilder) Reason(reason models.RejectReason) *ErrorBuilder {
	eb.reason = reason
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing adds operation timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	return eb.Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Reason:    eb.reason,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Err == nil {
		ee.Err = stderrors.New("unspecified error")
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		if ee.Reason != "" {
			ee.Category = CategoryValidation
		} else {
			ee.Category = CategoryGeneric
		}
	}
	return ee
}

// Convenience functions for common error patterns

// ValidationError creates a rejected-detection error carrying its reason
func ValidationError(reason models.RejectReason, format string, args ...any) *EnhancedError {
	return Newf(format, args...).
		Component("ingestor").
		Category(CategoryValidation).
		Reason(reason).
		Build()
}

// TransientError marks err as a temporary dependency failure worth retrying
func TransientError(component string, err error) *EnhancedError {
	return New(err).
		Component(component).
		Category(CategoryTransient).
		Build()
}

// NotFoundError creates a not-found error
func NotFoundError(component, format string, args ...any) *EnhancedError {
	return Newf(format, args...).
		Component(component).
		Category(CategoryNotFound).
		Build()
}

// Standard library passthrough functions

// NewStd creates a new standard error
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsTransient checks whether err should be retried rather than rejected
func IsTransient(err error) bool {
	return IsCategory(err, CategoryTransient)
}

// RejectReasonOf extracts the reject reason of a validation error
func RejectReasonOf(err error) (models.RejectReason, bool) {
	var enhancedErr *EnhancedError
	if As(err, &enhancedErr) && enhancedErr.Reason != "" {
		return enhancedErr.Reason, true
	}
	return "", false
}
