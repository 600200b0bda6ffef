package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an engine error.
type ErrorType uint

const (
	// ErrorTypeUnknown represents an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeInvalidArgument represents an invalid argument error
	ErrorTypeInvalidArgument
	// ErrorTypeNotFound represents a not found error
	ErrorTypeNotFound
	// ErrorTypeAlreadyExists represents an already exists error
	ErrorTypeAlreadyExists
	// ErrorTypeInvalidPosition represents a position that cannot be priced or held
	ErrorTypeInvalidPosition
	// ErrorTypeMissingExposure represents a position without a factor mapping
	ErrorTypeMissingExposure
	// ErrorTypeInsufficientHistory represents a return series shorter than the lookback
	ErrorTypeInsufficientHistory
	// ErrorTypeNonPositiveVariance represents a negative portfolio variance
	ErrorTypeNonPositiveVariance
	// ErrorTypeNonPSDCovariance represents a covariance matrix that fails factorization
	ErrorTypeNonPSDCovariance
	// ErrorTypeUnknownStep represents a resolution step outside its plan
	ErrorTypeUnknownStep
	// ErrorTypeDataUnavailable represents a failed external data fetch
	ErrorTypeDataUnavailable
	// ErrorTypeInternal represents an internal error
	ErrorTypeInternal
)

// AppError is the error value returned across package boundaries. The message
// always carries the offending identifiers (symbol, factor, model id) so a
// caller can diagnose without inspecting engine state.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown if err is not an
// AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// New creates a new untyped error with the given message.
func New(message string) error {
	return &AppError{Type: ErrorTypeUnknown, Message: message}
}

// Newf creates a new untyped error with the given format and arguments.
func Newf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeUnknown, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a message, preserving the wrapped error's type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: TypeOf(err), Message: message, Err: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

func typed(t ErrorType, format string, args ...interface{}) error {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument creates a new InvalidArgument error.
func InvalidArgument(format string, args ...interface{}) error {
	return typed(ErrorTypeInvalidArgument, format, args...)
}

// NotFound creates a new NotFound error.
func NotFound(format string, args ...interface{}) error {
	return typed(ErrorTypeNotFound, format, args...)
}

// AlreadyExists creates a new AlreadyExists error.
func AlreadyExists(format string, args ...interface{}) error {
	return typed(ErrorTypeAlreadyExists, format, args...)
}

// InvalidPosition creates a new InvalidPosition error for the given symbol.
func InvalidPosition(symbol, reason string) error {
	return typed(ErrorTypeInvalidPosition, "invalid position %s: %s", symbol, reason)
}

// MissingExposure creates a new MissingExposure error for a symbol/factor pair.
func MissingExposure(symbol, factor string) error {
	return typed(ErrorTypeMissingExposure, "position %s has no exposure mapping for factor %s", symbol, factor)
}

// InsufficientHistory creates a new InsufficientHistory error.
func InsufficientHistory(id string, have, want int) error {
	return typed(ErrorTypeInsufficientHistory, "insufficient history for %s: have %d observations, need %d", id, have, want)
}

// NonPositiveVariance creates a new NonPositiveVariance error.
func NonPositiveVariance(variance float64) error {
	return typed(ErrorTypeNonPositiveVariance, "portfolio variance %g is negative; covariance matrix is not PSD", variance)
}

// NonPSDCovariance creates a new NonPSDCovariance error.
func NonPSDCovariance(detail string) error {
	return typed(ErrorTypeNonPSDCovariance, "covariance matrix is not positive semi-definite: %s", detail)
}

// UnknownStep creates a new UnknownStep error.
func UnknownStep(planID, stepID string) error {
	return typed(ErrorTypeUnknownStep, "step %s does not belong to plan %s", stepID, planID)
}

// DataUnavailable creates a new DataUnavailable error for a symbol or factor id.
func DataUnavailable(id string) error {
	return typed(ErrorTypeDataUnavailable, "no market data available for %s", id)
}

// Internal creates a new Internal error.
func Internal(format string, args ...interface{}) error {
	return typed(ErrorTypeInternal, format, args...)
}
