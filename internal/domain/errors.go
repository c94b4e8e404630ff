// Package domain defines core types, interfaces, and errors for the
// scheduling backend.
package domain

import (
	"errors"
	"fmt"
)

// ErrGridDeleted signals that the target grid no longer exists upstream
// (HTTP 404 or a metadata body with deleted=true). The scheduler reacts by
// removing the schedule instead of recording a failure.
var ErrGridDeleted = errors.New("grid deleted")

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// InvalidScheduleError indicates that a query definition carries neither a
// cron expression nor a usable refresh interval.
type InvalidScheduleError struct {
	Message string
}

func (e *InvalidScheduleError) Error() string { return e.Message }

// ErrInvalidSchedule creates an InvalidScheduleError with a formatted message.
func ErrInvalidSchedule(format string, args ...interface{}) *InvalidScheduleError {
	return &InvalidScheduleError{Message: fmt.Sprintf(format, args...)}
}

// InvalidNameError indicates a query name exceeding the length bound.
type InvalidNameError struct {
	Message string
}

func (e *InvalidNameError) Error() string { return e.Message }

// ErrInvalidName creates an InvalidNameError with a formatted message.
func ErrInvalidName(format string, args ...interface{}) *InvalidNameError {
	return &InvalidNameError{Message: fmt.Sprintf(format, args...)}
}

// UnauthenticatedError indicates missing or unusable credentials for a
// requestor.
//
// The front end greps for "Unauthenticated" in error messages. Don't change
// the prefix.
type UnauthenticatedError struct {
	Message string
}

func (e *UnauthenticatedError) Error() string { return "Unauthenticated: " + e.Message }

// ErrUnauthenticated creates an UnauthenticatedError with a formatted message.
func ErrUnauthenticated(format string, args ...interface{}) *UnauthenticatedError {
	return &UnauthenticatedError{Message: fmt.Sprintf(format, args...)}
}

// QueryExecutionError wraps a data-source failure. The "QueryExecutionError:"
// prefix is part of the API contract; callers pattern-match on it.
type QueryExecutionError struct {
	Err error
}

func (e *QueryExecutionError) Error() string { return "QueryExecutionError: " + e.Err.Error() }

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// PlotlyAPIError wraps a failed call to the grid store API. The
// "PlotlyApiError:" prefix is part of the API contract.
type PlotlyAPIError struct {
	Err error
}

func (e *PlotlyAPIError) Error() string { return "PlotlyApiError: " + e.Err.Error() }

func (e *PlotlyAPIError) Unwrap() error { return e.Err }

// MetadataError wraps a grid metadata fetch/reconciliation failure. The
// "MetadataError:" prefix is part of the API contract.
type MetadataError struct {
	Err error
}

func (e *MetadataError) Error() string { return "MetadataError: " + e.Err.Error() }

func (e *MetadataError) Unwrap() error { return e.Err }
