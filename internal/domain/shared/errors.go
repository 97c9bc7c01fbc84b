// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Progression errors
	ErrNotEligible     = errors.New("not eligible")
	ErrAlreadyRecorded = errors.New("already recorded")

	// Infrastructure errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrTimeout                = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "gamification", "graduation"
	Op      string // Operation that failed, e.g., "AwardXP", "Approve"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// InvalidInput builds a validation error for the given domain and operation.
func InvalidInput(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrInvalidInput, message)
}

// Student domain errors
var (
	ErrStudentNotFound    = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrEnrollmentNotFound = NewDomainError("student", "FindEnrollment", ErrNotFound, "enrollment not found")
	ErrCourseNotFound     = NewDomainError("student", "FindCourse", ErrNotFound, "course not found")
	ErrInvalidCategory    = NewDomainError("student", "Validate", ErrInvalidInput, "unknown student category")
	ErrNegativeXP         = NewDomainError("student", "AwardXP", ErrNegativeValue, "XP amount cannot be negative")
)

// Gamification domain errors
var (
	ErrChallengeNotFound   = NewDomainError("gamification", "FindChallenge", ErrNotFound, "challenge not found")
	ErrAttemptNotFound     = NewDomainError("gamification", "FindAttempt", ErrNotFound, "challenge attempt not found")
	ErrEvaluationNotFound  = NewDomainError("gamification", "FindEvaluation", ErrNotFound, "evaluation not found")
	ErrAchievementNotFound = NewDomainError("gamification", "FindAchievement", ErrNotFound, "achievement not found")
	ErrInvalidAccuracy     = NewDomainError("gamification", "Validate", ErrValueOutOfRange, "accuracy must be between 0 and 100")
	ErrNegativeMetric      = NewDomainError("gamification", "Validate", ErrNegativeValue, "metric cannot be negative")
	ErrUnknownCriteria     = NewDomainError("gamification", "Evaluate", ErrInvalidInput, "unknown achievement criteria type")
	ErrAchievementUnlocked = NewDomainError("gamification", "Unlock", ErrAlreadyRecorded, "achievement already unlocked")
)

// Graduation domain errors
var (
	ErrRequirementsNotFound = NewDomainError("graduation", "FindRequirements", ErrNotFound, "graduation requirements not found")
	ErrInvalidRating        = NewDomainError("graduation", "Validate", ErrValueOutOfRange, "quality rating must be between 1 and 5")
	ErrNegativeRepetitions  = NewDomainError("graduation", "Validate", ErrNegativeValue, "repetitions cannot be negative")
	ErrNotEligibleForBelt   = NewDomainError("graduation", "Approve", ErrNotEligible, "student is not eligible for belt change")
	ErrDegreeRecorded       = NewDomainError("graduation", "RecordDegree", ErrAlreadyRecorded, "degree already recorded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsNotEligible checks if the error is a graduation eligibility failure.
func IsNotEligible(err error) bool {
	return errors.Is(err, ErrNotEligible)
}

// IsAlreadyRecorded checks if a grant was rejected because it already exists.
func IsAlreadyRecorded(err error) bool {
	return errors.Is(err, ErrAlreadyRecorded)
}

// IsConcurrentModification reports a write that lost an optimistic
// version check.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
