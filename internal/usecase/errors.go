package usecase

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the use case. Callers branch on them with errors.Is.
var (
	ErrValidation            = errors.New("invalid input")
	ErrNoSubjectDetected     = errors.New("no face detected")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrPersistence           = errors.New("persistence failure")
	ErrNotFound              = errors.New("result not found")
)

// Validation failures the HTTP layer reports with a specific message. Both match ErrValidation.
var (
	ErrTextRequired  = fmt.Errorf("%w: text is required", ErrValidation)
	ErrImageTooLarge = fmt.Errorf("%w: image is too large", ErrValidation)
)

// Category is the stable, client-facing name of an error class.
type Category string

const (
	CategoryValidation            Category = "validation_error"
	CategoryNoSubjectDetected     Category = "no_subject_detected"
	CategoryClassifierUnavailable Category = "classifier_unavailable"
	CategoryPersistence           Category = "persistence_failure"
	CategoryNotFound              Category = "not_found"
	CategoryInternal              Category = "internal_error"
)

// CategoryOf maps err onto its Category. Unknown errors are internal.
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNoSubjectDetected):
		return CategoryNoSubjectDetected
	case errors.Is(err, ErrClassifierUnavailable):
		return CategoryClassifierUnavailable
	case errors.Is(err, ErrPersistence):
		return CategoryPersistence
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}
