package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryIngestion  Category = "ingestion"
	CategoryDeletion   Category = "deletion"
	CategoryGeneration Category = "generation"
	CategoryConfig     Category = "config"
	CategoryCatalog    Category = "catalog"

	// Resampler internals; surfaced to store callers wrapped in CategoryIngestion.
	CategoryDecode   Category = "decode"
	CategoryEncode   Category = "encode"
	CategoryPipeline Category = "pipeline"
)

// StoreError is the structured error type used throughout the module.
type StoreError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// New creates a non-retryable StoreError.
func New(category Category, op string, err error) *StoreError {
	return &StoreError{Category: category, Op: op, Err: err}
}

// Ingestion creates a retryable ingestion error. Processing failures may be
// transient (disk full, interrupted write) so callers are allowed to retry.
func Ingestion(op string, err error) *StoreError {
	return &StoreError{Category: CategoryIngestion, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsCategory reports whether the outermost StoreError in err's chain belongs
// to the given category.
func IsCategory(err error, cat Category) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category == cat
	}
	return false
}

// CategoryOf returns the category of the outermost StoreError, or "" if err
// carries none.
func CategoryOf(err error) Category {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }
func IsNotFound(err error) bool   { return IsCategory(err, CategoryNotFound) }
func IsIngestion(err error) bool  { return IsCategory(err, CategoryIngestion) }
func IsDeletion(err error) bool   { return IsCategory(err, CategoryDeletion) }

// Sentinel errors for common failure modes.
var (
	ErrInvalidDimension    = errors.New("dimension must be a positive integer or \"auto\"")
	ErrUnknownOption       = errors.New("unknown option, accepted options are \"crop\" and \"fill\"")
	ErrUnknownAnchor       = errors.New("unknown anchor strategy")
	ErrMalformedIdentifier = errors.New("malformed image identifier")
	ErrOriginalNotFound    = errors.New("original image not found")
	ErrUnsupportedFormat   = errors.New("unsupported image format")
	ErrEmptyInput          = errors.New("empty input")
	ErrTooLarge            = errors.New("image exceeds the configured size limit")
	ErrWorkerPoolFull      = errors.New("worker pool queue full")
	ErrStopped             = errors.New("worker pool stopped")
)
