package roadmap

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts and 5xx/429
	// responses from the reasoning provider. Recoverable.
	ErrProviderUnavailable = errors.New("reasoning provider unavailable")

	// ErrProviderError covers non-2xx responses and explicit error
	// payloads. Recoverable.
	ErrProviderError = errors.New("reasoning provider error")

	// ErrSchemaViolation marks provider output that cannot be turned into
	// a roadmap. Recoverable.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrLowConfidenceOutput marks provider output that needed too many
	// repairs to be trusted. Recoverable.
	ErrLowConfidenceOutput = errors.New("low confidence output")

	// ErrConcurrentAdjustment is returned when another adjustment for the
	// same student is in flight or won the write. The caller retries.
	ErrConcurrentAdjustment = errors.New("concurrent adjustment")

	// ErrAdjustmentDegraded means the roadmap is still valid but the
	// adjustment only recorded patterns.
	ErrAdjustmentDegraded = errors.New("adjustment degraded")

	// ErrInvalidRoadmap means a roadmap failed its structural check.
	ErrInvalidRoadmap = errors.New("invalid roadmap")

	// ErrNotFound means no roadmap is stored for the student.
	ErrNotFound = errors.New("roadmap not found")
)

// SchemaViolationError names the offending field of a rejected payload.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrSchemaViolation, e.Field, e.Reason)
}

func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}
