package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services.
var (
	// ErrPresetNotFound indicates an unknown preset id.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrStreamNotRunning indicates an operation that requires a started stream.
	ErrStreamNotRunning = errors.New("stream is not running")

	// ErrPresetMismatch indicates a request against a different preset than
	// the one currently streaming.
	ErrPresetMismatch = errors.New("preset does not match running stream")

	// ErrNoPool indicates an empty motion pool for the requested selection.
	ErrNoPool = errors.New("no motion clips available for selection")

	// ErrNoAudioTrack indicates a source file without an audio stream.
	ErrNoAudioTrack = errors.New("source has no audio track")

	// ErrUnknownAction indicates an action id not registered in the preset.
	ErrUnknownAction = errors.New("unknown action")

	// ErrReservedAction indicates a custom action using a reserved name.
	ErrReservedAction = errors.New("action name is reserved")

	// ErrTextRequired indicates a speak action without text or audio.
	ErrTextRequired = errors.New("speak action requires text or audio")

	// ErrDurationRequired indicates an idle action without a positive durationMs.
	ErrDurationRequired = errors.New("idle action requires a positive durationMs")

	// ErrEmptyBatch indicates a batch payload without requests.
	ErrEmptyBatch = errors.New("at least one request is required")
)

// ActionProcessingError wraps a per-action failure with its 1-based request
// index and the HTTP status code the batch should fail with. The first
// failing action aborts the whole batch.
type ActionProcessingError struct {
	RequestID  int
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *ActionProcessingError) Error() string {
	return fmt.Sprintf("request %d: %v", e.RequestID, e.Err)
}

// Unwrap returns the wrapped error.
func (e *ActionProcessingError) Unwrap() error {
	return e.Err
}

// NewActionError wraps err for the given request index. Validation errors map
// to 400, everything else to 500.
func NewActionError(requestID int, err error) *ActionProcessingError {
	status := 500
	if IsValidationError(err) {
		status = 400
	}
	return &ActionProcessingError{RequestID: requestID, StatusCode: status, Err: err}
}

// IsValidationError reports whether err is a client-fault validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTextRequired) ||
		errors.Is(err, ErrDurationRequired) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrReservedAction) ||
		errors.Is(err, ErrPresetNotFound) ||
		errors.Is(err, ErrEmptyBatch)
}
