package harvest

import (
	"context"
	"errors"
	"fmt"
)

// ErrDataGap marks an attachment whose payload was missing or empty.
// It is only used for logging and counting; Run never returns it.
var ErrDataGap = errors.New("attachment payload missing")

// AuthError means no usable credential is available. It is fatal.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientServiceError wraps a failed call to the mail service.
// The core never retries; a host may.
type TransientServiceError struct {
	Op  string
	Err error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("mail service %s failed: %v", e.Op, e.Err)
}

func (e *TransientServiceError) Unwrap() error {
	return e.Err
}

// WriteError wraps a filesystem failure while persisting an attachment.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Outcome is the typed result of a pipeline stage.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeTransient failures may succeed if the run is repeated.
	OutcomeTransient
	// OutcomeFatal failures need intervention (credentials, disk, cancellation).
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify maps an error returned by the pipeline to an Outcome so a host
// can decide on a retry policy.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return OutcomeFatal
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeFatal
	}

	var svcErr *TransientServiceError
	if errors.As(err, &svcErr) {
		return OutcomeTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTransient
	}

	return OutcomeFatal
}

// serviceError normalises an error from the mail service boundary.
// Auth failures and cancellation pass through; everything else is transient.
func serviceError(op string, err error) error {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var svcErr *TransientServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	return &TransientServiceError{Op: op, Err: err}
}
