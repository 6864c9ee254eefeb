// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// Classification buckets every failure the automation can produce. The
// scheduler keys its retry/defer/escalate decisions off this value alone.
type Classification string

const (
	// ClassConfig marks startup problems: missing credentials, malformed
	// secrets, unusable settings. Never retried.
	ClassConfig Classification = "CONFIG"
	// ClassTransient marks recoverable conditions: timeouts, network
	// failures, the site's unavailable banner. Retried with backoff.
	ClassTransient Classification = "TRANSIENT"
	// ClassBadCredentials marks an authoritative rejection of address or
	// password. Never auto-retried.
	ClassBadCredentials Classification = "BAD_CREDENTIALS"
	// ClassBadTotp marks a rejected two-factor code.
	ClassBadTotp Classification = "BAD_TOTP"
	// ClassPageMismatch marks a page that matches no expected state.
	ClassPageMismatch Classification = "PAGE_MISMATCH"
	// ClassBlocked marks an account-level block or ban. Terminal.
	ClassBlocked Classification = "BLOCKED"
)

// StepError is a classified failure of one named automation step.
type StepError struct {
	Class Classification
	Step  string
	Err   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Step, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Class, e.Err)
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the scheduler may retry the step.
func (e *StepError) Retryable() bool {
	return e.Class == ClassTransient || e.Class == ClassPageMismatch
}

// Fatal reports whether the run must stop.
func (e *StepError) Fatal() bool {
	return e.Class == ClassBlocked || e.Class == ClassConfig ||
		e.Class == ClassBadCredentials || e.Class == ClassBadTotp
}

// NewStepError builds a classified error for a step.
func NewStepError(class Classification, step string, err error) *StepError {
	return &StepError{Class: class, Step: step, Err: err}
}

// Transient wraps err as a retryable failure of step.
func Transient(step string, err error) *StepError {
	return &StepError{Class: ClassTransient, Step: step, Err: err}
}

// PageMismatch reports an unrecognized page state at step.
func PageMismatch(step, detail string) *StepError {
	return &StepError{Class: ClassPageMismatch, Step: step, Err: errors.New(detail)}
}

// ConfigErrorf reports an unusable configuration value.
func ConfigErrorf(format string, args ...any) *StepError {
	return &StepError{Class: ClassConfig, Step: "config", Err: fmt.Errorf(format, args...)}
}

// ClassOf extracts the classification from err, walking the wrap chain.
// Unclassified errors (including bare context errors) are treated as
// transient so the caller's backoff ceiling still bounds them.
func ClassOf(err error) Classification {
	var se *StepError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}

// IsClass reports whether err carries the given classification.
func IsClass(err error, class Classification) bool {
	var se *StepError
	return errors.As(err, &se) && se.Class == class
}
