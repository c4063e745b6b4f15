package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPoolExhausted means no credential entry is ALIVE. Remediation is to
	// add or rotate credentials, so it is never reported as a backend error.
	ErrPoolExhausted = errors.New("credential pool exhausted: no alive entries")

	// ErrRetryExhausted is the terminal failure of a workflow branch whose
	// retry budget is spent.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrRefused is returned when the user declines an unsafe operation.
	ErrRefused = errors.New("operation refused by user")

	// ErrStructuredOutput means tolerant repair could not recover a value.
	ErrStructuredOutput = errors.New("unable to recover structured output")

	// ErrMonitorUnavailable wraps failures of the resource sampler.
	ErrMonitorUnavailable = errors.New("resource monitor unavailable")

	// ErrRunNotFound is returned by run storage for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// BackendErrorKind classifies backend failures.
type BackendErrorKind string

const (
	KindQuota    BackendErrorKind = "quota"
	KindAuth     BackendErrorKind = "auth"
	KindNetwork  BackendErrorKind = "network"
	KindTimeout  BackendErrorKind = "timeout"
	KindProtocol BackendErrorKind = "protocol"
)

// BackendError is a failure reported by a concrete backend.
type BackendError struct {
	Backend    string
	Kind       BackendErrorKind
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend %s error (status %d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend %s error: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError classifies err by HTTP status code.
func NewBackendError(backend string, statusCode int, err error) *BackendError {
	return &BackendError{
		Backend:    backend,
		Kind:       KindForStatus(statusCode, err),
		StatusCode: statusCode,
		Err:        err,
	}
}

// KindForStatus maps an HTTP status (or transport error when status is 0).
func KindForStatus(statusCode int, err error) BackendErrorKind {
	switch {
	case statusCode == 429 || statusCode == 402:
		return KindQuota
	case statusCode == 401 || statusCode == 403:
		return KindAuth
	case statusCode == 0 && errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case statusCode == 0:
		return KindNetwork
	case statusCode == 408 || statusCode == 504:
		return KindTimeout
	case statusCode >= 500:
		return KindNetwork
	default:
		return KindProtocol
	}
}

// IsCredentialError reports whether err should mark a credential exhausted.
func IsCredentialError(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind == KindQuota || be.Kind == KindAuth
	}
	return false
}

// CascadeError is returned when every backend of a hybrid dispatch failed.
type CascadeError struct {
	Attempts []BackendAttempt
}

// BackendAttempt records one failed backend attempt.
type BackendAttempt struct {
	Backend string
	Err     error
}

func (e *CascadeError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Backend, a.Err))
	}
	return "all backends failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes every cause to errors.Is and errors.As.
func (e *CascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Remediation tells a report consumer whether the system recovers alone.
type Remediation string

const (
	RemediationNone         Remediation = ""
	RemediationAutomatic    Remediation = "will_retry"
	RemediationIntervention Remediation = "requires_intervention"
)

// Classify maps err onto the remediation class surfaced in reports.
func Classify(err error) Remediation {
	if err == nil {
		return RemediationNone
	}
	var cascade *CascadeError
	switch {
	case errors.Is(err, ErrRefused),
		errors.Is(err, ErrRetryExhausted),
		errors.As(err, &cascade),
		errors.Is(err, ErrPoolExhausted):
		return RemediationIntervention
	default:
		return RemediationAutomatic
	}
}
