// ABOUTME: Typed authentication and provisioning errors
// ABOUTME: Failure hides its reason behind one generic message; ValidationError lists violations

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuthenticationFailed is the sentinel every *Failure unwraps to.
var ErrAuthenticationFailed = errors.New("invalid username or password")

// ErrValidation is the sentinel every *ValidationError unwraps to.
var ErrValidation = errors.New("validation failed")

// ErrCurrentPasswordIncorrect is returned by ChangePassword when the supplied
// current password does not match.
var ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")

// FailureReason classifies an authentication failure for internal use.
type FailureReason string

const (
	ReasonUnknownUser   FailureReason = "unknown_user"
	ReasonWrongPassword FailureReason = "wrong_password"
	ReasonLocked        FailureReason = "locked"
	ReasonInactive      FailureReason = "inactive"
)

// Failure is a rejected authentication. Error() is the same for every reason
// so callers cannot leak which check failed.
type Failure struct {
	Reason FailureReason
}

func (f *Failure) Error() string { return ErrAuthenticationFailed.Error() }

func (f *Failure) Unwrap() error { return ErrAuthenticationFailed }

// ReasonOf extracts the failure reason from err, or "" if err is not a *Failure.
func ReasonOf(err error) FailureReason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

// ValidationReason classifies a rejected provisioning request.
type ValidationReason string

const (
	ReasonWeakPassword      ValidationReason = "weak_password"
	ReasonDuplicateUsername ValidationReason = "duplicate_username"
	ReasonDuplicateEmail    ValidationReason = "duplicate_email"
	ReasonMalformedInput    ValidationReason = "malformed_input"
)

// ValidationError is a rejected provisioning or password-change request.
type ValidationError struct {
	Reason     ValidationReason
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Reason, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func weakPassword(report StrengthReport) *ValidationError {
	v := make([]string, len(report.Violations))
	for i, violation := range report.Violations {
		v[i] = string(violation)
	}
	return &ValidationError{Reason: ReasonWeakPassword, Violations: v}
}
