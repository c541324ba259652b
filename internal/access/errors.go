package access

import (
	"errors"
	"fmt"
)

// ErrDenied is the sentinel every DeniedError unwraps to.
var ErrDenied = errors.New("access denied")

// DenialReason says which check refused access. It is for logs and metrics,
// not for end users.
type DenialReason string

const (
	ReasonNoAssignment      DenialReason = "no_assignment"
	ReasonWrongRoleForScope DenialReason = "wrong_role_for_scope"
	ReasonInactivePrincipal DenialReason = "inactive_principal"
)

// DeniedError reports a refused access check.
type DeniedError struct {
	Reason     DenialReason
	Permission Permission
	ClientID   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s on client %s (%s)", e.Permission, e.ClientID, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// ReasonOf returns the denial reason carried by err, or "" if err is not a denial.
func ReasonOf(err error) DenialReason {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}
