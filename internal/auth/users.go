// ABOUTME: Principal lifecycle: provisioning, password changes, roles, activation, deletion
// ABOUTME: Input is checked with go-playground/validator and every change is audited

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/store"
)

// NewUser is the input to CreateUser.
type NewUser struct {
	Username    string `validate:"required,min=3,max=64,printascii,excludesall=0x20"`
	Email       string `validate:"omitempty,email,max=254"`
	DisplayName string `validate:"required,max=128"`
	Password    string `validate:"required"`
	Roles       store.Roles
}

// CreateUser provisions a principal after validating input and password strength.
func (e *Engine) CreateUser(ctx context.Context, actorID string, in NewUser) (*store.Principal, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if err := e.validate.Struct(in); err != nil {
		return nil, malformed(err)
	}
	if report := e.ValidatePasswordStrength(in.Password); !report.Valid {
		return nil, weakPassword(report)
	}

	hash, err := HashPassword(in.Password, e.cfg.Hash)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := e.now().UTC()
	p := &store.Principal{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Roles:        in.Roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.CreatePrincipal(ctx, p); err != nil {
		return nil, duplicateOr(err, "creating principal")
	}

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionUserCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.ID,
		ActorID:      actorID,
		Detail:       map[string]any{"username": p.Username, "roles": p.Roles.Names()},
	})
	e.logger.Info("user created", "principal_id", p.ID, "username", p.Username, "actor", actorID)
	return p, nil
}

// ChangePassword sets a new password. When current is non-nil it must match the
// stored hash (self-service); a nil current is an administrative reset, which
// also clears any lockout.
func (e *Engine) ChangePassword(ctx context.Context, actorID, principalID, newPassword string, current *string) error {
	if report := e.ValidatePasswordStrength(newPassword); !report.Valid {
		return weakPassword(report)
	}

	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("loading principal: %w", err)
	}

	if current != nil {
		ok, err := VerifyPassword(*current, p.PasswordHash)
		if err != nil {
			e.logger.Error("stored password hash unusable", "principal_id", p.ID, "error", err)
		}
		if !ok {
			return ErrCurrentPasswordIncorrect
		}
	}

	hash, err := HashPassword(newPassword, e.cfg.Hash)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if current == nil {
		err = e.store.ResetPassword(ctx, p.ID, hash)
	} else {
		err = e.store.UpdatePasswordHash(ctx, p.ID, hash)
	}
	if err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionPasswordChanged,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.ID,
		ActorID:      actorID,
		Detail:       map[string]any{"self_service": current != nil},
	})
	return nil
}

// SetRoles replaces a principal's role flags.
func (e *Engine) SetRoles(ctx context.Context, actorID, principalID string, roles store.Roles) error {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("loading principal: %w", err)
	}
	if err := e.store.SetPrincipalRoles(ctx, p.ID, roles); err != nil {
		return fmt.Errorf("updating roles: %w", err)
	}

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionRoleChange,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.ID,
		ActorID:      actorID,
		Detail:       map[string]any{"before": p.Roles.Names(), "after": roles.Names()},
	})
	e.logger.Info("roles changed", "principal_id", p.ID, "roles", roles.Names(), "actor", actorID)
	return nil
}

// SetActive activates or deactivates a principal. Deactivation revokes sessions
// when a SessionRevoker is configured.
func (e *Engine) SetActive(ctx context.Context, actorID, principalID string, active bool) error {
	if err := e.store.SetPrincipalActive(ctx, principalID, active); err != nil {
		return fmt.Errorf("updating active flag: %w", err)
	}

	action := audit.ActionUserActivated
	if !active {
		action = audit.ActionUserDeactivated
		e.revokeSessions(ctx, principalID)
	}

	e.audit.Log(ctx, audit.Event{
		Action:       action,
		ResourceType: audit.ResourceUser,
		ResourceID:   principalID,
		ActorID:      actorID,
	})
	return nil
}

// DeleteUser soft-deletes a principal and end-dates all of its edges.
func (e *Engine) DeleteUser(ctx context.Context, actorID, principalID string) error {
	now := e.now().UTC()

	if err := e.store.SoftDeletePrincipal(ctx, principalID, now); err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}
	if err := e.store.EndEdgesForPrincipal(ctx, principalID, now); err != nil {
		return fmt.Errorf("ending edges: %w", err)
	}
	e.revokeSessions(ctx, principalID)

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionUserDeleted,
		ResourceType: audit.ResourceUser,
		ResourceID:   principalID,
		ActorID:      actorID,
	})
	e.logger.Info("user deleted", "principal_id", principalID, "actor", actorID)
	return nil
}

// UpdateProfile changes a principal's email and display name.
func (e *Engine) UpdateProfile(ctx context.Context, actorID, principalID, email, displayName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	if err := e.validate.Var(email, "omitempty,email,max=254"); err != nil {
		return &ValidationError{Reason: ReasonMalformedInput, Violations: []string{"email must be a valid email"}}
	}
	if err := e.validate.Var(displayName, "required,max=128"); err != nil {
		return &ValidationError{Reason: ReasonMalformedInput, Violations: []string{"display name is required (max 128)"}}
	}

	if err := e.store.UpdatePrincipalProfile(ctx, principalID, email, displayName); err != nil {
		return duplicateOr(err, "updating profile")
	}

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionUserUpdated,
		ResourceType: audit.ResourceUser,
		ResourceID:   principalID,
		ActorID:      actorID,
		Detail:       map[string]any{"email": email, "display_name": displayName},
	})
	return nil
}

func (e *Engine) revokeSessions(ctx context.Context, principalID string) {
	if e.sessions == nil {
		return
	}
	n, err := e.sessions.DestroyPrincipal(ctx, principalID)
	if err != nil {
		e.logger.Error("revoking sessions failed", "principal_id", principalID, "error", err)
		return
	}
	e.logger.Info("sessions revoked", "principal_id", principalID, "count", n)
}

// duplicateOr maps store uniqueness errors onto ValidationError and wraps the rest.
func duplicateOr(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrUsernameExists):
		return &ValidationError{Reason: ReasonDuplicateUsername}
	case errors.Is(err, store.ErrEmailExists):
		return &ValidationError{Reason: ReasonDuplicateEmail}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// malformed converts validator errors into a ValidationError.
func malformed(err error) *ValidationError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return &ValidationError{Reason: ReasonMalformedInput, Violations: []string{err.Error()}}
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return &ValidationError{Reason: ReasonMalformedInput, Violations: msgs}
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "printascii", "excludesall":
		return field + " contains invalid characters"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
