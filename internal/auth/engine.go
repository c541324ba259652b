// ABOUTME: Credential verification with lockout, lazy unlock, and rehash-on-login
// ABOUTME: Every outcome is audited; failures share one generic message

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/metrics"
	"github.com/2389/chartguard/internal/store"
)

// Config holds the engine's thresholds.
type Config struct {
	MaxAttempts       int           // failed attempts before lockout
	LockoutMinutes    int           // lockout duration
	MinPasswordLength int           // in characters
	UnknownUserDelay  time.Duration // fixed delay on the unknown-username path
	Hash              HashParams
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		LockoutMinutes:    30,
		MinPasswordLength: 8,
		UnknownUserDelay:  time.Second,
		Hash:              DefaultHashParams(),
	}
}

// Store is the persistence the engine needs.
type Store interface {
	store.PrincipalStore
	EndEdgesForPrincipal(ctx context.Context, principalID string, at time.Time) error
}

// SessionRevoker destroys every session bound to a principal.
type SessionRevoker interface {
	DestroyPrincipal(ctx context.Context, principalID string) (int, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleeper overrides how the unknown-user delay is waited out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithSessionRevoker makes deactivation and deletion destroy the principal's sessions.
func WithSessionRevoker(r SessionRevoker) Option {
	return func(e *Engine) { e.sessions = r }
}

// Engine verifies credentials and manages principal lifecycle.
type Engine struct {
	store    Store
	audit    audit.Logger
	cfg      Config
	sessions SessionRevoker
	validate *validator.Validate
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
	logger   *slog.Logger
}

// NewEngine creates an Engine. A nil audit logger discards events.
func NewEngine(s Store, auditLog audit.Logger, cfg Config, opts ...Option) *Engine {
	if auditLog == nil {
		auditLog = audit.Discard
	}
	e := &Engine{
		store:    s,
		audit:    auditLog,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		sleep:    sleepContext,
		logger:   slog.Default().With("component", "auth"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ValidatePasswordStrength checks password against the configured rules.
func (e *Engine) ValidatePasswordStrength(password string) StrengthReport {
	return CheckPasswordStrength(password, e.cfg.MinPasswordLength)
}

// Authenticate verifies a username and password. On failure the error is a
// *Failure (see ReasonOf) or a wrapped store error.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (*store.Principal, error) {
	now := e.now().UTC()

	p, err := e.store.GetPrincipalByUsername(ctx, username)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		e.sleep(ctx, e.cfg.UnknownUserDelay)
		e.audit.Log(ctx, audit.Event{
			Action:       audit.ActionLoginFailed,
			ResourceType: audit.ResourceUser,
			Detail:       map[string]any{"reason": string(ReasonUnknownUser), "username": username},
		})
		return nil, e.reject(ReasonUnknownUser, username)
	}
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	if !p.Active {
		e.logFailure(ctx, p, ReasonInactive, nil)
		return nil, e.reject(ReasonInactive, username)
	}

	if p.LockedUntil != nil {
		if p.LockedUntil.After(now) {
			e.logFailure(ctx, p, ReasonLocked, map[string]any{"locked_until": p.LockedUntil.Format(time.RFC3339)})
			return nil, e.reject(ReasonLocked, username)
		}
		// lock has lapsed; start counting afresh
		if err := e.store.ClearLockout(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("clearing expired lockout: %w", err)
		}
		p.FailedAttempts = 0
		p.LockedUntil = nil
	}

	ok, err := VerifyPassword(password, p.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unusable", "principal_id", p.ID, "error", err)
	}
	if !ok {
		return nil, e.recordWrongPassword(ctx, p, now)
	}

	if err := e.store.RecordSuccessfulLogin(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil
	p.LastLogin = &now

	if NeedsRehash(p.PasswordHash, e.cfg.Hash) {
		e.rehash(ctx, p, password)
	}

	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionLoginSuccess,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.ID,
		ActorID:      p.ID,
	})
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	e.logger.Info("login succeeded", "principal_id", p.ID, "username", p.Username)
	return p, nil
}

func (e *Engine) recordWrongPassword(ctx context.Context, p *store.Principal, now time.Time) error {
	count, err := e.store.IncrementFailedAttempts(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("incrementing failed attempts: %w", err)
	}
	p.FailedAttempts = count

	if count >= e.cfg.MaxAttempts {
		until := now.Add(time.Duration(e.cfg.LockoutMinutes) * time.Minute)
		if err := e.store.LockPrincipal(ctx, p.ID, until); err != nil {
			return fmt.Errorf("locking principal: %w", err)
		}
		p.LockedUntil = &until

		e.audit.Log(ctx, audit.Event{
			Action:       audit.ActionAccountLocked,
			ResourceType: audit.ResourceUser,
			ResourceID:   p.ID,
			ActorID:      p.ID,
			Detail: map[string]any{
				"failed_attempts": count,
				"locked_until":    until.Format(time.RFC3339),
			},
		})
		metrics.AccountLockoutsTotal.Inc()
		e.logger.Warn("account locked", "principal_id", p.ID, "failed_attempts", count, "locked_until", until)
		return e.reject(ReasonWrongPassword, p.Username)
	}

	e.logFailure(ctx, p, ReasonWrongPassword, map[string]any{"failed_attempts": count})
	return e.reject(ReasonWrongPassword, p.Username)
}

// rehash upgrades a stale hash. Failure is logged and never fails the login.
func (e *Engine) rehash(ctx context.Context, p *store.Principal, password string) {
	hash, err := HashPassword(password, e.cfg.Hash)
	if err != nil {
		e.logger.Error("rehash failed", "principal_id", p.ID, "error", err)
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, p.ID, hash); err != nil {
		e.logger.Error("storing rehashed password failed", "principal_id", p.ID, "error", err)
		return
	}
	p.PasswordHash = hash
	e.logger.Info("password rehashed", "principal_id", p.ID)
}

func (e *Engine) logFailure(ctx context.Context, p *store.Principal, reason FailureReason, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["reason"] = string(reason)
	e.audit.Log(ctx, audit.Event{
		Action:       audit.ActionLoginFailed,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.ID,
		ActorID:      p.ID,
		Detail:       detail,
	})
}

func (e *Engine) reject(reason FailureReason, username string) *Failure {
	metrics.AuthAttemptsTotal.WithLabelValues(string(reason)).Inc()
	e.logger.Warn("auth failure", "reason", reason, "username", username)
	return &Failure{Reason: reason}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
