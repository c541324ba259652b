// ABOUTME: Per-request access scope over a single principal snapshot
// ABOUTME: The principal row is loaded at most once per Scope

package access

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/chartguard/internal/auth"
	"github.com/2389/chartguard/internal/store"
)

// Scope runs access checks for one request. Every check sees the principal
// as it was when first loaded, even if the row changes mid-request.
type Scope struct {
	c           *Controller
	principalID string

	once      sync.Once
	principal *store.Principal
	err       error
}

// ForRequest returns a Scope for principalID. An empty ID denies everything.
func (c *Controller) ForRequest(principalID string) *Scope {
	return &Scope{c: c, principalID: principalID}
}

// ForContext returns a Scope for the principal attached with auth.WithAuth.
func (c *Controller) ForContext(ctx context.Context) *Scope {
	if a := auth.FromContext(ctx); a != nil {
		return c.ForRequest(a.PrincipalID)
	}
	return c.ForRequest("")
}

// Principal returns the snapshot. Unknown and soft-deleted principals yield
// a nil principal and no error.
func (s *Scope) Principal(ctx context.Context) (*store.Principal, error) {
	s.once.Do(func() {
		if s.principalID == "" {
			return
		}
		p, err := s.c.principals.GetPrincipal(ctx, s.principalID)
		switch {
		case errors.Is(err, store.ErrPrincipalNotFound):
		case err != nil:
			s.err = s.c.storeFailure("loading principal", err)
		default:
			s.principal = p
		}
	})
	return s.principal, s.err
}

func (s *Scope) snapshot(ctx context.Context) *store.Principal {
	p, _ := s.Principal(ctx)
	return p
}

// Check is Controller.Check for the scoped principal.
func (s *Scope) Check(ctx context.Context, clientID string, perm Permission) error {
	p, err := s.Principal(ctx)
	if err != nil {
		return err
	}
	return s.c.Check(ctx, p, clientID, perm)
}

func (s *Scope) CanAccessClient(ctx context.Context, clientID string) bool {
	return s.c.CanAccessClient(ctx, s.snapshot(ctx), clientID)
}

func (s *Scope) CanViewClinicalNotes(ctx context.Context, clientID string) bool {
	return s.c.CanViewClinicalNotes(ctx, s.snapshot(ctx), clientID)
}

func (s *Scope) CanCreateClinicalNotes(ctx context.Context, clientID string) bool {
	return s.c.CanCreateClinicalNotes(ctx, s.snapshot(ctx), clientID)
}

func (s *Scope) CanEditDemographics(ctx context.Context, clientID string) bool {
	return s.c.CanEditDemographics(ctx, s.snapshot(ctx), clientID)
}

func (s *Scope) AccessibleClientIDs(ctx context.Context) (ClientSet, error) {
	p, err := s.Principal(ctx)
	if err != nil {
		return ClientSet{}, err
	}
	return s.c.AccessibleClientIDs(ctx, p)
}

func (s *Scope) BuildClientAccessFilter(ctx context.Context, clientIDRef string) Expr {
	return s.c.BuildClientAccessFilter(s.snapshot(ctx), clientIDRef)
}

func (s *Scope) ClientRole(ctx context.Context, clientID string) (Role, bool) {
	return s.c.ClientRole(ctx, s.snapshot(ctx), clientID)
}
