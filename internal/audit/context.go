// ABOUTME: Request origin propagation for audit events
// ABOUTME: Provides WithOrigin/OriginFromContext so callers need not thread addresses by hand

package audit

import "context"

// originContextKey is the key type for storing the origin address in context.Context.
type originContextKey struct{}

// WithOrigin returns a new context carrying the request's origin address.
func WithOrigin(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, originContextKey{}, addr)
}

// OriginFromContext returns the origin address attached with WithOrigin, or "".
func OriginFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(originContextKey{}).(string)
	return addr
}
