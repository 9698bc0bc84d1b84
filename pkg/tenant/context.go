package tenant

import (
	"context"

	"github.com/orderkit/cost-engine/pkg/errors"
)

type contextKey string

const tenantIDKey contextKey = "tenantId"

// HeaderName is the HTTP header carrying the tenant identifier
const HeaderName = "X-Tenant-ID"

// WithTenant returns a context carrying the tenant ID
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// FromContext extracts the tenant ID from the context
func FromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	return tenantID, ok && tenantID != ""
}

// MustFromContext extracts the tenant ID or returns an unauthorized error
func MustFromContext(ctx context.Context) (string, error) {
	tenantID, ok := FromContext(ctx)
	if !ok {
		return "", errors.ErrUnauthorized("missing tenant identifier")
	}
	return tenantID, nil
}
