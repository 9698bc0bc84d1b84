package tenant

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// RepositoryHelper scopes MongoDB filters to the tenant in context
type RepositoryHelper struct{}

// NewRepositoryHelper creates a new RepositoryHelper
func NewRepositoryHelper() *RepositoryHelper {
	return &RepositoryHelper{}
}

// WithTenantFilter adds the tenant ID from context to the filter.
// Returns an error if no tenant is present.
func (h *RepositoryHelper) WithTenantFilter(ctx context.Context, filter bson.M) (bson.M, error) {
	tenantID, err := MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.M{}
	}
	filter["tenantId"] = tenantID
	return filter, nil
}

// WithTenantFilterOptional adds the tenant ID to the filter when present
// in the context, and leaves the filter unscoped otherwise. Background
// jobs carry the tenant explicitly in their selectors.
func (h *RepositoryHelper) WithTenantFilterOptional(ctx context.Context, filter bson.M) bson.M {
	if filter == nil {
		filter = bson.M{}
	}
	if tenantID, ok := FromContext(ctx); ok {
		filter["tenantId"] = tenantID
	}
	return filter
}
