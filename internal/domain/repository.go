package domain

import "context"

// Pagination controls paged queries
type Pagination struct {
	Page     int
	PageSize int
}

// DefaultPagination returns the default page settings
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: 50}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return int64((p.Page - 1) * p.PageSize)
}

// Limit returns the page size as a limit
func (p Pagination) Limit() int64 {
	if p.PageSize < 1 {
		return 50
	}
	return int64(p.PageSize)
}

// OrderFilter selects orders for queries and recalculation runs.
// RuleIDs selects orders whose snapshot references any of the rules.
type OrderFilter struct {
	TenantID    string
	Provider    string
	OrderIDs    []string
	RuleIDs     []string
	HasSnapshot *bool
}

// OrderRepository persists orders and their snapshots
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByOrderID(ctx context.Context, orderID string) (*Order, error)
	FindPage(ctx context.Context, filter OrderFilter, page Pagination) ([]*Order, error)
	Count(ctx context.Context, filter OrderFilter) (int64, error)
	// FindBatch returns up to limit orders matching the filter with
	// orderId greater than afterID, in ascending orderId order. It is
	// the cursor primitive batch recalculation pages with.
	FindBatch(ctx context.Context, filter OrderFilter, afterID string, limit int64) ([]*Order, error)
}

// ProductRepository reads the product catalog
type ProductRepository interface {
	Save(ctx context.Context, product *Product) error
	FindByProductID(ctx context.Context, productID string) (*Product, error)
	FindByProductIDs(ctx context.Context, tenantID string, productIDs []string) ([]*Product, error)
}

// IngredientRepository reads the ingredient catalog
type IngredientRepository interface {
	Save(ctx context.Context, ingredient *Ingredient) error
	FindByIngredientIDs(ctx context.Context, tenantID string, ingredientIDs []string) ([]*Ingredient, error)
}

// MappingRepository persists item mappings keyed by SKU or add-on digest
type MappingRepository interface {
	Save(ctx context.Context, mapping *ItemMapping) error
	FindByKeys(ctx context.Context, tenantID string, keys []string) ([]*ItemMapping, error)
}

// RuleRepository persists the fee rule catalog
type RuleRepository interface {
	Save(ctx context.Context, rule *FeeRule) error
	FindByRuleID(ctx context.Context, ruleID string) (*FeeRule, error)
	// FindLive returns active, non-deleted rules for the tenant.
	FindLive(ctx context.Context, tenantID string) ([]*FeeRule, error)
	// FindAll returns every rule including soft-deleted ones.
	FindAll(ctx context.Context, tenantID string, includeDeleted bool) ([]*FeeRule, error)
}

// AllocationRepository persists product allocations per order item
type AllocationRepository interface {
	FindByOrderID(ctx context.Context, orderID string) ([]*Allocation, error)
	// ReplaceForItem atomically deletes the item's allocations and
	// inserts the new set. A failed replacement leaves the previous
	// allocations untouched.
	ReplaceForItem(ctx context.Context, orderID, itemID string, allocations []*Allocation) error
	DeleteByOrderID(ctx context.Context, orderID string) error
}

// ProgressRepository persists recalculation run progress
type ProgressRepository interface {
	Save(ctx context.Context, progress *RunProgress) error
	FindByRunID(ctx context.Context, runID string) (*RunProgress, error)
	FindRecent(ctx context.Context, tenantID string, page Pagination) ([]*RunProgress, error)
}
