package application

import (
	"context"
	"sort"
	"sync"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/outbox"
)

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("cost-engine-test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	saveErr map[string]error
	saves   int
}

func newFakeOrderRepo(orders ...*domain.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{
		orders:  make(map[string]*domain.Order),
		saveErr: make(map[string]error),
	}
	for _, o := range orders {
		r.orders[o.OrderID] = o
	}
	return r
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.saveErr[order.OrderID]; ok {
		return err
	}
	r.orders[order.OrderID] = order
	r.saves++
	return nil
}

func (r *fakeOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID], nil
}

func (r *fakeOrderRepo) matches(o *domain.Order, filter domain.OrderFilter) bool {
	if filter.TenantID != "" && o.TenantID != filter.TenantID {
		return false
	}
	if filter.Provider != "" && o.Provider != filter.Provider {
		return false
	}
	if filter.HasSnapshot != nil && *filter.HasSnapshot != o.HasSnapshot() {
		return false
	}
	if len(filter.OrderIDs) > 0 {
		found := false
		for _, id := range filter.OrderIDs {
			if id == o.OrderID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.RuleIDs) > 0 {
		if o.CostSnapshot == nil {
			return false
		}
		found := false
		for _, want := range filter.RuleIDs {
			for _, have := range o.CostSnapshot.RuleIDs() {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *fakeOrderRepo) sorted(filter domain.OrderFilter) []*domain.Order {
	var out []*domain.Order
	for _, o := range r.orders {
		if r.matches(o, filter) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (r *fakeOrderRepo) FindPage(ctx context.Context, filter domain.OrderFilter, page domain.Pagination) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(filter)
	start := int(page.Skip())
	if start >= len(all) {
		return nil, nil
	}
	end := start + int(page.Limit())
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *fakeOrderRepo) Count(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(filter))), nil
}

func (r *fakeOrderRepo) FindBatch(ctx context.Context, filter domain.OrderFilter, afterID string, limit int64) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.sorted(filter) {
		if o.OrderID <= afterID {
			continue
		}
		out = append(out, o)
		if int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

type fakeRuleRepo struct {
	rules map[string]*domain.FeeRule
}

func newFakeRuleRepo(rules ...*domain.FeeRule) *fakeRuleRepo {
	r := &fakeRuleRepo{rules: make(map[string]*domain.FeeRule)}
	for _, rule := range rules {
		r.rules[rule.RuleID] = rule
	}
	return r
}

func (r *fakeRuleRepo) Save(ctx context.Context, rule *domain.FeeRule) error {
	r.rules[rule.RuleID] = rule
	return nil
}

func (r *fakeRuleRepo) FindByRuleID(ctx context.Context, ruleID string) (*domain.FeeRule, error) {
	return r.rules[ruleID], nil
}

func (r *fakeRuleRepo) FindLive(ctx context.Context, tenantID string) ([]*domain.FeeRule, error) {
	var out []*domain.FeeRule
	for _, rule := range r.rules {
		if rule.TenantID == tenantID && rule.IsLive() {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (r *fakeRuleRepo) FindAll(ctx context.Context, tenantID string, includeDeleted bool) ([]*domain.FeeRule, error) {
	var out []*domain.FeeRule
	for _, rule := range r.rules {
		if rule.TenantID != tenantID {
			continue
		}
		if !includeDeleted && rule.DeletedAt != nil {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

type fakeProductRepo struct {
	products map[string]*domain.Product
}

func newFakeProductRepo(products ...*domain.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: make(map[string]*domain.Product)}
	for _, p := range products {
		r.products[p.ProductID] = p
	}
	return r
}

func (r *fakeProductRepo) Save(ctx context.Context, product *domain.Product) error {
	r.products[product.ProductID] = product
	return nil
}

func (r *fakeProductRepo) FindByProductID(ctx context.Context, productID string) (*domain.Product, error) {
	return r.products[productID], nil
}

func (r *fakeProductRepo) FindByProductIDs(ctx context.Context, tenantID string, productIDs []string) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, id := range productIDs {
		if p, ok := r.products[id]; ok && p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeIngredientRepo struct {
	ingredients map[string]*domain.Ingredient
}

func newFakeIngredientRepo(ingredients ...*domain.Ingredient) *fakeIngredientRepo {
	r := &fakeIngredientRepo{ingredients: make(map[string]*domain.Ingredient)}
	for _, i := range ingredients {
		r.ingredients[i.IngredientID] = i
	}
	return r
}

func (r *fakeIngredientRepo) Save(ctx context.Context, ingredient *domain.Ingredient) error {
	r.ingredients[ingredient.IngredientID] = ingredient
	return nil
}

func (r *fakeIngredientRepo) FindByIngredientIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Ingredient, error) {
	var out []*domain.Ingredient
	for _, id := range ids {
		if i, ok := r.ingredients[id]; ok && i.TenantID == tenantID {
			out = append(out, i)
		}
	}
	return out, nil
}

type fakeMappingRepo struct {
	mappings map[string]*domain.ItemMapping
}

func newFakeMappingRepo(mappings ...*domain.ItemMapping) *fakeMappingRepo {
	r := &fakeMappingRepo{mappings: make(map[string]*domain.ItemMapping)}
	for _, m := range mappings {
		r.mappings[m.Key] = m
	}
	return r
}

func (r *fakeMappingRepo) Save(ctx context.Context, mapping *domain.ItemMapping) error {
	r.mappings[mapping.Key] = mapping
	return nil
}

func (r *fakeMappingRepo) FindByKeys(ctx context.Context, tenantID string, keys []string) ([]*domain.ItemMapping, error) {
	var out []*domain.ItemMapping
	for _, key := range keys {
		if m, ok := r.mappings[key]; ok && m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeAllocationRepo struct {
	mu          sync.Mutex
	allocations map[string][]*domain.Allocation // orderID/itemID -> allocations
	replaces    int
}

func newFakeAllocationRepo() *fakeAllocationRepo {
	return &fakeAllocationRepo{allocations: make(map[string][]*domain.Allocation)}
}

func itemKey(orderID, itemID string) string { return orderID + "/" + itemID }

func (r *fakeAllocationRepo) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Allocation
	for _, allocs := range r.allocations {
		for _, a := range allocs {
			if a.OrderID == orderID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) ReplaceForItem(ctx context.Context, orderID, itemID string, allocations []*domain.Allocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaces++
	r.allocations[itemKey(orderID, itemID)] = allocations
	return nil
}

func (r *fakeAllocationRepo) DeleteByOrderID(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, allocs := range r.allocations {
		if len(allocs) > 0 && allocs[0].OrderID == orderID {
			delete(r.allocations, key)
		}
	}
	return nil
}

func (r *fakeAllocationRepo) replaceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaces
}

type fakeProgressRepo struct {
	mu   sync.Mutex
	runs map[string]*domain.RunProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{runs: make(map[string]*domain.RunProgress)}
}

func (r *fakeProgressRepo) Save(ctx context.Context, progress *domain.RunProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[progress.RunID] = progress
	return nil
}

func (r *fakeProgressRepo) FindByRunID(ctx context.Context, runID string) (*domain.RunProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[runID], nil
}

func (r *fakeProgressRepo) FindRecent(ctx context.Context, tenantID string, page domain.Pagination) ([]*domain.RunProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RunProgress
	for _, p := range r.runs {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{}
}

func (r *fakeOutboxRepo) Save(ctx context.Context, event *outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) SaveAll(ctx context.Context, events []*outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeOutboxRepo) FindPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID string) error { return nil }

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, eventID string, publishErr error) error {
	return nil
}

func (r *fakeOutboxRepo) CountPending(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.events)), nil
}

func (r *fakeOutboxRepo) DeletePublishedBefore(ctx context.Context, olderThanDays int) (int64, error) {
	return 0, nil
}

// stagedTypes returns the event types staged so far, in order
func (r *fakeOutboxRepo) stagedTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}
