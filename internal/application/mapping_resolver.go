package application

import (
	"context"
	"fmt"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/kafka"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/outbox"
)

// MappingResolver turns an order's line items into product allocations
// using the tenant's item mappings. Resolution is idempotent: when the
// stored allocations already match the derived set, nothing is written.
type MappingResolver struct {
	mappings    domain.MappingRepository
	allocations domain.AllocationRepository
	allocator   *domain.FlavorFractionAllocator
	outbox      outbox.Repository
	events      *cloudevents.EventFactory
	logger      *logging.Logger
}

// NewMappingResolver creates a MappingResolver. The outbox repository
// may be nil when eventing is disabled.
func NewMappingResolver(
	mappings domain.MappingRepository,
	allocations domain.AllocationRepository,
	outboxRepo outbox.Repository,
	events *cloudevents.EventFactory,
	logger *logging.Logger,
) *MappingResolver {
	return &MappingResolver{
		mappings:    mappings,
		allocations: allocations,
		allocator:   domain.NewFlavorFractionAllocator(),
		outbox:      outboxRepo,
		events:      events,
		logger:      logger.WithComponent("mapping-resolver"),
	}
}

// Resolve derives the allocations for every item of the order. When
// persist is set, stale stored allocations are replaced atomically per
// item; preview computations pass false and leave storage untouched.
func (r *MappingResolver) Resolve(ctx context.Context, order *domain.Order, trace *domain.CostTrace, persist bool) ([]*domain.Allocation, error) {
	mappings, err := r.loadMappings(ctx, order)
	if err != nil {
		return nil, err
	}

	var existing map[string][]*domain.Allocation
	if persist {
		stored, err := r.allocations.FindByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("loading allocations for %s: %w", order.OrderID, err)
		}
		existing = groupByItem(stored)
	}

	var result []*domain.Allocation
	rebuilt := 0
	for i := range order.Items {
		item := &order.Items[i]

		desired, err := r.buildItemAllocations(order, item, mappings, trace)
		if err != nil {
			return nil, err
		}

		if persist {
			current := existing[item.ItemID]
			if allocationSetsEqual(current, desired) {
				result = append(result, current...)
				continue
			}
			if err := r.allocations.ReplaceForItem(ctx, order.OrderID, item.ItemID, desired); err != nil {
				return nil, fmt.Errorf("replacing allocations for %s/%s: %w", order.OrderID, item.ItemID, err)
			}
			rebuilt += len(desired)
			r.logger.Debug("Allocations rebuilt",
				"orderId", order.OrderID,
				"itemId", item.ItemID,
				"count", len(desired),
			)
		}
		result = append(result, desired...)
	}

	if rebuilt > 0 {
		r.stageRebuiltEvent(ctx, order, rebuilt)
	}
	return result, nil
}

func (r *MappingResolver) stageRebuiltEvent(ctx context.Context, order *domain.Order, count int) {
	if r.outbox == nil || r.events == nil {
		return
	}
	event := r.events.CreateAllocationsRebuiltEvent(order.TenantID, &cloudevents.AllocationsRebuiltData{
		OrderID:     order.OrderID,
		Allocations: count,
	})
	staged, err := outbox.NewEventFromCloudEvent(order.OrderID, "order", kafka.Topics.CostEvents, event)
	if err != nil {
		r.logger.WithError(err).Error("Failed to stage allocation event", "orderId", order.OrderID)
		return
	}
	if err := r.outbox.Save(ctx, staged); err != nil {
		r.logger.WithError(err).Error("Failed to save allocation event", "orderId", order.OrderID)
	}
}

func (r *MappingResolver) loadMappings(ctx context.Context, order *domain.Order) (map[string]*domain.ItemMapping, error) {
	keySet := make(map[string]bool)
	for _, item := range order.Items {
		if item.SKU != "" {
			keySet[item.SKU] = true
		}
		for _, addon := range item.Addons {
			keySet[domain.AddonKey(addon.Name)] = true
		}
	}
	if len(keySet) == 0 {
		return map[string]*domain.ItemMapping{}, nil
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}

	found, err := r.mappings.FindByKeys(ctx, order.TenantID, keys)
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}

	byKey := make(map[string]*domain.ItemMapping, len(found))
	for _, m := range found {
		byKey[m.Key] = m
	}
	return byKey, nil
}

// buildItemAllocations derives the full allocation set for one line item:
// a primary allocation from the SKU mapping, fractional flavor allocations
// for classified flavor add-ons, and plain add-on allocations for other
// classified, linked add-ons.
func (r *MappingResolver) buildItemAllocations(order *domain.Order, item *domain.LineItem, mappings map[string]*domain.ItemMapping, trace *domain.CostTrace) ([]*domain.Allocation, error) {
	var allocations []*domain.Allocation

	if item.SKU == "" {
		trace.Warn(domain.WarnMappingNotFound, item.ItemID, "item %q has no SKU", item.Name)
	} else if m, ok := mappings[item.SKU]; !ok {
		trace.Warn(domain.WarnMappingNotFound, item.SKU, "no mapping for SKU %s (%q)", item.SKU, item.Name)
	} else if !m.IsLinked() {
		trace.Warn(domain.WarnMappingUnlinked, item.SKU, "mapping for SKU %s is not linked to a product", item.SKU)
	} else {
		primary, err := domain.NewAllocation(order.TenantID, order.OrderID, item.ItemID, m.ProductID,
			domain.AllocationPrimary, domain.SubKindRegular, 1)
		if err != nil {
			return nil, err
		}
		primary.CostOverride = m.CostOverride
		allocations = append(allocations, primary)
	}

	flavors, err := r.allocator.Allocate(order.TenantID, order, item, mappings, trace)
	if err != nil {
		return nil, err
	}
	allocations = append(allocations, flavors...)

	for _, addon := range item.Addons {
		m, ok := mappings[domain.AddonKey(addon.Name)]
		if !ok || m.IsFlavor() {
			continue
		}
		if !m.IsLinked() {
			trace.Warn(domain.WarnMappingUnlinked, addon.Name,
				"add-on %q is classified but not linked to a product", addon.Name)
			continue
		}
		alloc, err := domain.NewAllocation(order.TenantID, order.OrderID, item.ItemID, m.ProductID,
			domain.AllocationAddon, domain.SubKindAddon, float64(addon.Quantity))
		if err != nil {
			return nil, err
		}
		alloc.CostOverride = m.CostOverride
		alloc.AddonName = addon.Name
		allocations = append(allocations, alloc)
	}

	return allocations, nil
}

func groupByItem(allocations []*domain.Allocation) map[string][]*domain.Allocation {
	grouped := make(map[string][]*domain.Allocation)
	for _, a := range allocations {
		grouped[a.ItemID] = append(grouped[a.ItemID], a)
	}
	return grouped
}

// allocationSetsEqual compares the derived allocation set against the
// stored one by content, ignoring IDs and timestamps.
func allocationSetsEqual(current, desired []*domain.Allocation) bool {
	if len(current) != len(desired) {
		return false
	}
	type key struct {
		productID string
		kind      domain.AllocationKind
		subKind   domain.AllocationSubKind
		addonName string
	}
	index := make(map[key]*domain.Allocation, len(current))
	for _, a := range current {
		index[key{a.ProductID, a.Kind, a.SubKind, a.AddonName}] = a
	}
	for _, d := range desired {
		a, ok := index[key{d.ProductID, d.Kind, d.SubKind, d.AddonName}]
		if !ok {
			return false
		}
		if !domain.MoneyEquals(a.Quantity, d.Quantity) {
			return false
		}
		if (a.CostOverride == nil) != (d.CostOverride == nil) {
			return false
		}
		if a.CostOverride != nil && !domain.MoneyEquals(*a.CostOverride, *d.CostOverride) {
			return false
		}
		if a.AutoFraction != d.AutoFraction {
			return false
		}
	}
	return true
}
