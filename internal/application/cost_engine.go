package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
)

// ComputationReport carries the diagnostics of one snapshot computation
type ComputationReport struct {
	CMV          float64              `json:"cmv"`
	ItemCosts    map[string]float64   `json:"itemCosts"`
	AppliedRules int                  `json:"appliedRules"`
	Warnings     []domain.CostWarning `json:"warnings,omitempty"`
}

// CostEngine computes and persists order cost snapshots
type CostEngine struct {
	orders   domain.OrderRepository
	rules    domain.RuleRepository
	resolver *MappingResolver
	loader   *ProductLoader
	sizes    domain.SizeDetector
	logger   *logging.Logger
	metrics  *metrics.Metrics

	now func() time.Time
}

// NewCostEngine creates a CostEngine
func NewCostEngine(
	orders domain.OrderRepository,
	rules domain.RuleRepository,
	resolver *MappingResolver,
	loader *ProductLoader,
	sizes domain.SizeDetector,
	logger *logging.Logger,
	m *metrics.Metrics,
) *CostEngine {
	return &CostEngine{
		orders:   orders,
		rules:    rules,
		resolver: resolver,
		loader:   loader,
		sizes:    sizes,
		logger:   logger.WithComponent("cost-engine"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ComputeSnapshot resolves allocations, costs them, applies every
// matching catalog rule and returns the finished snapshot. The snapshot
// content is deterministic for a fixed order and catalog state.
func (e *CostEngine) ComputeSnapshot(ctx context.Context, order *domain.Order, persistAllocations bool) (*domain.CostSnapshot, *ComputationReport, error) {
	trace := &domain.CostTrace{}

	allocations, err := e.resolver.Resolve(ctx, order, trace, persistAllocations)
	if err != nil {
		return nil, nil, err
	}

	cmv, itemCosts, err := e.costOfGoods(ctx, order, allocations, trace)
	if err != nil {
		return nil, nil, err
	}

	liveRules, err := e.rules.FindLive(ctx, order.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rules: %w", err)
	}
	applicable := domain.ApplicableRules(liveRules, order)
	sort.Slice(applicable, func(i, j int) bool {
		return applicable[i].RuleID < applicable[j].RuleID
	})

	snapshot := &domain.CostSnapshot{
		Costs: []domain.AppliedRule{
			{RuleID: domain.SnapshotCMVEntryID, Name: "Cost of goods sold", Value: cmv},
		},
		ComputedAt: e.now(),
	}

	for _, rule := range applicable {
		applied := domain.AppliedRule{
			RuleID: rule.RuleID,
			Name:   rule.Name,
			Value:  rule.ValueFor(order),
		}
		switch rule.Category {
		case domain.RuleCost:
			snapshot.Costs = append(snapshot.Costs, applied)
		case domain.RuleCommission:
			snapshot.Commissions = append(snapshot.Commissions, applied)
		case domain.RuleTax:
			snapshot.Taxes = append(snapshot.Taxes, applied)
		case domain.RulePaymentMethod:
			snapshot.PaymentMethods = append(snapshot.PaymentMethods, applied)
		}
	}

	snapshot.Finalize(order.GrossTotal)

	report := &ComputationReport{
		CMV:          domain.RoundMoney(cmv),
		ItemCosts:    itemCosts,
		AppliedRules: len(applicable),
		Warnings:     trace.Warnings,
	}

	if e.metrics != nil {
		for _, w := range trace.Warnings {
			e.metrics.RecordCostWarning(string(w.Code))
		}
	}

	return snapshot, report, nil
}

// costOfGoods prices every allocation against the product catalog
func (e *CostEngine) costOfGoods(ctx context.Context, order *domain.Order, allocations []*domain.Allocation, trace *domain.CostTrace) (float64, map[string]float64, error) {
	productIDs := make([]string, 0, len(allocations))
	for _, a := range allocations {
		productIDs = append(productIDs, a.ProductID)
	}

	index, err := e.loader.IndexFor(ctx, order.TenantID, productIDs)
	if err != nil {
		return 0, nil, err
	}
	calc := domain.NewCMVCalculator(index)

	total := 0.0
	itemCosts := make(map[string]float64)
	for _, alloc := range allocations {
		itemQty := 1.0
		var itemName string
		if item, ok := order.Item(alloc.ItemID); ok {
			itemQty = float64(item.Quantity)
			itemName = item.Name
		}

		var unitCost float64
		if alloc.CostOverride != nil {
			unitCost = *alloc.CostOverride
		} else {
			// The item name carries the size of the primary product and
			// its composite flavors. Plain add-ons price at their flat
			// unit cost regardless of the item size.
			var size string
			if alloc.Kind == domain.AllocationPrimary || alloc.SubKind == domain.SubKindCompositeFlavor {
				size = e.sizes.DetectSize(itemName)
				if size == "" {
					if product, ok := index.Product(alloc.ProductID); ok && len(product.CostBySize) > 0 {
						trace.Warn(domain.WarnSizeUndetected, alloc.ItemID,
							"no size detected for %q; using flat cost of %s", itemName, alloc.ProductID)
					}
				}
			}
			unitCost = calc.UnitCostByID(alloc.ProductID, size, trace)
		}

		contribution := unitCost * alloc.Quantity * itemQty
		itemCosts[alloc.ItemID] += contribution
		total += contribution
	}

	for itemID, cost := range itemCosts {
		itemCosts[itemID] = domain.RoundMoney(cost)
	}
	return total, itemCosts, nil
}

// RecomputeOrder fetches the order, computes a fresh snapshot and
// persists it as a full replacement.
func (e *CostEngine) RecomputeOrder(ctx context.Context, orderID string) (*domain.Order, *ComputationReport, error) {
	order, err := e.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, errors.ErrNotFound("order", orderID)
	}

	report, err := e.RecomputeLoaded(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	return order, report, nil
}

// RecomputeLoaded recomputes an already-loaded order and saves it.
// Batch runs use this to avoid a second fetch per order.
func (e *CostEngine) RecomputeLoaded(ctx context.Context, order *domain.Order) (*ComputationReport, error) {
	start := time.Now()

	snapshot, report, err := e.ComputeSnapshot(ctx, order, true)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordSnapshotComputed("recompute", time.Since(start), err)
		}
		return nil, err
	}

	order.ApplySnapshot(snapshot)
	if err := e.orders.Save(ctx, order); err != nil {
		if e.metrics != nil {
			e.metrics.RecordSnapshotComputed("recompute", time.Since(start), err)
		}
		return nil, fmt.Errorf("saving order %s: %w", order.OrderID, err)
	}

	if e.metrics != nil {
		e.metrics.RecordSnapshotComputed("recompute", time.Since(start), nil)
	}
	e.logger.WithOrder(order.OrderID).Debug("Snapshot computed",
		"totalCosts", snapshot.TotalCosts,
		"totalCommissions", snapshot.TotalCommissions,
		"netRevenue", snapshot.NetRevenue,
		"warnings", len(report.Warnings),
	)
	return report, nil
}

// Preview computes a snapshot for an order payload without persisting
// anything: no allocations are written and the order is not saved.
func (e *CostEngine) Preview(ctx context.Context, order *domain.Order) (*domain.CostSnapshot, *ComputationReport, error) {
	return e.ComputeSnapshot(ctx, order, false)
}

// GetOrder loads an order or returns a not-found error
func (e *CostEngine) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := e.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.ErrNotFound("order", orderID)
	}
	return order, nil
}
