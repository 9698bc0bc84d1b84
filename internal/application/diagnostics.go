package application

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
)

// diagScanBatch is the page size diagnostics scans orders with
const diagScanBatch = 500

// displayTolerance flags mismatches above half a cent
const displayTolerance = 0.005

// OrphanRuleFinding is one rule referenced by snapshots but no longer live
type OrphanRuleFinding struct {
	RuleID         string `json:"ruleId"`
	Name           string `json:"name,omitempty"`
	Deleted        bool   `json:"deleted"`
	AffectedOrders int64  `json:"affectedOrders"`
	ExampleOrderID string `json:"exampleOrderId"`
}

// OrphanRuleReport aggregates orphan references across a tenant
type OrphanRuleReport struct {
	TenantID  string              `json:"tenantId"`
	Findings  []OrphanRuleFinding `json:"findings"`
	Scanned   int64               `json:"scanned"`
	CheckedAt time.Time           `json:"checkedAt"`
}

// CostMismatch is one order whose stored totals diverge from a fresh
// computation against the current catalog
type CostMismatch struct {
	OrderID          string  `json:"orderId"`
	StoredNetRevenue float64 `json:"storedNetRevenue"`
	FreshNetRevenue  float64 `json:"freshNetRevenue"`
	Delta            float64 `json:"delta"`
}

// CostMismatchReport lists diverging orders up to a cap
type CostMismatchReport struct {
	TenantID   string         `json:"tenantId"`
	Mismatches []CostMismatch `json:"mismatches"`
	Scanned    int64          `json:"scanned"`
	Truncated  bool           `json:"truncated"`
	CheckedAt  time.Time      `json:"checkedAt"`
}

// Diagnostics runs consistency scans over snapshots and the rule catalog
type Diagnostics struct {
	orders  domain.OrderRepository
	rules   domain.RuleRepository
	engine  *CostEngine
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewDiagnostics creates a Diagnostics service
func NewDiagnostics(orders domain.OrderRepository, rules domain.RuleRepository, engine *CostEngine, logger *logging.Logger, m *metrics.Metrics) *Diagnostics {
	return &Diagnostics{
		orders:  orders,
		rules:   rules,
		engine:  engine,
		logger:  logger.WithComponent("diagnostics"),
		metrics: m,
	}
}

// OrphanRuleReport scans every snapshot of the tenant for references to
// rules that are deleted, deactivated or missing from the catalog.
func (d *Diagnostics) OrphanRuleReport(ctx context.Context, tenantID string) (*OrphanRuleReport, error) {
	liveIDs, names, deleted, err := d.ruleSets(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	hasSnapshot := true
	filter := domain.OrderFilter{TenantID: tenantID, HasSnapshot: &hasSnapshot}

	findings := make(map[string]*OrphanRuleFinding)
	scanned := int64(0)
	afterID := ""
	for {
		orders, err := d.orders.FindBatch(ctx, filter, afterID, diagScanBatch)
		if err != nil {
			return nil, fmt.Errorf("scanning orders: %w", err)
		}
		if len(orders) == 0 {
			break
		}

		for _, order := range orders {
			scanned++
			for _, ruleID := range order.CostSnapshot.RuleIDs() {
				if liveIDs[ruleID] {
					continue
				}
				f, ok := findings[ruleID]
				if !ok {
					f = &OrphanRuleFinding{
						RuleID:         ruleID,
						Name:           names[ruleID],
						Deleted:        deleted[ruleID],
						ExampleOrderID: order.OrderID,
					}
					findings[ruleID] = f
				}
				f.AffectedOrders++
			}
		}
		afterID = orders[len(orders)-1].OrderID

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	report := &OrphanRuleReport{
		TenantID:  tenantID,
		Scanned:   scanned,
		CheckedAt: time.Now().UTC(),
	}
	for _, f := range findings {
		report.Findings = append(report.Findings, *f)
	}
	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].RuleID < report.Findings[j].RuleID
	})

	if d.metrics != nil {
		d.metrics.SetOrphanRuleRefs(len(report.Findings))
	}
	return report, nil
}

// OrphanRuleIDs returns just the orphan rule IDs, the selector shape
// batch recalculation consumes.
func (d *Diagnostics) OrphanRuleIDs(ctx context.Context, tenantID string) ([]string, error) {
	report, err := d.OrphanRuleReport(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(report.Findings))
	for i, f := range report.Findings {
		ids[i] = f.RuleID
	}
	return ids, nil
}

// CostMismatchReport recomputes snapshots in memory and reports orders
// whose stored totals no longer match the current catalog. Nothing is
// persisted; the scan stops after maxFindings mismatches.
func (d *Diagnostics) CostMismatchReport(ctx context.Context, tenantID string, maxFindings int) (*CostMismatchReport, error) {
	if maxFindings <= 0 {
		maxFindings = 100
	}

	hasSnapshot := true
	filter := domain.OrderFilter{TenantID: tenantID, HasSnapshot: &hasSnapshot}

	report := &CostMismatchReport{
		TenantID:  tenantID,
		CheckedAt: time.Now().UTC(),
	}

	afterID := ""
	for {
		orders, err := d.orders.FindBatch(ctx, filter, afterID, diagScanBatch)
		if err != nil {
			return nil, fmt.Errorf("scanning orders: %w", err)
		}
		if len(orders) == 0 {
			break
		}

		for _, order := range orders {
			report.Scanned++

			fresh, _, err := d.engine.ComputeSnapshot(ctx, order, false)
			if err != nil {
				d.logger.WithError(err).WithOrder(order.OrderID).Warn("Mismatch scan skipped order")
				continue
			}

			delta := fresh.NetRevenue - order.CostSnapshot.NetRevenue
			if math.Abs(delta) > displayTolerance {
				report.Mismatches = append(report.Mismatches, CostMismatch{
					OrderID:          order.OrderID,
					StoredNetRevenue: order.CostSnapshot.NetRevenue,
					FreshNetRevenue:  fresh.NetRevenue,
					Delta:            domain.RoundMoney(delta),
				})
				if len(report.Mismatches) >= maxFindings {
					report.Truncated = true
					return report, nil
				}
			}
		}
		afterID = orders[len(orders)-1].OrderID

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (d *Diagnostics) ruleSets(ctx context.Context, tenantID string) (live map[string]bool, names map[string]string, deleted map[string]bool, err error) {
	rules, err := d.rules.FindAll(ctx, tenantID, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading rules: %w", err)
	}

	live = make(map[string]bool)
	names = make(map[string]string)
	deleted = make(map[string]bool)
	for _, r := range rules {
		names[r.RuleID] = r.Name
		if r.IsLive() {
			live[r.RuleID] = true
		}
		if r.DeletedAt != nil {
			deleted[r.RuleID] = true
		}
	}
	return live, names, deleted, nil
}
