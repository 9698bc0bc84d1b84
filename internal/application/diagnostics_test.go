package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderkit/cost-engine/internal/domain"
)

type diagnosticsFixture struct {
	*engineFixture
	diagnostics *Diagnostics
}

func newDiagnosticsFixture() *diagnosticsFixture {
	ef := newEngineFixture()
	return &diagnosticsFixture{
		engineFixture: ef,
		diagnostics:   NewDiagnostics(ef.orders, ef.rules, ef.engine, testLogger(), nil),
	}
}

func (f *diagnosticsFixture) storeOrderWithSnapshot(orderID string, ruleIDs ...string) *domain.Order {
	order := deliveryOrder()
	order.OrderID = orderID

	snap := &domain.CostSnapshot{
		Costs:      []domain.AppliedRule{{RuleID: domain.SnapshotCMVEntryID, Value: 10}},
		ComputedAt: time.Now().UTC(),
	}
	for _, id := range ruleIDs {
		snap.Commissions = append(snap.Commissions, domain.AppliedRule{RuleID: id, Value: 6.24})
	}
	snap.Finalize(order.GrossTotal)
	order.ApplySnapshot(snap)

	f.orders.orders[orderID] = order
	return order
}

func TestDiagnostics_OrphanRuleReport(t *testing.T) {
	f := newDiagnosticsFixture()
	live := f.addCommission(t, 12)
	deleted := f.addCommission(t, 8)
	require.NoError(t, deleted.SoftDelete())

	f.storeOrderWithSnapshot("ORD-0001", live.RuleID)
	f.storeOrderWithSnapshot("ORD-0002", deleted.RuleID)
	f.storeOrderWithSnapshot("ORD-0003", deleted.RuleID, "RUL-gone")

	report, err := f.diagnostics.OrphanRuleReport(context.Background(), testTenant)
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Scanned)
	require.Len(t, report.Findings, 2)

	byID := map[string]OrphanRuleFinding{}
	for _, finding := range report.Findings {
		byID[finding.RuleID] = finding
	}

	soft := byID[deleted.RuleID]
	assert.True(t, soft.Deleted)
	assert.Equal(t, int64(2), soft.AffectedOrders)
	assert.Equal(t, deleted.Name, soft.Name)

	// A rule missing from the catalog entirely is an orphan too, but
	// carries no deletion marker.
	gone := byID["RUL-gone"]
	assert.False(t, gone.Deleted)
	assert.Equal(t, int64(1), gone.AffectedOrders)
	assert.Equal(t, "ORD-0003", gone.ExampleOrderID)
}

func TestDiagnostics_OrphanRuleReportSkipsCMVEntry(t *testing.T) {
	f := newDiagnosticsFixture()
	live := f.addCommission(t, 12)
	f.storeOrderWithSnapshot("ORD-0001", live.RuleID)

	report, err := f.diagnostics.OrphanRuleReport(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestDiagnostics_OrphanRuleIDs(t *testing.T) {
	f := newDiagnosticsFixture()
	deleted := f.addCommission(t, 8)
	require.NoError(t, deleted.SoftDelete())
	f.storeOrderWithSnapshot("ORD-0001", deleted.RuleID)

	ids, err := f.diagnostics.OrphanRuleIDs(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{deleted.RuleID}, ids)
}

func TestDiagnostics_CostMismatchReport(t *testing.T) {
	f := newDiagnosticsFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	rule := f.addCommission(t, 12)

	order := deliveryOrder()
	f.orders.orders[order.OrderID] = order
	_, err := f.engine.RecomputeLoaded(context.Background(), order)
	require.NoError(t, err)
	require.InDelta(t, 35.76, order.CostSnapshot.NetRevenue, domain.MoneyTolerance)

	t.Run("no drift means no findings", func(t *testing.T) {
		report, err := f.diagnostics.CostMismatchReport(context.Background(), testTenant, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.Scanned)
		assert.Empty(t, report.Mismatches)
	})

	t.Run("rate change surfaces the divergence", func(t *testing.T) {
		rule.Rate = 15

		report, err := f.diagnostics.CostMismatchReport(context.Background(), testTenant, 0)
		require.NoError(t, err)
		require.Len(t, report.Mismatches, 1)

		mismatch := report.Mismatches[0]
		assert.Equal(t, order.OrderID, mismatch.OrderID)
		assert.InDelta(t, 35.76, mismatch.StoredNetRevenue, domain.MoneyTolerance)
		assert.InDelta(t, 34.20, mismatch.FreshNetRevenue, domain.MoneyTolerance)
		assert.InDelta(t, -1.56, mismatch.Delta, domain.MoneyTolerance)
		assert.False(t, report.Truncated)
	})
}

func TestDiagnostics_CostMismatchReportTruncates(t *testing.T) {
	f := newDiagnosticsFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	rule := f.addCommission(t, 12)

	for i := 0; i < 5; i++ {
		order := deliveryOrder()
		order.OrderID = fmt.Sprintf("ORD-%04d", i)
		f.orders.orders[order.OrderID] = order
		_, err := f.engine.RecomputeLoaded(context.Background(), order)
		require.NoError(t, err)
	}

	rule.Rate = 15

	report, err := f.diagnostics.CostMismatchReport(context.Background(), testTenant, 2)
	require.NoError(t, err)
	assert.Len(t, report.Mismatches, 2)
	assert.True(t, report.Truncated)
}
