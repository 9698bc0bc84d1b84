package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
)

const testTenant = "tenant-1"

type engineFixture struct {
	orders      *fakeOrderRepo
	rules       *fakeRuleRepo
	products    *fakeProductRepo
	ingredients *fakeIngredientRepo
	mappings    *fakeMappingRepo
	allocations *fakeAllocationRepo
	staged      *fakeOutboxRepo
	engine      *CostEngine
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		orders:      newFakeOrderRepo(),
		rules:       newFakeRuleRepo(),
		products:    newFakeProductRepo(),
		ingredients: newFakeIngredientRepo(),
		mappings:    newFakeMappingRepo(),
		allocations: newFakeAllocationRepo(),
		staged:      newFakeOutboxRepo(),
	}
	logger := testLogger()
	events := cloudevents.NewEventFactory("/cost-engine-test")
	resolver := NewMappingResolver(f.mappings, f.allocations, f.staged, events, logger)
	loader := NewProductLoader(f.products, f.ingredients)
	f.engine = NewCostEngine(f.orders, f.rules, resolver, loader, domain.NewNameSizeDetector(), logger, nil)
	f.engine.now = func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *engineFixture) addProduct(t *testing.T, name string, unitCost float64) *domain.Product {
	t.Helper()
	product, err := domain.NewProduct(testTenant, name, domain.CategoryRegular, unitCost)
	require.NoError(t, err)
	f.products.products[product.ProductID] = product
	return product
}

func (f *engineFixture) mapSKU(t *testing.T, sku, productID string) *domain.ItemMapping {
	t.Helper()
	m, err := domain.NewItemMapping(testTenant, sku, domain.KeySKU, domain.ClassParentProduct)
	require.NoError(t, err)
	if productID != "" {
		require.NoError(t, m.Link(productID))
	}
	f.mappings.mappings[m.Key] = m
	return m
}

func (f *engineFixture) mapAddon(t *testing.T, name string, class domain.Classification, productID string) *domain.ItemMapping {
	t.Helper()
	m, err := domain.NewItemMapping(testTenant, domain.AddonKey(name), domain.KeyAddon, class)
	require.NoError(t, err)
	if productID != "" {
		require.NoError(t, m.Link(productID))
	}
	f.mappings.mappings[m.Key] = m
	return m
}

func (f *engineFixture) addCommission(t *testing.T, rate float64) *domain.FeeRule {
	t.Helper()
	rule, err := domain.NewFeeRule(testTenant, "Marketplace commission", domain.RulePercentage, domain.RuleCommission)
	require.NoError(t, err)
	rule.Rate = rate
	f.rules.rules[rule.RuleID] = rule
	return rule
}

func deliveryOrder() *domain.Order {
	return &domain.Order{
		OrderID:     "ORD-1001",
		TenantID:    testTenant,
		Provider:    "ifood",
		DeliveryBy:  "merchant",
		GrossTotal:  52.00,
		DeliveryFee: 5.00,
		Items: []domain.LineItem{
			{ItemID: "item-1", SKU: "SKU-PIZZA", Name: "Pizza Calabresa", Quantity: 1, UnitPrice: 47.00},
		},
		PlacedAt: time.Date(2026, 8, 28, 19, 30, 0, 0, time.UTC),
	}
}

func TestCostEngine_ComputeSnapshot(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	f.addCommission(t, 12)

	order := deliveryOrder()
	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	assert.InDelta(t, 10.00, snapshot.TotalCosts, domain.MoneyTolerance)
	assert.InDelta(t, 6.24, snapshot.TotalCommissions, domain.MoneyTolerance)
	assert.InDelta(t, 35.76, snapshot.NetRevenue, domain.MoneyTolerance)

	require.Len(t, snapshot.Costs, 1)
	assert.Equal(t, domain.SnapshotCMVEntryID, snapshot.Costs[0].RuleID)
	require.Len(t, snapshot.Commissions, 1)
	assert.InDelta(t, 6.24, snapshot.Commissions[0].Value, domain.MoneyTolerance)

	assert.InDelta(t, 10.00, report.CMV, domain.MoneyTolerance)
	assert.Equal(t, 1, report.AppliedRules)
	assert.Empty(t, report.Warnings)
}

func TestCostEngine_SnapshotIsDeterministic(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	f.addCommission(t, 12)
	fixed, err := domain.NewFeeRule(testTenant, "Packaging fee", domain.RuleFixed, domain.RuleCost)
	require.NoError(t, err)
	fixed.Amount = 1.50
	f.rules.rules[fixed.RuleID] = fixed

	order := deliveryOrder()
	first, _, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)
	second, _, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestCostEngine_CompositeFlavorFractions(t *testing.T) {
	f := newEngineFixture()
	calabresa := f.addProduct(t, "Calabresa", 8.00)
	frango := f.addProduct(t, "Frango", 12.00)
	f.mapAddon(t, "Calabresa", domain.ClassFlavor, calabresa.ProductID)
	f.mapAddon(t, "Frango Catupiry", domain.ClassFlavor, frango.ProductID)

	order := deliveryOrder()
	order.Items[0].SKU = ""
	order.Items[0].Addons = []domain.Addon{
		{Name: "Calabresa", Quantity: 1},
		{Name: "Frango Catupiry", Quantity: 1},
	}

	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	// Each flavor contributes its cost times fraction 1/2.
	assert.InDelta(t, 10.00, snapshot.TotalCosts, domain.MoneyTolerance)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, domain.WarnMappingNotFound, report.Warnings[0].Code)
}

func TestCostEngine_UnlinkedFlavorWidensDivisor(t *testing.T) {
	f := newEngineFixture()
	pizza := f.addProduct(t, "Pizza Base", 0)
	calabresa := f.addProduct(t, "Calabresa", 8.00)
	f.mapSKU(t, "SKU-PIZZA", pizza.ProductID)
	f.mapAddon(t, "Calabresa", domain.ClassFlavor, calabresa.ProductID)
	f.mapAddon(t, "Quatro Queijos", domain.ClassFlavor, "")

	order := deliveryOrder()
	order.Items[0].Addons = []domain.Addon{
		{Name: "Calabresa", Quantity: 1},
		{Name: "Quatro Queijos", Quantity: 1},
	}

	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	// The unlinked flavor still counts in the divisor: 8.00 * 1/2.
	assert.InDelta(t, 4.00, snapshot.TotalCosts, domain.MoneyTolerance)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, domain.WarnMappingUnlinked, report.Warnings[0].Code)
}

func TestCostEngine_CostOverride(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	m := f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	override := 3.50
	m.CostOverride = &override

	order := deliveryOrder()
	snapshot, _, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	assert.InDelta(t, 3.50, snapshot.TotalCosts, domain.MoneyTolerance)
}

func TestCostEngine_SizeCost(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	product.CostBySize = map[string]float64{
		domain.SizeLarge:  15.00,
		domain.SizeFamily: 20.00,
	}
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)

	t.Run("detected size uses the size table", func(t *testing.T) {
		order := deliveryOrder()
		order.Items[0].Name = "Pizza Calabresa Grande"

		snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, false)
		require.NoError(t, err)
		assert.InDelta(t, 15.00, snapshot.TotalCosts, domain.MoneyTolerance)
		assert.Empty(t, report.Warnings)
	})

	t.Run("undetected size warns and falls back to the flat cost", func(t *testing.T) {
		order := deliveryOrder()
		order.Items[0].Name = "Pizza Calabresa"

		snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, false)
		require.NoError(t, err)
		assert.InDelta(t, 10.00, snapshot.TotalCosts, domain.MoneyTolerance)
		require.Len(t, report.Warnings, 1)
		assert.Equal(t, domain.WarnSizeUndetected, report.Warnings[0].Code)
	})
}

func TestCostEngine_AddonPricesAtFlatCost(t *testing.T) {
	f := newEngineFixture()
	pizza := f.addProduct(t, "Pizza Calabresa", 10.00)
	pizza.CostBySize = map[string]float64{domain.SizeLarge: 15.00}
	borda := f.addProduct(t, "Borda Recheada", 3.00)
	borda.CostBySize = map[string]float64{domain.SizeLarge: 5.00}
	f.mapSKU(t, "SKU-PIZZA", pizza.ProductID)
	f.mapAddon(t, "Borda Recheada", domain.ClassAdditional, borda.ProductID)

	order := deliveryOrder()
	order.Items[0].Name = "Pizza Calabresa Grande"
	order.Items[0].Addons = []domain.Addon{
		{Name: "Borda Recheada", Quantity: 1},
	}

	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	// The item size reaches the primary product only. 15.00 + 3.00.
	assert.InDelta(t, 18.00, snapshot.TotalCosts, domain.MoneyTolerance)
	assert.Empty(t, report.Warnings)
}

func TestCostEngine_RecipeCost(t *testing.T) {
	f := newEngineFixture()
	dough, err := domain.NewIngredient(testTenant, "Massa", 2.00)
	require.NoError(t, err)
	cheese, err := domain.NewIngredient(testTenant, "Mussarela", 4.00)
	require.NoError(t, err)
	f.ingredients.ingredients[dough.IngredientID] = dough
	f.ingredients.ingredients[cheese.IngredientID] = cheese

	product := f.addProduct(t, "Pizza Mussarela", 0)
	product.Components = []domain.Component{
		{ComponentID: dough.IngredientID, Type: domain.ComponentIngredient, Quantity: 1},
		{ComponentID: cheese.IngredientID, Type: domain.ComponentIngredient, Quantity: 2},
	}
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)

	order := deliveryOrder()
	snapshot, _, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	// 1 * 2.00 + 2 * 4.00
	assert.InDelta(t, 10.00, snapshot.TotalCosts, domain.MoneyTolerance)
}

func TestCostEngine_DeletedRuleNotApplied(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	rule := f.addCommission(t, 12)
	require.NoError(t, rule.SoftDelete())

	order := deliveryOrder()
	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)

	assert.Empty(t, snapshot.Commissions)
	assert.Zero(t, report.AppliedRules)
	assert.InDelta(t, 42.00, snapshot.NetRevenue, domain.MoneyTolerance)
}

func TestCostEngine_RecomputeOrder(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	f.addCommission(t, 12)

	order := deliveryOrder()
	f.orders.orders[order.OrderID] = order

	recomputed, report, err := f.engine.RecomputeOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	assert.True(t, recomputed.HasSnapshot())
	assert.InDelta(t, 35.76, recomputed.NetRevenue, domain.MoneyTolerance)
	assert.InDelta(t, 10.00, report.CMV, domain.MoneyTolerance)

	events := recomputed.DomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "snapshot.computed", events[0].EventType())
}

func TestCostEngine_RecomputeReplacesSnapshot(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	rule := f.addCommission(t, 12)

	order := deliveryOrder()
	f.orders.orders[order.OrderID] = order

	_, _, err := f.engine.RecomputeOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.Contains(t, order.CostSnapshot.RuleIDs(), rule.RuleID)

	require.NoError(t, rule.SoftDelete())

	_, _, err = f.engine.RecomputeOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	// The replaced snapshot carries no trace of the deleted rule.
	assert.NotContains(t, order.CostSnapshot.RuleIDs(), rule.RuleID)
	assert.Empty(t, order.CostSnapshot.Commissions)
	assert.InDelta(t, 42.00, order.NetRevenue, domain.MoneyTolerance)
}

func TestCostEngine_RecomputeOrderNotFound(t *testing.T) {
	f := newEngineFixture()
	_, _, err := f.engine.RecomputeOrder(context.Background(), "ORD-missing")
	require.Error(t, err)
}

func TestCostEngine_PreviewDoesNotPersist(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Pizza Calabresa", 10.00)
	f.mapSKU(t, "SKU-PIZZA", product.ProductID)
	f.addCommission(t, 12)

	order := deliveryOrder()
	snapshot, _, err := f.engine.Preview(context.Background(), order)
	require.NoError(t, err)

	assert.InDelta(t, 35.76, snapshot.NetRevenue, domain.MoneyTolerance)
	assert.Zero(t, f.allocations.replaceCount())
	assert.Zero(t, f.orders.saves)
}

func TestCostEngine_ItemQuantityMultipliesCost(t *testing.T) {
	f := newEngineFixture()
	product := f.addProduct(t, "Refrigerante Lata", 2.50)
	f.mapSKU(t, "SKU-SODA", product.ProductID)

	order := deliveryOrder()
	order.Items = []domain.LineItem{
		{ItemID: "item-1", SKU: "SKU-SODA", Name: "Refrigerante Lata", Quantity: 3, UnitPrice: 6.00},
	}

	snapshot, report, err := f.engine.ComputeSnapshot(context.Background(), order, true)
	require.NoError(t, err)
	assert.InDelta(t, 7.50, snapshot.TotalCosts, domain.MoneyTolerance)
	assert.InDelta(t, 7.50, report.ItemCosts["item-1"], domain.MoneyTolerance)
}
