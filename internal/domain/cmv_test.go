package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T) *ProductIndex {
	t.Helper()

	flour, err := NewIngredient("tenant-1", "Flour", 0.50)
	require.NoError(t, err)
	flour.IngredientID = "ING-flour"

	cheese, err := NewIngredient("tenant-1", "Mozzarella", 2.00)
	require.NoError(t, err)
	cheese.IngredientID = "ING-cheese"

	dough, err := NewProduct("tenant-1", "Pizza dough", CategoryRegular, 0)
	require.NoError(t, err)
	dough.ProductID = "PRD-dough"
	dough.Components = []Component{
		{ComponentID: "ING-flour", Type: ComponentIngredient, Quantity: 2},
	}

	margherita, err := NewProduct("tenant-1", "Margherita", CategoryCompositeFlavor, 0)
	require.NoError(t, err)
	margherita.ProductID = "PRD-margherita"
	margherita.Components = []Component{
		{ComponentID: "PRD-dough", Type: ComponentProduct, Quantity: 1},
		{ComponentID: "ING-cheese", Type: ComponentIngredient, Quantity: 1.5},
	}

	sized, err := NewProduct("tenant-1", "Pepperoni", CategoryCompositeFlavor, 8.00)
	require.NoError(t, err)
	sized.ProductID = "PRD-pepperoni"
	sized.CostBySize = map[string]float64{
		SizeSmall: 5.00,
		SizeLarge: 11.00,
	}

	return NewProductIndex(
		[]*Product{dough, margherita, sized},
		[]*Ingredient{flour, cheese},
	)
}

func TestCMVCalculator_RecipeCost(t *testing.T) {
	calc := NewCMVCalculator(buildIndex(t))
	trace := &CostTrace{}

	// dough = 2 * 0.50 = 1.00; margherita = dough + 1.5 * 2.00 = 4.00
	cost := calc.UnitCostByID("PRD-margherita", "", trace)
	assert.InDelta(t, 4.00, cost, MoneyTolerance)
	assert.False(t, trace.HasWarnings())
}

func TestCMVCalculator_CostBySize(t *testing.T) {
	calc := NewCMVCalculator(buildIndex(t))

	tests := []struct {
		name string
		size string
		want float64
	}{
		{"known size", SizeLarge, 11.00},
		{"size casing normalized", "Large", 11.00},
		{"unknown size falls back to flat cost", SizeMedium, 8.00},
		{"no size falls back to flat cost", "", 8.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := &CostTrace{}
			cost := calc.UnitCostByID("PRD-pepperoni", tt.size, trace)
			assert.InDelta(t, tt.want, cost, MoneyTolerance)
		})
	}
}

func TestCMVCalculator_SizeScopedComponents(t *testing.T) {
	flour, err := NewIngredient("tenant-1", "Flour", 1.00)
	require.NoError(t, err)
	flour.IngredientID = "ING-flour"

	product, err := NewProduct("tenant-1", "Calzone", CategoryRegular, 0)
	require.NoError(t, err)
	product.ProductID = "PRD-calzone"
	product.Components = []Component{
		{ComponentID: "ING-flour", Type: ComponentIngredient, Quantity: 2},
		{ComponentID: "ING-flour", Type: ComponentIngredient, Quantity: 3, Size: SizeLarge},
	}

	calc := NewCMVCalculator(NewProductIndex([]*Product{product}, []*Ingredient{flour}))
	trace := &CostTrace{}

	// base entry only
	assert.InDelta(t, 2.00, calc.UnitCost(product, "", trace), MoneyTolerance)
	// base entry plus the large-scoped one
	assert.InDelta(t, 5.00, calc.UnitCost(product, SizeLarge, trace), MoneyTolerance)
}

func TestCMVCalculator_MissingProduct(t *testing.T) {
	calc := NewCMVCalculator(buildIndex(t))
	trace := &CostTrace{}

	cost := calc.UnitCostByID("PRD-ghost", "", trace)
	assert.Zero(t, cost)
	require.Len(t, trace.Warnings, 1)
	assert.Equal(t, WarnProductNotFound, trace.Warnings[0].Code)
}

func TestCMVCalculator_UnresolvedComponent(t *testing.T) {
	product, err := NewProduct("tenant-1", "Mystery", CategoryRegular, 0)
	require.NoError(t, err)
	product.ProductID = "PRD-mystery"
	product.Components = []Component{
		{ComponentID: "ING-missing", Type: ComponentIngredient, Quantity: 1},
	}

	calc := NewCMVCalculator(NewProductIndex([]*Product{product}, nil))
	trace := &CostTrace{}

	cost := calc.UnitCost(product, "", trace)
	assert.Zero(t, cost)
	require.Len(t, trace.Warnings, 1)
	assert.Equal(t, WarnComponentUnresolved, trace.Warnings[0].Code)
}

func TestCMVCalculator_RecipeCycle(t *testing.T) {
	a, err := NewProduct("tenant-1", "A", CategoryRegular, 0)
	require.NoError(t, err)
	a.ProductID = "PRD-a"
	a.Components = []Component{{ComponentID: "PRD-b", Type: ComponentProduct, Quantity: 1}}

	b, err := NewProduct("tenant-1", "B", CategoryRegular, 0)
	require.NoError(t, err)
	b.ProductID = "PRD-b"
	b.Components = []Component{{ComponentID: "PRD-a", Type: ComponentProduct, Quantity: 1}}

	calc := NewCMVCalculator(NewProductIndex([]*Product{a, b}, nil))
	trace := &CostTrace{}

	cost := calc.UnitCostByID("PRD-a", "", trace)
	assert.Zero(t, cost)
	require.NotEmpty(t, trace.Warnings)
	assert.Equal(t, WarnRecipeCycle, trace.Warnings[0].Code)
}
