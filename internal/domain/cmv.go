package domain

import "fmt"

// WarningCode classifies non-fatal cost resolution findings
type WarningCode string

const (
	WarnMappingNotFound     WarningCode = "MAPPING_NOT_FOUND"
	WarnMappingUnlinked     WarningCode = "MAPPING_UNLINKED"
	WarnProductNotFound     WarningCode = "PRODUCT_NOT_FOUND"
	WarnComponentUnresolved WarningCode = "COMPONENT_UNRESOLVED"
	WarnRecipeCycle         WarningCode = "RECIPE_CYCLE"
	WarnSizeUndetected      WarningCode = "SIZE_UNDETECTED"
)

// CostWarning records a degraded lookup during cost resolution. Warnings
// never abort a computation; the affected contribution is zero.
type CostWarning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Ref     string      `json:"ref,omitempty"`
}

// CostTrace accumulates warnings across one order computation
type CostTrace struct {
	Warnings []CostWarning
}

// Warn appends a warning to the trace
func (t *CostTrace) Warn(code WarningCode, ref, format string, args ...any) {
	if t == nil {
		return
	}
	t.Warnings = append(t.Warnings, CostWarning{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Ref:     ref,
	})
}

// HasWarnings reports whether any warnings were recorded
func (t *CostTrace) HasWarnings() bool {
	return t != nil && len(t.Warnings) > 0
}

// CMVCalculator resolves the cost of goods sold for a product. Resolution
// order: recipe components, per-size cost table, flat unit cost.
type CMVCalculator struct {
	index *ProductIndex
}

// NewCMVCalculator creates a calculator over a loaded product index
func NewCMVCalculator(index *ProductIndex) *CMVCalculator {
	return &CMVCalculator{index: index}
}

// UnitCost returns the cost of one unit of the product at the given size.
// An empty size falls back to the flat unit cost.
func (c *CMVCalculator) UnitCost(product *Product, size string, trace *CostTrace) float64 {
	return c.unitCost(product, NormalizeSize(size), trace, map[string]bool{})
}

// UnitCostByID resolves a product by ID before computing its cost
func (c *CMVCalculator) UnitCostByID(productID, size string, trace *CostTrace) float64 {
	product, ok := c.index.Product(productID)
	if !ok {
		trace.Warn(WarnProductNotFound, productID, "product %s not in catalog", productID)
		return 0
	}
	return c.UnitCost(product, size, trace)
}

func (c *CMVCalculator) unitCost(product *Product, size string, trace *CostTrace, visited map[string]bool) float64 {
	if visited[product.ProductID] {
		trace.Warn(WarnRecipeCycle, product.ProductID, "recipe cycle at product %s", product.ProductID)
		return 0
	}
	visited[product.ProductID] = true
	defer delete(visited, product.ProductID)

	if product.HasRecipe() {
		return c.recipeCost(product, size, trace, visited)
	}

	if size != "" && len(product.CostBySize) > 0 {
		if cost, ok := product.CostBySize[size]; ok {
			return cost
		}
		// no entry for this size, fall back to the flat cost
	}

	return product.UnitCost
}

// recipeCost sums component contributions. Entries scoped to a size only
// contribute when that size is requested; unscoped entries always do.
func (c *CMVCalculator) recipeCost(product *Product, size string, trace *CostTrace, visited map[string]bool) float64 {
	total := 0.0
	for _, comp := range product.Components {
		entrySize := NormalizeSize(comp.Size)
		if entrySize != "" && entrySize != size {
			continue
		}

		switch comp.Type {
		case ComponentIngredient:
			ingredient, ok := c.index.Ingredient(comp.ComponentID)
			if !ok {
				trace.Warn(WarnComponentUnresolved, comp.ComponentID,
					"ingredient %s referenced by %s not found", comp.ComponentID, product.ProductID)
				continue
			}
			total += ingredient.UnitPrice * comp.Quantity

		case ComponentProduct:
			sub, ok := c.index.Product(comp.ComponentID)
			if !ok {
				trace.Warn(WarnComponentUnresolved, comp.ComponentID,
					"product %s referenced by %s not found", comp.ComponentID, product.ProductID)
				continue
			}
			total += c.unitCost(sub, size, trace, visited) * comp.Quantity

		default:
			trace.Warn(WarnComponentUnresolved, comp.ComponentID,
				"unknown component type %q on %s", comp.Type, product.ProductID)
		}
	}
	return total
}
