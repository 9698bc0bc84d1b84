package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductCategory classifies catalog products
type ProductCategory string

const (
	CategoryRegular         ProductCategory = "regular"
	CategoryCompositeFlavor ProductCategory = "composite_flavor"
	CategoryBeverage        ProductCategory = "beverage"
	CategoryComplement      ProductCategory = "complement"
	CategoryCombo           ProductCategory = "combo"
)

// IsValid checks if the category is valid
func (c ProductCategory) IsValid() bool {
	switch c {
	case CategoryRegular, CategoryCompositeFlavor, CategoryBeverage, CategoryComplement, CategoryCombo:
		return true
	}
	return false
}

// ComponentType identifies what a recipe entry points to
type ComponentType string

const (
	ComponentIngredient ComponentType = "ingredient"
	ComponentProduct    ComponentType = "product"
)

// Component is one entry of a product recipe. An entry may be scoped to a
// size, in which case it only contributes when that size is being costed.
type Component struct {
	ComponentID string        `bson:"componentId" json:"componentId"`
	Type        ComponentType `bson:"type" json:"type"`
	Quantity    float64       `bson:"quantity" json:"quantity"`
	Size        string        `bson:"size,omitempty" json:"size,omitempty"`
}

// Ingredient is a purchasable input with a unit price
type Ingredient struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	IngredientID string             `bson:"ingredientId" json:"ingredientId"`
	TenantID     string             `bson:"tenantId" json:"tenantId"`
	Name         string             `bson:"name" json:"name"`
	UnitPrice    float64            `bson:"unitPrice" json:"unitPrice"`
	Unit         string             `bson:"unit,omitempty" json:"unit,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewIngredient creates an ingredient
func NewIngredient(tenantID, name string, unitPrice float64) (*Ingredient, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if unitPrice < 0 {
		return nil, ErrNegativePrice
	}
	now := time.Now().UTC()
	return &Ingredient{
		IngredientID: fmt.Sprintf("ING-%s", uuid.New().String()[:8]),
		TenantID:     tenantID,
		Name:         name,
		UnitPrice:    unitPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Product is a sellable catalog item. Its cost comes from, in order of
// preference: the recipe (components), the per-size cost table, then the
// flat unit cost.
type Product struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ProductID  string             `bson:"productId" json:"productId"`
	TenantID   string             `bson:"tenantId" json:"tenantId"`
	Name       string             `bson:"name" json:"name"`
	Category   ProductCategory    `bson:"category" json:"category"`
	UnitCost   float64            `bson:"unitCost" json:"unitCost"`
	CostBySize map[string]float64 `bson:"costBySize,omitempty" json:"costBySize,omitempty"`
	Size       string             `bson:"size,omitempty" json:"size,omitempty"`
	MaxFlavors int                `bson:"maxFlavors,omitempty" json:"maxFlavors,omitempty"`
	Components []Component        `bson:"components,omitempty" json:"components,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewProduct creates a product
func NewProduct(tenantID, name string, category ProductCategory, unitCost float64) (*Product, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}
	if unitCost < 0 {
		return nil, ErrNegativePrice
	}
	now := time.Now().UTC()
	return &Product{
		ProductID: fmt.Sprintf("PRD-%s", uuid.New().String()[:8]),
		TenantID:  tenantID,
		Name:      name,
		Category:  category,
		UnitCost:  unitCost,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasRecipe reports whether the product cost is derived from components
func (p *Product) HasRecipe() bool {
	return len(p.Components) > 0
}

// IsComposite reports whether the product is sold as split flavors
func (p *Product) IsComposite() bool {
	return p.Category == CategoryCompositeFlavor
}

// ComponentProductIDs returns the product IDs referenced by the recipe
func (p *Product) ComponentProductIDs() []string {
	var ids []string
	for _, c := range p.Components {
		if c.Type == ComponentProduct {
			ids = append(ids, c.ComponentID)
		}
	}
	return ids
}

// ProductIndex is an in-memory lookup over the products and ingredients
// needed to cost one order. Repositories load the closure; the index keeps
// cost resolution free of I/O.
type ProductIndex struct {
	products    map[string]*Product
	ingredients map[string]*Ingredient
}

// NewProductIndex builds an index from loaded products and ingredients
func NewProductIndex(products []*Product, ingredients []*Ingredient) *ProductIndex {
	idx := &ProductIndex{
		products:    make(map[string]*Product, len(products)),
		ingredients: make(map[string]*Ingredient, len(ingredients)),
	}
	for _, p := range products {
		idx.products[p.ProductID] = p
	}
	for _, i := range ingredients {
		idx.ingredients[i.IngredientID] = i
	}
	return idx
}

// Product returns a product by ID
func (idx *ProductIndex) Product(productID string) (*Product, bool) {
	p, ok := idx.products[productID]
	return p, ok
}

// Ingredient returns an ingredient by ID
func (idx *ProductIndex) Ingredient(ingredientID string) (*Ingredient, bool) {
	i, ok := idx.ingredients[ingredientID]
	return i, ok
}

// Size returns the count of indexed products and ingredients
func (idx *ProductIndex) Size() (int, int) {
	return len(idx.products), len(idx.ingredients)
}

// NormalizeSize lowercases and trims a size token
func NormalizeSize(size string) string {
	return strings.ToLower(strings.TrimSpace(size))
}
