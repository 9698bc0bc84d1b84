package application

import (
	"context"
	"fmt"

	"github.com/orderkit/cost-engine/internal/domain"
)

// maxRecipeDepth bounds the closure walk over nested recipes
const maxRecipeDepth = 6

// ProductLoader loads the closure of products and ingredients an order's
// allocations reference, so cost resolution runs against an in-memory index.
type ProductLoader struct {
	products    domain.ProductRepository
	ingredients domain.IngredientRepository
}

// NewProductLoader creates a ProductLoader
func NewProductLoader(products domain.ProductRepository, ingredients domain.IngredientRepository) *ProductLoader {
	return &ProductLoader{products: products, ingredients: ingredients}
}

// IndexFor loads the given products plus everything their recipes reach,
// transitively, and returns a ready index.
func (l *ProductLoader) IndexFor(ctx context.Context, tenantID string, productIDs []string) (*domain.ProductIndex, error) {
	loaded := make(map[string]*domain.Product)
	ingredientIDs := make(map[string]bool)

	pending := dedupe(productIDs)
	for depth := 0; depth < maxRecipeDepth && len(pending) > 0; depth++ {
		var fetch []string
		for _, id := range pending {
			if _, ok := loaded[id]; !ok {
				fetch = append(fetch, id)
			}
		}
		if len(fetch) == 0 {
			break
		}

		products, err := l.products.FindByProductIDs(ctx, tenantID, fetch)
		if err != nil {
			return nil, fmt.Errorf("loading products: %w", err)
		}

		pending = nil
		for _, p := range products {
			loaded[p.ProductID] = p
			for _, comp := range p.Components {
				switch comp.Type {
				case domain.ComponentProduct:
					if _, ok := loaded[comp.ComponentID]; !ok {
						pending = append(pending, comp.ComponentID)
					}
				case domain.ComponentIngredient:
					ingredientIDs[comp.ComponentID] = true
				}
			}
		}
	}

	var ingredients []*domain.Ingredient
	if len(ingredientIDs) > 0 {
		ids := make([]string, 0, len(ingredientIDs))
		for id := range ingredientIDs {
			ids = append(ids, id)
		}
		var err error
		ingredients, err = l.ingredients.FindByIngredientIDs(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("loading ingredients: %w", err)
		}
	}

	products := make([]*domain.Product, 0, len(loaded))
	for _, p := range loaded {
		products = append(products, p)
	}
	return domain.NewProductIndex(products, ingredients), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
