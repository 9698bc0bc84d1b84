package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AllocationKind distinguishes the parent product row from add-on rows
type AllocationKind string

const (
	AllocationPrimary AllocationKind = "primary"
	AllocationAddon   AllocationKind = "addon"
)

// AllocationSubKind refines how the allocation quantity was derived
type AllocationSubKind string

const (
	SubKindRegular         AllocationSubKind = "regular"
	SubKindCompositeFlavor AllocationSubKind = "composite_flavor"
	SubKindAddon           AllocationSubKind = "addon"
)

// Allocation attributes a share of a line item's cost to one catalog
// product. Composite items fan out into fractional flavor allocations;
// the fractions of one item always sum to 1 per flavor slot.
//
// AutoFraction is set exactly when the allocation is a composite flavor
// share: those quantities are derived, never user-supplied, and are
// rebuilt whenever the item is recomputed.
type Allocation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AllocationID string             `bson:"allocationId" json:"allocationId"`
	TenantID     string             `bson:"tenantId" json:"tenantId"`
	OrderID      string             `bson:"orderId" json:"orderId"`
	ItemID       string             `bson:"itemId" json:"itemId"`

	Kind      AllocationKind    `bson:"kind" json:"kind"`
	SubKind   AllocationSubKind `bson:"subKind" json:"subKind"`
	ProductID string            `bson:"productId" json:"productId"`

	// Quantity is the product share per one unit of the line item.
	// For composite flavors it is the fraction repetition/flavorCount.
	Quantity     float64  `bson:"quantity" json:"quantity"`
	CostOverride *float64 `bson:"costOverride,omitempty" json:"costOverride,omitempty"`
	AutoFraction bool     `bson:"autoFraction" json:"autoFraction"`
	AddonName    string   `bson:"addonName,omitempty" json:"addonName,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// NewAllocation creates an allocation. AutoFraction is derived from the
// sub-kind and cannot be set independently.
func NewAllocation(tenantID, orderID, itemID, productID string, kind AllocationKind, subKind AllocationSubKind, quantity float64) (*Allocation, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if itemID == "" {
		return nil, ErrItemIDRequired
	}
	if productID == "" {
		return nil, ErrProductRequired
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	return &Allocation{
		AllocationID: fmt.Sprintf("ALC-%s", uuid.New().String()[:8]),
		TenantID:     tenantID,
		OrderID:      orderID,
		ItemID:       itemID,
		Kind:         kind,
		SubKind:      subKind,
		ProductID:    productID,
		Quantity:     quantity,
		AutoFraction: subKind == SubKindCompositeFlavor,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// FlavorFractionAllocator derives fractional flavor allocations for a
// composite line item from its classified add-ons.
type FlavorFractionAllocator struct{}

// NewFlavorFractionAllocator creates the allocator
func NewFlavorFractionAllocator() *FlavorFractionAllocator {
	return &FlavorFractionAllocator{}
}

// FlavorCount counts the flavor slots of the item: the summed repetition
// of add-ons whose key is classified as flavor. Unclassified add-ons do
// not count, so the divisor can differ from the raw add-on count.
func (a *FlavorFractionAllocator) FlavorCount(item *LineItem, mappings map[string]*ItemMapping) int {
	count := 0
	for _, addon := range item.Addons {
		m, ok := mappings[AddonKey(addon.Name)]
		if !ok || !m.IsFlavor() {
			continue
		}
		count += addon.Quantity
	}
	return count
}

// Allocate builds the flavor allocations for a composite item. Each
// classified, linked flavor add-on receives fraction repetition/flavorCount.
// Classified but unlinked flavors still widen the divisor; they produce a
// warning instead of an allocation.
func (a *FlavorFractionAllocator) Allocate(tenantID string, order *Order, item *LineItem, mappings map[string]*ItemMapping, trace *CostTrace) ([]*Allocation, error) {
	flavorCount := a.FlavorCount(item, mappings)
	if flavorCount == 0 {
		return nil, nil
	}

	var allocations []*Allocation
	for _, addon := range item.Addons {
		m, ok := mappings[AddonKey(addon.Name)]
		if !ok || !m.IsFlavor() {
			continue
		}
		if !m.IsLinked() {
			trace.Warn(WarnMappingUnlinked, addon.Name,
				"flavor %q is classified but not linked to a product", addon.Name)
			continue
		}

		fraction := float64(addon.Quantity) / float64(flavorCount)
		alloc, err := NewAllocation(tenantID, order.OrderID, item.ItemID, m.ProductID,
			AllocationPrimary, SubKindCompositeFlavor, fraction)
		if err != nil {
			return nil, err
		}
		alloc.CostOverride = m.CostOverride
		alloc.AddonName = addon.Name
		allocations = append(allocations, alloc)
	}
	return allocations, nil
}
