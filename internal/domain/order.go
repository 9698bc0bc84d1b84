package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Providers the engine knows how to classify. Aggregator orders arrive
// through a marketplace and carry the originating storefront in Origin.
const (
	ProviderAggregator = "aggregator"
)

// Addon is an add-on attached to a line item, identified by name only.
// Quantity is the repetition count within the item.
type Addon struct {
	Name      string  `bson:"name" json:"name"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	UnitPrice float64 `bson:"unitPrice,omitempty" json:"unitPrice,omitempty"`
}

// LineItem is one purchasable row of an order
type LineItem struct {
	ItemID    string  `bson:"itemId" json:"itemId"`
	SKU       string  `bson:"sku" json:"sku"`
	Name      string  `bson:"name" json:"name"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	UnitPrice float64 `bson:"unitPrice" json:"unitPrice"`
	Addons    []Addon `bson:"addons,omitempty" json:"addons,omitempty"`
}

// LineTotal returns the gross revenue of the item including add-ons
func (li *LineItem) LineTotal() float64 {
	total := li.UnitPrice * float64(li.Quantity)
	for _, a := range li.Addons {
		total += a.UnitPrice * float64(a.Quantity) * float64(li.Quantity)
	}
	return total
}

// Order is the costing aggregate. Orders are ingested from external
// channels; the engine owns only the snapshot and the derived totals.
type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrderID       string             `bson:"orderId" json:"orderId"`
	TenantID      string             `bson:"tenantId" json:"tenantId"`
	Provider      string             `bson:"provider" json:"provider"`
	Origin        string             `bson:"origin,omitempty" json:"origin,omitempty"`
	DeliveryBy    string             `bson:"deliveryBy,omitempty" json:"deliveryBy,omitempty"`
	PaymentMethod string             `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`

	GrossTotal  float64    `bson:"grossTotal" json:"grossTotal"`
	DeliveryFee float64    `bson:"deliveryFee" json:"deliveryFee"`
	Items       []LineItem `bson:"items" json:"items"`

	CostSnapshot     *CostSnapshot `bson:"costSnapshot,omitempty" json:"costSnapshot,omitempty"`
	TotalCosts       float64       `bson:"totalCosts" json:"totalCosts"`
	TotalCommissions float64       `bson:"totalCommissions" json:"totalCommissions"`
	NetRevenue       float64       `bson:"netRevenue" json:"netRevenue"`

	PlacedAt  time.Time `bson:"placedAt" json:"placedAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	events []DomainEvent `bson:"-"`
}

// IsDelivery reports whether the order was fulfilled via delivery
func (o *Order) IsDelivery() bool {
	return o.DeliveryBy != "" || o.DeliveryFee > 0
}

// Subtotal returns the gross total minus the delivery fee
func (o *Order) Subtotal() float64 {
	return o.GrossTotal - o.DeliveryFee
}

// Item returns the line item with the given ID
func (o *Order) Item(itemID string) (*LineItem, bool) {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// ApplySnapshot replaces the persisted snapshot wholesale and refreshes
// the derived totals. Previous snapshot content never survives partially.
func (o *Order) ApplySnapshot(snapshot *CostSnapshot) {
	o.CostSnapshot = snapshot
	o.TotalCosts = snapshot.TotalCosts
	o.TotalCommissions = snapshot.TotalCommissions
	o.NetRevenue = snapshot.NetRevenue
	o.UpdatedAt = time.Now().UTC()

	o.events = append(o.events, &SnapshotComputedEvent{
		OrderID:          o.OrderID,
		TenantID:         o.TenantID,
		Provider:         o.Provider,
		TotalCosts:       snapshot.TotalCosts,
		TotalCommissions: snapshot.TotalCommissions,
		NetRevenue:       snapshot.NetRevenue,
		RuleIDs:          snapshot.RuleIDs(),
		ComputedAt:       snapshot.ComputedAt,
	})
}

// HasSnapshot reports whether a snapshot has been computed
func (o *Order) HasSnapshot() bool {
	return o.CostSnapshot != nil
}

// DomainEvents returns and clears the staged events
func (o *Order) DomainEvents() []DomainEvent {
	events := o.events
	o.events = nil
	return events
}
