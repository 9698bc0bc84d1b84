package domain

import "time"

// DomainEvent is raised by aggregates and staged through the outbox
type DomainEvent interface {
	EventType() string
}

// SnapshotComputedEvent is raised when an order's snapshot is replaced
type SnapshotComputedEvent struct {
	OrderID          string    `json:"orderId"`
	TenantID         string    `json:"tenantId"`
	Provider         string    `json:"provider"`
	TotalCosts       float64   `json:"totalCosts"`
	TotalCommissions float64   `json:"totalCommissions"`
	NetRevenue       float64   `json:"netRevenue"`
	RuleIDs          []string  `json:"ruleIds"`
	ComputedAt       time.Time `json:"computedAt"`
}

// EventType implements DomainEvent
func (e *SnapshotComputedEvent) EventType() string {
	return "snapshot.computed"
}
