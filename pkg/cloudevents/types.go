package cloudevents

import "time"

// Event types emitted by the cost engine
const (
	EventTypeSnapshotComputed      = "com.orderkit.costs.snapshot.computed"
	EventTypeAllocationsRebuilt    = "com.orderkit.costs.allocations.rebuilt"
	EventTypeRecalculationStarted  = "com.orderkit.costs.recalculation.started"
	EventTypeRecalculationFinished = "com.orderkit.costs.recalculation.finished"
	EventTypeRuleChanged           = "com.orderkit.costs.rule.changed"
)

// SpecVersion is the CloudEvents specification version used on the wire
const SpecVersion = "1.0"

// CloudEvent is the CloudEvents 1.0 envelope with cost-engine extensions
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`

	// Extensions
	TenantID      string `json:"tenantid,omitempty"`
	OrderID       string `json:"orderid,omitempty"`
	RunID         string `json:"runid,omitempty"`
	CorrelationID string `json:"correlationid,omitempty"`
}

// SnapshotComputedData is the payload of a snapshot.computed event
type SnapshotComputedData struct {
	OrderID          string    `json:"orderId"`
	Provider         string    `json:"provider"`
	TotalCosts       float64   `json:"totalCosts"`
	TotalCommissions float64   `json:"totalCommissions"`
	NetRevenue       float64   `json:"netRevenue"`
	RuleIDs          []string  `json:"ruleIds"`
	ComputedAt       time.Time `json:"computedAt"`
}

// AllocationsRebuiltData is the payload of an allocations.rebuilt event
type AllocationsRebuiltData struct {
	OrderID     string `json:"orderId"`
	Allocations int    `json:"allocations"`
}

// RecalculationStartedData is the payload of a recalculation.started event
type RecalculationStartedData struct {
	RunID    string `json:"runId"`
	Total    int64  `json:"total"`
	Provider string `json:"provider,omitempty"`
	RuleID   string `json:"ruleId,omitempty"`
}

// RecalculationFinishedData is the payload of a recalculation.finished event
type RecalculationFinishedData struct {
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
}

// RuleChangedData is the payload of a rule.changed event
type RuleChangedData struct {
	RuleID string `json:"ruleId"`
	Action string `json:"action"`
}
