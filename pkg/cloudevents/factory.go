package cloudevents

import (
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents with a fixed source
type EventFactory struct {
	source string
}

// NewEventFactory creates an EventFactory for the given source URI
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a CloudEvent envelope
func (f *EventFactory) CreateEvent(eventType, subject string, data any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// CreateSnapshotComputedEvent creates a snapshot.computed event
func (f *EventFactory) CreateSnapshotComputedEvent(tenantID string, data *SnapshotComputedData) *CloudEvent {
	event := f.CreateEvent(EventTypeSnapshotComputed, data.OrderID, data)
	event.TenantID = tenantID
	event.OrderID = data.OrderID
	return event
}

// CreateAllocationsRebuiltEvent creates an allocations.rebuilt event
func (f *EventFactory) CreateAllocationsRebuiltEvent(tenantID string, data *AllocationsRebuiltData) *CloudEvent {
	event := f.CreateEvent(EventTypeAllocationsRebuilt, data.OrderID, data)
	event.TenantID = tenantID
	event.OrderID = data.OrderID
	return event
}

// CreateRecalculationStartedEvent creates a recalculation.started event
func (f *EventFactory) CreateRecalculationStartedEvent(tenantID string, data *RecalculationStartedData) *CloudEvent {
	event := f.CreateEvent(EventTypeRecalculationStarted, data.RunID, data)
	event.TenantID = tenantID
	event.RunID = data.RunID
	return event
}

// CreateRecalculationFinishedEvent creates a recalculation.finished event
func (f *EventFactory) CreateRecalculationFinishedEvent(tenantID string, data *RecalculationFinishedData) *CloudEvent {
	event := f.CreateEvent(EventTypeRecalculationFinished, data.RunID, data)
	event.TenantID = tenantID
	event.RunID = data.RunID
	return event
}

// CreateRuleChangedEvent creates a rule.changed event
func (f *EventFactory) CreateRuleChangedEvent(tenantID string, data *RuleChangedData) *CloudEvent {
	event := f.CreateEvent(EventTypeRuleChanged, data.RuleID, data)
	event.TenantID = tenantID
	return event
}
