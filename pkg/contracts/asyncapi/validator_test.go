package asyncapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
)

const specPath = "../../../api/asyncapi.yaml"

func newValidator(t *testing.T) *EventValidator {
	t.Helper()
	validator, err := NewEventValidator(specPath)
	require.NoError(t, err)
	return validator
}

func TestValidatorCompilesAllSchemas(t *testing.T) {
	validator := newValidator(t)

	for _, eventType := range []string{
		cloudevents.EventTypeSnapshotComputed,
		cloudevents.EventTypeAllocationsRebuilt,
		cloudevents.EventTypeRuleChanged,
		cloudevents.EventTypeRecalculationStarted,
		cloudevents.EventTypeRecalculationFinished,
	} {
		assert.True(t, validator.HasSchema(eventType), eventType)
	}
	assert.Len(t, validator.SupportedEventTypes(), 5)
}

func TestValidateSnapshotComputedEvent(t *testing.T) {
	validator := newValidator(t)
	factory := cloudevents.NewEventFactory("/cost-engine")

	event := factory.CreateSnapshotComputedEvent("tenant-1", &cloudevents.SnapshotComputedData{
		OrderID:          "ORD-1001",
		Provider:         "ifood",
		TotalCosts:       10.00,
		TotalCommissions: 6.24,
		NetRevenue:       35.76,
		RuleIDs:          []string{"RUL-base"},
		ComputedAt:       time.Now().UTC(),
	})

	assert.NoError(t, validator.ValidateEvent(event))
}

func TestValidateSnapshotComputedEventWithoutRules(t *testing.T) {
	validator := newValidator(t)
	factory := cloudevents.NewEventFactory("/cost-engine")

	// Orders outside every rule's match scope produce snapshots that
	// reference no rules at all.
	event := factory.CreateSnapshotComputedEvent("tenant-1", &cloudevents.SnapshotComputedData{
		OrderID:    "ORD-1002",
		Provider:   "counter",
		NetRevenue: 42.00,
		ComputedAt: time.Now().UTC(),
	})

	assert.NoError(t, validator.ValidateEvent(event))
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	validator := newValidator(t)
	factory := cloudevents.NewEventFactory("/cost-engine")

	event := factory.CreateEvent(cloudevents.EventTypeSnapshotComputed, "ORD-1001", map[string]any{
		"provider": "ifood",
	})

	err := validator.ValidateEvent(event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "violates its contract")
}

func TestValidateRejectsUnknownRuleAction(t *testing.T) {
	validator := newValidator(t)
	factory := cloudevents.NewEventFactory("/cost-engine")

	event := factory.CreateRuleChangedEvent("tenant-1", &cloudevents.RuleChangedData{
		RuleID: "RUL-base",
		Action: "archived",
	})

	assert.Error(t, validator.ValidateEvent(event))
}

func TestValidateRecalculationFinishedEvent(t *testing.T) {
	validator := newValidator(t)
	factory := cloudevents.NewEventFactory("/cost-engine")

	event := factory.CreateRecalculationFinishedEvent("tenant-1", &cloudevents.RecalculationFinishedData{
		RunID:     "RUN-1",
		Status:    "completed",
		Processed: 997,
		Errors:    3,
	})

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NoError(t, validator.ValidateEventJSON(payload))
}

func TestValidateUnknownEventType(t *testing.T) {
	validator := newValidator(t)

	err := validator.ValidateEvent(&cloudevents.CloudEvent{
		Type: "com.orderkit.costs.unknown",
		Data: map[string]any{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}
