package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
)

// EventValidator validates CloudEvent payloads against the schemas of an
// AsyncAPI specification.
type EventValidator struct {
	schemas map[string]*jsonschema.Schema
}

// Spec holds the relevant parts of an AsyncAPI document
type Spec struct {
	AsyncAPI   string     `yaml:"asyncapi"`
	Info       Info       `yaml:"info"`
	Components Components `yaml:"components"`
}

// Info is the AsyncAPI info section
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Components holds the reusable schema definitions
type Components struct {
	Schemas map[string]any `yaml:"schemas"`
}

// Schema names map to the event types whose payloads they describe.
var schemaEventTypes = map[string]string{
	"SnapshotComputedData":      cloudevents.EventTypeSnapshotComputed,
	"AllocationsRebuiltData":    cloudevents.EventTypeAllocationsRebuilt,
	"RuleChangedData":           cloudevents.EventTypeRuleChanged,
	"RecalculationStartedData":  cloudevents.EventTypeRecalculationStarted,
	"RecalculationFinishedData": cloudevents.EventTypeRecalculationFinished,
}

// NewEventValidator loads an AsyncAPI specification file and compiles a
// validator for every payload schema it declares.
func NewEventValidator(specPath string) (*EventValidator, error) {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("reading asyncapi spec: %w", err)
	}
	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes compiles a validator from specification bytes
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec Spec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("parsing asyncapi spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema)

	for name, schema := range spec.Components.Schemas {
		eventType, ok := schemaEventTypes[name]
		if !ok {
			continue
		}

		// YAML maps must round-trip through JSON before compilation.
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("encoding schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding schema %s: %w", name, err)
		}

		uri := fmt.Sprintf("asyncapi:///schemas/%s", name)
		if err := compiler.AddResource(uri, doc); err != nil {
			return nil, fmt.Errorf("registering schema %s: %w", name, err)
		}
		compiled, err := compiler.Compile(uri)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		schemas[eventType] = compiled
	}

	return &EventValidator{schemas: schemas}, nil
}

// ValidateEvent validates the event's data payload against the schema
// registered for its type.
func (v *EventValidator) ValidateEvent(event *cloudevents.CloudEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema for event type %s", event.Type)
	}
	if event.Data == nil {
		return fmt.Errorf("event data is required")
	}

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decoding event data: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("payload of %s violates its contract: %w", event.Type, err)
	}
	return nil
}

// ValidateEventJSON validates a CloudEvent from its wire form
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("parsing cloud event: %w", err)
	}
	return v.ValidateEvent(&event)
}

// HasSchema reports whether a schema exists for the event type
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// SupportedEventTypes returns every event type with a registered schema
func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	return types
}
