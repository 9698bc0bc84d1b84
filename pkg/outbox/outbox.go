package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
)

// Status of an outbox event
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// DefaultMaxRetries before an event is marked failed
const DefaultMaxRetries = 5

// Event is a staged domain event awaiting publication. Events are written
// in the same transaction as the state change they describe.
type Event struct {
	ID            string     `bson:"_id" json:"id"`
	AggregateID   string     `bson:"aggregateId" json:"aggregateId"`
	AggregateType string     `bson:"aggregateType" json:"aggregateType"`
	EventType     string     `bson:"eventType" json:"eventType"`
	Topic         string     `bson:"topic" json:"topic"`
	Payload       []byte     `bson:"payload" json:"payload"`
	Status        string     `bson:"status" json:"status"`
	RetryCount    int        `bson:"retryCount" json:"retryCount"`
	MaxRetries    int        `bson:"maxRetries" json:"maxRetries"`
	LastError     string     `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
}

// NewEventFromCloudEvent stages a CloudEvent for publication
func NewEventFromCloudEvent(aggregateID, aggregateType, topic string, cloudEvent *cloudevents.CloudEvent) (*Event, error) {
	payload, err := json.Marshal(cloudEvent)
	if err != nil {
		return nil, fmt.Errorf("marshaling cloud event: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     cloudEvent.Type,
		Topic:         topic,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// IsPublished reports whether the event has been published
func (e *Event) IsPublished() bool {
	return e.Status == StatusPublished
}

// ShouldRetry reports whether the event is eligible for another attempt
func (e *Event) ShouldRetry() bool {
	return e.Status == StatusPending && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the staged payload back into a CloudEvent
func (e *Event) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshaling outbox payload: %w", err)
	}
	return &event, nil
}
