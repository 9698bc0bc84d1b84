package kafka

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
)

// CircuitBreakerProducer wraps a Producer with a circuit breaker so a broker
// outage fails fast instead of piling up blocked writers.
type CircuitBreakerProducer struct {
	producer *Producer
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewCircuitBreakerProducer creates a CircuitBreakerProducer
func NewCircuitBreakerProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	settings := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Kafka circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &CircuitBreakerProducer{
		producer: producer,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		metrics:  m,
		logger:   logger,
	}
}

// PublishEvent publishes through the circuit breaker
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	start := time.Now()
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, time.Since(start), err)
	}
	return err
}

// PublishBatch publishes a batch through the circuit breaker
func (p *CircuitBreakerProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.CloudEvent) error {
	start := time.Now()
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.producer.PublishBatch(ctx, topic, events)
	})
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, time.Since(start), err)
	}
	return err
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
