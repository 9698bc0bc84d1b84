package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
)

// Producer publishes CloudEvents to Kafka topics
type Producer struct {
	config  *Config
	writers map[string]*kafka.Writer
	mu      sync.Mutex
}

// NewProducer creates a new Producer
func NewProducer(config *Config) *Producer {
	return &Producer{
		config:  config,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:  p.config.MaxAttempts,
		WriteTimeout: p.config.WriteTimeout,
	}
	p.writers[topic] = w
	return w
}

// PublishEvent publishes a single CloudEvent, keyed by its subject so that
// events for the same order land on the same partition.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.ID, err)
	}

	key := event.Subject
	if key == "" {
		key = event.ID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(event.Type)},
			{Key: "ce_id", Value: []byte(event.ID)},
			{Key: "ce_source", Value: []byte(event.Source)},
			{Key: "content-type", Value: []byte("application/cloudevents+json")},
		},
		Time: time.Now(),
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing message to %s: %w", topic, err)
	}
	return nil
}

// PublishBatch publishes multiple CloudEvents in one write
func (p *Producer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.CloudEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling event %s: %w", event.ID, err)
		}
		key := event.Subject
		if key == "" {
			key = event.ID
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "ce_type", Value: []byte(event.Type)},
				{Key: "ce_id", Value: []byte(event.ID)},
			},
			Time: time.Now(),
		})
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing batch to %s: %w", topic, err)
	}
	return nil
}

// Close closes all topic writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing writer for %s: %w", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return firstErr
}
