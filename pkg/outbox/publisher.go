package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
)

// EventPublisher is the transport the outbox publisher drains into
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}

// PublisherConfig controls the polling loop
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns the default polling configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    50,
	}
}

// Publisher polls the outbox and publishes pending events
type Publisher struct {
	repository Repository
	producer   EventPublisher
	config     *PublisherConfig
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPublisher creates an outbox Publisher
func NewPublisher(repository Repository, producer EventPublisher, config *PublisherConfig, m *metrics.Metrics, logger *logging.Logger) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repository: repository,
		producer:   producer,
		config:     config,
		metrics:    m,
		logger:     logger.WithComponent("outbox-publisher"),
	}
}

// Start begins the polling loop in a goroutine
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	go p.run(ctx)
	p.logger.Info("Outbox publisher started", "pollInterval", p.config.PollInterval.String())
}

// Stop halts the polling loop and waits for in-flight work
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	stoppedCh := p.stoppedCh
	p.mu.Unlock()

	<-stoppedCh
	p.logger.Info("Outbox publisher stopped")
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.processEvents(ctx)
		}
	}
}

func (p *Publisher) processEvents(ctx context.Context) {
	events, err := p.repository.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to fetch pending outbox events")
		return
	}
	if len(events) == 0 {
		if p.metrics != nil {
			p.metrics.SetOutboxPending(0)
		}
		return
	}

	published := 0
	for _, event := range events {
		if !event.ShouldRetry() {
			if err := p.repository.MarkFailed(ctx, event.ID, nil); err != nil {
				p.logger.WithError(err).Error("Failed to mark outbox event exhausted", "eventId", event.ID)
			}
			continue
		}

		cloudEvent, err := event.ToCloudEvent()
		if err != nil {
			p.logger.WithError(err).Error("Undecodable outbox payload", "eventId", event.ID)
			if err := p.repository.MarkFailed(ctx, event.ID, err); err != nil {
				p.logger.WithError(err).Error("Failed to mark outbox event failed", "eventId", event.ID)
			}
			continue
		}

		if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
			p.logger.WithError(err).Warn("Outbox publish failed",
				"eventId", event.ID,
				"topic", event.Topic,
				"retryCount", event.RetryCount,
			)
			if p.metrics != nil {
				p.metrics.RecordOutboxRetry()
			}
			if err := p.repository.MarkFailed(ctx, event.ID, err); err != nil {
				p.logger.WithError(err).Error("Failed to record outbox failure", "eventId", event.ID)
			}
			continue
		}

		if err := p.repository.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark outbox event published", "eventId", event.ID)
			continue
		}
		published++
	}

	if p.metrics != nil {
		if pending, err := p.repository.CountPending(ctx); err == nil {
			p.metrics.SetOutboxPending(int(pending))
		}
	}

	if published > 0 {
		p.logger.Debug("Outbox events published", "count", published)
	}
}

// IsRunning reports whether the publisher loop is active
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
