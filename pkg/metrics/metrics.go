package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsActive  prometheus.Gauge

	// MongoDB
	mongoOperationsTotal   *prometheus.CounterVec
	mongoOperationDuration *prometheus.HistogramVec

	// Kafka / outbox
	kafkaPublishTotal    *prometheus.CounterVec
	kafkaPublishDuration *prometheus.HistogramVec
	outboxPendingEvents  prometheus.Gauge
	outboxRetriesTotal   prometheus.Counter

	// Domain
	snapshotsComputedTotal  *prometheus.CounterVec
	snapshotComputeDuration prometheus.Histogram
	recalcOrdersTotal       *prometheus.CounterVec
	recalcRunsTotal         *prometheus.CounterVec
	orphanRuleRefsFound     prometheus.Gauge
	costWarningsTotal       *prometheus.CounterVec
}

// New creates a Metrics instance with a dedicated registry
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: prometheus.Labels{"service": serviceName},
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),

		httpRequestsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_active",
			Help:        "Number of HTTP requests currently in flight",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),

		mongoOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mongodb_operations_total",
			Help:        "Total number of MongoDB operations",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"collection", "operation", "status"}),

		mongoOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mongodb_operation_duration_seconds",
			Help:        "MongoDB operation duration in seconds",
			ConstLabels: prometheus.Labels{"service": serviceName},
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"collection", "operation"}),

		kafkaPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kafka_publish_total",
			Help:        "Total number of Kafka publish attempts",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"topic", "status"}),

		kafkaPublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "kafka_publish_duration_seconds",
			Help:        "Kafka publish duration in seconds",
			ConstLabels: prometheus.Labels{"service": serviceName},
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"topic"}),

		outboxPendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "outbox_pending_events",
			Help:        "Number of outbox events awaiting publication",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),

		outboxRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "outbox_retries_total",
			Help:        "Total number of outbox publish retries",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),

		snapshotsComputedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cost_snapshots_computed_total",
			Help:        "Total number of cost snapshots computed",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"trigger", "status"}),

		snapshotComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "cost_snapshot_compute_duration_seconds",
			Help:        "Cost snapshot computation duration in seconds",
			ConstLabels: prometheus.Labels{"service": serviceName},
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		recalcOrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recalculation_orders_total",
			Help:        "Total number of orders processed by recalculation runs",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"status"}),

		recalcRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recalculation_runs_total",
			Help:        "Total number of recalculation runs",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"status"}),

		orphanRuleRefsFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orphan_rule_references",
			Help:        "Orphan fee rule references found by the last diagnostics scan",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),

		costWarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cost_warnings_total",
			Help:        "Total number of cost computation warnings",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"code"}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsActive,
		m.mongoOperationsTotal,
		m.mongoOperationDuration,
		m.kafkaPublishTotal,
		m.kafkaPublishDuration,
		m.outboxPendingEvents,
		m.outboxRetriesTotal,
		m.snapshotsComputedTotal,
		m.snapshotComputeDuration,
		m.recalcOrdersTotal,
		m.recalcRunsTotal,
		m.orphanRuleRefsFound,
		m.costWarningsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// HTTPRequestStarted increments the in-flight request gauge
func (m *Metrics) HTTPRequestStarted() {
	m.httpRequestsActive.Inc()
}

// HTTPRequestFinished decrements the in-flight request gauge
func (m *Metrics) HTTPRequestFinished() {
	m.httpRequestsActive.Dec()
}

// RecordMongoOperation records a MongoDB operation
func (m *Metrics) RecordMongoOperation(collection, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.mongoOperationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.mongoOperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish attempt
func (m *Metrics) RecordKafkaPublish(topic string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.kafkaPublishTotal.WithLabelValues(topic, status).Inc()
	m.kafkaPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// SetOutboxPending sets the pending outbox event gauge
func (m *Metrics) SetOutboxPending(count int) {
	m.outboxPendingEvents.Set(float64(count))
}

// RecordOutboxRetry counts an outbox publish retry
func (m *Metrics) RecordOutboxRetry() {
	m.outboxRetriesTotal.Inc()
}

// RecordSnapshotComputed records a snapshot computation
func (m *Metrics) RecordSnapshotComputed(trigger string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.snapshotsComputedTotal.WithLabelValues(trigger, status).Inc()
	m.snapshotComputeDuration.Observe(duration.Seconds())
}

// RecordRecalcOrder counts an order processed by a recalculation run
func (m *Metrics) RecordRecalcOrder(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.recalcOrdersTotal.WithLabelValues(status).Inc()
}

// RecordRecalcRun counts a completed recalculation run by terminal status
func (m *Metrics) RecordRecalcRun(status string) {
	m.recalcRunsTotal.WithLabelValues(status).Inc()
}

// SetOrphanRuleRefs sets the orphan rule reference gauge
func (m *Metrics) SetOrphanRuleRefs(count int) {
	m.orphanRuleRefsFound.Set(float64(count))
}

// RecordCostWarning counts a cost computation warning by code
func (m *Metrics) RecordCostWarning(code string) {
	m.costWarningsTotal.WithLabelValues(code).Inc()
}
