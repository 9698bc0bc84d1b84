package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/kafka"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
	"github.com/orderkit/cost-engine/pkg/outbox"
)

// Selector describes which orders a recalculation run targets
type Selector struct {
	TenantID   string
	Provider   string
	RuleID     string
	OrphanOnly bool
	OrderIDs   []string
}

// RunOptions tunes a recalculation run
type RunOptions struct {
	BatchSize int
	Workers   int
}

func (o RunOptions) withDefaults() RunOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// BatchResult reports one processed batch
type BatchResult struct {
	LastID    string
	Processed int64
	Errors    int64
	Messages  []string
	Done      bool
	Cancelled bool
}

// RunSummary is the terminal outcome of a run
type RunSummary struct {
	RunID     string           `json:"runId"`
	Status    domain.RunStatus `json:"status"`
	Total     int64            `json:"total"`
	Processed int64            `json:"processed"`
	Errors    int64            `json:"errors"`
}

// BatchRecalculator drives idempotent, partial-failure-tolerant
// recomputation across large order sets. Orders are paged by ascending
// orderId; each order failure is counted and the run continues.
type BatchRecalculator struct {
	engine      *CostEngine
	orders      domain.OrderRepository
	progress    domain.ProgressRepository
	diagnostics *Diagnostics
	outbox      outbox.Repository
	events      *cloudevents.EventFactory
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewBatchRecalculator creates a BatchRecalculator. The outbox
// repository may be nil when eventing is disabled.
func NewBatchRecalculator(
	engine *CostEngine,
	orders domain.OrderRepository,
	progress domain.ProgressRepository,
	diagnostics *Diagnostics,
	outboxRepo outbox.Repository,
	events *cloudevents.EventFactory,
	logger *logging.Logger,
	m *metrics.Metrics,
) *BatchRecalculator {
	return &BatchRecalculator{
		engine:      engine,
		orders:      orders,
		progress:    progress,
		diagnostics: diagnostics,
		outbox:      outboxRepo,
		events:      events,
		logger:      logger.WithComponent("batch-recalculator"),
		metrics:     m,
	}
}

// Plan counts the targeted orders and registers a running progress record
func (b *BatchRecalculator) Plan(ctx context.Context, sel Selector) (*domain.RunProgress, error) {
	filter, err := b.filterFor(ctx, sel)
	if err != nil {
		return nil, err
	}

	total, err := b.orders.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	progress, err := domain.NewRunProgress(sel.TenantID, total)
	if err != nil {
		return nil, err
	}
	if err := b.progress.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("saving run progress: %w", err)
	}

	b.stageStartedEvent(ctx, progress, sel)
	b.logger.WithRun(progress.RunID).Info("Recalculation planned",
		"total", total,
		"provider", sel.Provider,
		"ruleId", sel.RuleID,
		"orphanOnly", sel.OrphanOnly,
	)
	return progress, nil
}

// ProcessBatch recomputes one page of orders with a bounded worker pool
// and advances the run progress. A cancelled run short-circuits.
func (b *BatchRecalculator) ProcessBatch(ctx context.Context, sel Selector, runID, afterID string, opts RunOptions) (*BatchResult, error) {
	opts = opts.withDefaults()

	progress, err := b.progress.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, errors.ErrNotFound("recalculation run", runID)
	}
	if progress.Status == domain.RunCancelled {
		return &BatchResult{Done: true, Cancelled: true}, nil
	}

	filter, err := b.filterFor(ctx, sel)
	if err != nil {
		return nil, err
	}

	orders, err := b.orders.FindBatch(ctx, filter, afterID, int64(opts.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("loading batch: %w", err)
	}
	if len(orders) == 0 {
		return &BatchResult{LastID: afterID, Done: true}, nil
	}

	result := b.processOrders(ctx, orders, opts.Workers)
	result.LastID = orders[len(orders)-1].OrderID
	result.Done = len(orders) < opts.BatchSize

	progress.Advance(result.Processed, result.Errors, result.Messages)
	if err := b.progress.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("saving run progress: %w", err)
	}

	return result, nil
}

// processOrders fans the batch out over a worker pool. A panic while
// recomputing one order is converted into a counted failure.
func (b *BatchRecalculator) processOrders(ctx context.Context, orders []*domain.Order, workers int) *BatchResult {
	if workers > len(orders) {
		workers = len(orders)
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)
	jobs := make(chan *domain.Order)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				err := b.recomputeOne(ctx, order)

				mu.Lock()
				if err != nil {
					result.Errors++
					if len(result.Messages) < domain.MaxRecordedErrors {
						result.Messages = append(result.Messages,
							fmt.Sprintf("order %s: %v", order.OrderID, err))
					}
				} else {
					result.Processed++
				}
				mu.Unlock()

				if b.metrics != nil {
					b.metrics.RecordRecalcOrder(err == nil)
				}
			}
		}()
	}

	for _, order := range orders {
		jobs <- order
	}
	close(jobs)
	wg.Wait()

	return &result
}

func (b *BatchRecalculator) recomputeOne(ctx context.Context, order *domain.Order) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			b.logger.Panic(ctx, r)
		}
	}()

	_, err = b.engine.RecomputeLoaded(ctx, order)
	return err
}

// Finalize moves the run to a terminal state
func (b *BatchRecalculator) Finalize(ctx context.Context, runID string, status domain.RunStatus, reason string) (*RunSummary, error) {
	progress, err := b.progress.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, errors.ErrNotFound("recalculation run", runID)
	}

	if !progress.Status.IsTerminal() {
		switch status {
		case domain.RunCompleted:
			progress.Complete()
		case domain.RunFailed:
			progress.Fail(reason)
		case domain.RunCancelled:
			if err := progress.Cancel(); err != nil {
				return nil, err
			}
		}
		if err := b.progress.Save(ctx, progress); err != nil {
			return nil, fmt.Errorf("saving run progress: %w", err)
		}
		b.stageFinishedEvent(ctx, progress)
	}

	if b.metrics != nil {
		b.metrics.RecordRecalcRun(string(progress.Status))
	}
	b.logger.WithRun(runID).Info("Recalculation finished",
		"status", string(progress.Status),
		"processed", progress.Processed,
		"errors", progress.Errors,
	)

	return &RunSummary{
		RunID:     progress.RunID,
		Status:    progress.Status,
		Total:     progress.Total,
		Processed: progress.Processed,
		Errors:    progress.Errors,
	}, nil
}

func (b *BatchRecalculator) stageStartedEvent(ctx context.Context, progress *domain.RunProgress, sel Selector) {
	if b.outbox == nil || b.events == nil {
		return
	}
	event := b.events.CreateRecalculationStartedEvent(progress.TenantID, &cloudevents.RecalculationStartedData{
		RunID:    progress.RunID,
		Total:    progress.Total,
		Provider: sel.Provider,
		RuleID:   sel.RuleID,
	})
	b.stageRunEvent(ctx, progress.RunID, event)
}

func (b *BatchRecalculator) stageFinishedEvent(ctx context.Context, progress *domain.RunProgress) {
	if b.outbox == nil || b.events == nil {
		return
	}
	event := b.events.CreateRecalculationFinishedEvent(progress.TenantID, &cloudevents.RecalculationFinishedData{
		RunID:     progress.RunID,
		Status:    string(progress.Status),
		Processed: int(progress.Processed),
		Errors:    int(progress.Errors),
	})
	b.stageRunEvent(ctx, progress.RunID, event)
}

func (b *BatchRecalculator) stageRunEvent(ctx context.Context, runID string, event *cloudevents.CloudEvent) {
	staged, err := outbox.NewEventFromCloudEvent(runID, "recalculation_run", kafka.Topics.RecalculationEvents, event)
	if err != nil {
		b.logger.WithError(err).Error("Failed to stage run event", "runId", runID)
		return
	}
	if err := b.outbox.Save(ctx, staged); err != nil {
		b.logger.WithError(err).Error("Failed to save run event", "runId", runID)
	}
}

// Run executes a full recalculation synchronously: plan, page through
// batches, finalize. Cancellation is cooperative: the context is checked
// between batches, and an externally cancelled run stops at the next
// batch boundary.
func (b *BatchRecalculator) Run(ctx context.Context, sel Selector, opts RunOptions) (*RunSummary, error) {
	progress, err := b.Plan(ctx, sel)
	if err != nil {
		return nil, err
	}
	return b.Resume(ctx, sel, progress.RunID, "", opts)
}

// Resume continues a run from a cursor position
func (b *BatchRecalculator) Resume(ctx context.Context, sel Selector, runID, afterID string, opts RunOptions) (*RunSummary, error) {
	for {
		if err := ctx.Err(); err != nil {
			return b.Finalize(ctx, runID, domain.RunCancelled, "")
		}

		result, err := b.ProcessBatch(ctx, sel, runID, afterID, opts)
		if err != nil {
			summary, finErr := b.Finalize(ctx, runID, domain.RunFailed, err.Error())
			if finErr != nil {
				return nil, finErr
			}
			return summary, err
		}
		if result.Cancelled {
			return b.Finalize(ctx, runID, domain.RunCancelled, "")
		}
		if result.Done {
			return b.Finalize(ctx, runID, domain.RunCompleted, "")
		}
		afterID = result.LastID
	}
}

// Cancel requests cancellation of a running run. In-flight batches finish;
// the run stops before the next one.
func (b *BatchRecalculator) Cancel(ctx context.Context, runID string) error {
	progress, err := b.progress.FindByRunID(ctx, runID)
	if err != nil {
		return err
	}
	if progress == nil {
		return errors.ErrNotFound("recalculation run", runID)
	}
	if err := progress.Cancel(); err != nil {
		return errors.ErrConflict("recalculation run already finished").WithCause(err)
	}
	return b.progress.Save(ctx, progress)
}

// Progress returns the current run progress
func (b *BatchRecalculator) Progress(ctx context.Context, runID string) (*domain.RunProgress, error) {
	progress, err := b.progress.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, errors.ErrNotFound("recalculation run", runID)
	}
	return progress, nil
}

// RecentRuns lists recent runs for a tenant
func (b *BatchRecalculator) RecentRuns(ctx context.Context, tenantID string, page domain.Pagination) ([]*domain.RunProgress, error) {
	return b.progress.FindRecent(ctx, tenantID, page)
}

// filterFor translates a selector into a repository filter. Orphan-only
// runs target orders whose snapshots reference rules no longer live.
func (b *BatchRecalculator) filterFor(ctx context.Context, sel Selector) (domain.OrderFilter, error) {
	filter := domain.OrderFilter{
		TenantID: sel.TenantID,
		Provider: sel.Provider,
		OrderIDs: sel.OrderIDs,
	}
	if sel.RuleID != "" {
		filter.RuleIDs = []string{sel.RuleID}
	}
	if sel.OrphanOnly {
		orphans, err := b.diagnostics.OrphanRuleIDs(ctx, sel.TenantID)
		if err != nil {
			return domain.OrderFilter{}, err
		}
		if len(orphans) == 0 {
			// nothing matches; an impossible rule id keeps the query empty
			orphans = []string{"-none-"}
		}
		filter.RuleIDs = append(filter.RuleIDs, orphans...)
	}
	return filter, nil
}
