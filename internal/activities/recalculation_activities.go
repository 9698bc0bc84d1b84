package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
)

// RecalculationActivities contains activities for the recalculation workflow
type RecalculationActivities struct {
	recalculator *application.BatchRecalculator
}

// NewRecalculationActivities creates a new RecalculationActivities instance
func NewRecalculationActivities(recalculator *application.BatchRecalculator) *RecalculationActivities {
	return &RecalculationActivities{recalculator: recalculator}
}

// PlanInput selects the orders a recalculation run targets
type PlanInput struct {
	TenantID   string   `json:"tenantId"`
	Provider   string   `json:"provider,omitempty"`
	RuleID     string   `json:"ruleId,omitempty"`
	OrphanOnly bool     `json:"orphanOnly,omitempty"`
	OrderIDs   []string `json:"orderIds,omitempty"`
}

func (i PlanInput) selector() application.Selector {
	return application.Selector{
		TenantID:   i.TenantID,
		Provider:   i.Provider,
		RuleID:     i.RuleID,
		OrphanOnly: i.OrphanOnly,
		OrderIDs:   i.OrderIDs,
	}
}

// BatchInput identifies one batch of a run
type BatchInput struct {
	PlanInput
	RunID     string `json:"runId"`
	AfterID   string `json:"afterId"`
	BatchSize int    `json:"batchSize"`
	Workers   int    `json:"workers"`
}

// FinalizeInput moves a run to a terminal state
type FinalizeInput struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// PlanRecalculation counts the targeted orders and registers the run
func (a *RecalculationActivities) PlanRecalculation(ctx context.Context, input PlanInput) (*domain.RunProgress, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Planning recalculation", "tenantId", input.TenantID, "ruleId", input.RuleID)

	progress, err := a.recalculator.Plan(ctx, input.selector())
	if err != nil {
		return nil, fmt.Errorf("planning recalculation: %w", err)
	}
	return progress, nil
}

// ProcessRecalculationBatch recomputes one page of orders
func (a *RecalculationActivities) ProcessRecalculationBatch(ctx context.Context, input BatchInput) (*application.BatchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Processing recalculation batch", "runId", input.RunID, "afterId", input.AfterID)

	result, err := a.recalculator.ProcessBatch(ctx, input.selector(), input.RunID, input.AfterID,
		application.RunOptions{BatchSize: input.BatchSize, Workers: input.Workers})
	if err != nil {
		return nil, fmt.Errorf("processing batch after %q: %w", input.AfterID, err)
	}

	logger.Info("Batch processed",
		"runId", input.RunID,
		"processed", result.Processed,
		"errors", result.Errors,
		"done", result.Done,
	)
	return result, nil
}

// FinalizeRecalculation moves the run to a terminal state
func (a *RecalculationActivities) FinalizeRecalculation(ctx context.Context, input FinalizeInput) (*application.RunSummary, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Finalizing recalculation", "runId", input.RunID, "status", input.Status)

	summary, err := a.recalculator.Finalize(ctx, input.RunID, domain.RunStatus(input.Status), input.Reason)
	if err != nil {
		return nil, fmt.Errorf("finalizing run %s: %w", input.RunID, err)
	}
	return summary, nil
}
