package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/orderkit/cost-engine/internal/activities"
	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
)

// RecalculationWorkflowInput represents the input for the recalculation
// workflow. RunID references a run planned beforehand; when empty the
// workflow plans one itself.
type RecalculationWorkflowInput struct {
	RunID      string   `json:"runId,omitempty"`
	TenantID   string   `json:"tenantId"`
	Provider   string   `json:"provider,omitempty"`
	RuleID     string   `json:"ruleId,omitempty"`
	OrphanOnly bool     `json:"orphanOnly,omitempty"`
	OrderIDs   []string `json:"orderIds,omitempty"`
	BatchSize  int      `json:"batchSize,omitempty"`
	Workers    int      `json:"workers,omitempty"`
}

// RecalculationWorkflowResult represents the terminal outcome of the run
type RecalculationWorkflowResult struct {
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
	Errors    int64  `json:"errors"`
}

// RecalculationWorkflow pages through the targeted orders batch by batch.
// Each batch is one activity; order failures inside a batch are counted,
// not retried. Cancellation is cooperative: a cancelled run or workflow
// stops at the next batch boundary.
func RecalculationWorkflow(ctx workflow.Context, input RecalculationWorkflowInput) (*RecalculationWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting recalculation workflow",
		"runId", input.RunID,
		"tenantId", input.TenantID,
		"orphanOnly", input.OrphanOnly,
	)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	plan := activities.PlanInput{
		TenantID:   input.TenantID,
		Provider:   input.Provider,
		RuleID:     input.RuleID,
		OrphanOnly: input.OrphanOnly,
		OrderIDs:   input.OrderIDs,
	}

	runID := input.RunID
	if runID == "" {
		var progress domain.RunProgress
		if err := workflow.ExecuteActivity(ctx, "PlanRecalculation", plan).Get(ctx, &progress); err != nil {
			return nil, err
		}
		runID = progress.RunID
	}

	status := domain.RunCompleted
	reason := ""
	afterID := ""

	for {
		if ctx.Err() != nil {
			status = domain.RunCancelled
			break
		}

		var result application.BatchResult
		err := workflow.ExecuteActivity(ctx, "ProcessRecalculationBatch", activities.BatchInput{
			PlanInput: plan,
			RunID:     runID,
			AfterID:   afterID,
			BatchSize: input.BatchSize,
			Workers:   input.Workers,
		}).Get(ctx, &result)
		if err != nil {
			status = domain.RunFailed
			reason = err.Error()
			break
		}

		if result.Cancelled {
			status = domain.RunCancelled
			break
		}
		if result.Done {
			break
		}
		afterID = result.LastID
	}

	// Finalization must run even when the workflow itself was cancelled,
	// otherwise the run progress stays non-terminal forever.
	finalizeCtx := ctx
	if ctx.Err() != nil {
		dcCtx, _ := workflow.NewDisconnectedContext(ctx)
		finalizeCtx = workflow.WithActivityOptions(dcCtx, ao)
	}

	var summary application.RunSummary
	if err := workflow.ExecuteActivity(finalizeCtx, "FinalizeRecalculation", activities.FinalizeInput{
		RunID:  runID,
		Status: string(status),
		Reason: reason,
	}).Get(finalizeCtx, &summary); err != nil {
		return nil, err
	}

	logger.Info("Recalculation workflow finished",
		"runId", summary.RunID,
		"status", string(summary.Status),
		"processed", summary.Processed,
		"errors", summary.Errors,
	)

	return &RecalculationWorkflowResult{
		RunID:     summary.RunID,
		Status:    string(summary.Status),
		Total:     summary.Total,
		Processed: summary.Processed,
		Errors:    summary.Errors,
	}, nil
}
