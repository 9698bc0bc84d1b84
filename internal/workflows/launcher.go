package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/pkg/logging"
)

// Launcher starts recalculation workflows on Temporal
type Launcher struct {
	client    client.Client
	taskQueue string
	logger    *logging.Logger
}

// NewLauncher creates a Launcher
func NewLauncher(c client.Client, taskQueue string, logger *logging.Logger) *Launcher {
	return &Launcher{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.WithComponent("workflow-launcher"),
	}
}

// Launch starts the recalculation workflow for an already-planned run.
// The workflow ID embeds the run ID so duplicate starts are rejected.
func (l *Launcher) Launch(ctx context.Context, sel application.Selector, runID string, opts application.RunOptions) error {
	input := RecalculationWorkflowInput{
		RunID:      runID,
		TenantID:   sel.TenantID,
		Provider:   sel.Provider,
		RuleID:     sel.RuleID,
		OrphanOnly: sel.OrphanOnly,
		OrderIDs:   sel.OrderIDs,
		BatchSize:  opts.BatchSize,
		Workers:    opts.Workers,
	}

	run, err := l.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("recalculation-%s", runID),
		TaskQueue: l.taskQueue,
	}, RecalculationWorkflow, input)
	if err != nil {
		return fmt.Errorf("starting recalculation workflow for %s: %w", runID, err)
	}

	l.logger.WithRun(runID).Info("Recalculation workflow started",
		"workflowId", run.GetID(),
		"runId", runID,
	)
	return nil
}
