package workflows

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/orderkit/cost-engine/internal/activities"
	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
)

func newWorkflowEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(RecalculationWorkflow)
	return env
}

func TestRecalculationWorkflowPagesUntilDone(t *testing.T) {
	env := newWorkflowEnv(t)

	var batchCalls []string
	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.BatchInput) (*application.BatchResult, error) {
		batchCalls = append(batchCalls, input.AfterID)
		switch input.AfterID {
		case "":
			return &application.BatchResult{LastID: "ORD-0499", Processed: 500}, nil
		case "ORD-0499":
			return &application.BatchResult{LastID: "ORD-0996", Processed: 497, Errors: 3, Done: true}, nil
		default:
			return nil, fmt.Errorf("unexpected cursor %q", input.AfterID)
		}
	}, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.FinalizeInput) (*application.RunSummary, error) {
		assert.Equal(t, string(domain.RunCompleted), input.Status)
		return &application.RunSummary{
			RunID:     input.RunID,
			Status:    domain.RunCompleted,
			Total:     997,
			Processed: 997,
			Errors:    3,
		}, nil
	}, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	env.ExecuteWorkflow(RecalculationWorkflow, RecalculationWorkflowInput{
		RunID:    "RUN-1",
		TenantID: "tenant-1",
	})
	require.NoError(t, env.GetWorkflowError())

	var result RecalculationWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "RUN-1", result.RunID)
	assert.Equal(t, string(domain.RunCompleted), result.Status)
	assert.Equal(t, int64(997), result.Processed)
	assert.Equal(t, int64(3), result.Errors)
	assert.Equal(t, []string{"", "ORD-0499"}, batchCalls)
}

func TestRecalculationWorkflowPlansWhenRunIDMissing(t *testing.T) {
	env := newWorkflowEnv(t)

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.PlanInput) (*domain.RunProgress, error) {
		assert.Equal(t, "tenant-1", input.TenantID)
		return &domain.RunProgress{RunID: "RUN-planned", TenantID: input.TenantID, Status: domain.RunRunning}, nil
	}, activity.RegisterOptions{Name: "PlanRecalculation"})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.BatchInput) (*application.BatchResult, error) {
		assert.Equal(t, "RUN-planned", input.RunID)
		return &application.BatchResult{Done: true}, nil
	}, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.FinalizeInput) (*application.RunSummary, error) {
		return &application.RunSummary{RunID: input.RunID, Status: domain.RunCompleted}, nil
	}, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	env.ExecuteWorkflow(RecalculationWorkflow, RecalculationWorkflowInput{TenantID: "tenant-1"})
	require.NoError(t, env.GetWorkflowError())

	var result RecalculationWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "RUN-planned", result.RunID)
}

func TestRecalculationWorkflowStopsOnCancelledRun(t *testing.T) {
	env := newWorkflowEnv(t)

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.BatchInput) (*application.BatchResult, error) {
		return &application.BatchResult{Done: true, Cancelled: true}, nil
	}, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.FinalizeInput) (*application.RunSummary, error) {
		assert.Equal(t, string(domain.RunCancelled), input.Status)
		return &application.RunSummary{RunID: input.RunID, Status: domain.RunCancelled}, nil
	}, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	env.ExecuteWorkflow(RecalculationWorkflow, RecalculationWorkflowInput{
		RunID:    "RUN-2",
		TenantID: "tenant-1",
	})
	require.NoError(t, env.GetWorkflowError())

	var result RecalculationWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, string(domain.RunCancelled), result.Status)
}

func TestRecalculationWorkflowFinalizesAfterWorkflowCancel(t *testing.T) {
	env := newWorkflowEnv(t)
	env.RegisterDelayedCallback(env.CancelWorkflow, 0)

	var batchCalls int
	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.BatchInput) (*application.BatchResult, error) {
		batchCalls++
		return &application.BatchResult{Done: true}, nil
	}, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})

	// Finalization runs on a disconnected context, so the terminal
	// status is written even though the workflow itself was cancelled.
	var finalized string
	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.FinalizeInput) (*application.RunSummary, error) {
		finalized = input.Status
		return &application.RunSummary{RunID: input.RunID, Status: domain.RunCancelled}, nil
	}, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	env.ExecuteWorkflow(RecalculationWorkflow, RecalculationWorkflowInput{
		RunID:    "RUN-4",
		TenantID: "tenant-1",
	})

	assert.Equal(t, string(domain.RunCancelled), finalized)
	assert.Zero(t, batchCalls)
}

func TestRecalculationWorkflowFailsRunOnBatchError(t *testing.T) {
	env := newWorkflowEnv(t)

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.BatchInput) (*application.BatchResult, error) {
		return nil, assert.AnError
	}, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.FinalizeInput) (*application.RunSummary, error) {
		assert.Equal(t, string(domain.RunFailed), input.Status)
		assert.NotEmpty(t, input.Reason)
		return &application.RunSummary{RunID: input.RunID, Status: domain.RunFailed}, nil
	}, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	env.ExecuteWorkflow(RecalculationWorkflow, RecalculationWorkflowInput{
		RunID:    "RUN-3",
		TenantID: "tenant-1",
	})
	require.NoError(t, env.GetWorkflowError())

	var result RecalculationWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, string(domain.RunFailed), result.Status)
}
