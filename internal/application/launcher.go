package application

import (
	"context"

	"github.com/orderkit/cost-engine/pkg/logging"
)

// AsyncRunner drives recalculation runs on a background goroutine. It is
// the in-process fallback when Temporal is disabled; restarts lose
// in-flight runs, which stay resumable through the stored cursor.
type AsyncRunner struct {
	recalculator *BatchRecalculator
	logger       *logging.Logger
}

// NewAsyncRunner creates an AsyncRunner
func NewAsyncRunner(recalculator *BatchRecalculator, logger *logging.Logger) *AsyncRunner {
	return &AsyncRunner{
		recalculator: recalculator,
		logger:       logger.WithComponent("async-runner"),
	}
}

// Launch resumes the planned run in the background. The request context
// is deliberately not propagated: the run outlives the HTTP request.
func (r *AsyncRunner) Launch(_ context.Context, sel Selector, runID string, opts RunOptions) error {
	go func() {
		summary, err := r.recalculator.Resume(context.Background(), sel, runID, "", opts)
		if err != nil {
			r.logger.WithError(err).WithRun(runID).Error("Background recalculation failed")
			return
		}
		r.logger.WithRun(runID).Info("Background recalculation finished",
			"status", string(summary.Status),
			"processed", summary.Processed,
			"errors", summary.Errors,
		)
	}()
	return nil
}
