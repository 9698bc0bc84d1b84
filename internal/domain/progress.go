package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunStatus is the lifecycle state of a recalculation run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is final
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// MaxRecordedErrors caps how many error messages a run retains
const MaxRecordedErrors = 10

// RunProgress tracks a batch recalculation run. Individual order failures
// are counted, not fatal; the run keeps going.
type RunProgress struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RunID    string             `bson:"runId" json:"runId"`
	TenantID string             `bson:"tenantId" json:"tenantId"`
	Status   RunStatus          `bson:"status" json:"status"`

	Total      int64   `bson:"total" json:"total"`
	Processed  int64   `bson:"processed" json:"processed"`
	Errors     int64   `bson:"errors" json:"errors"`
	Percentage float64 `bson:"percentage" json:"percentage"`

	FirstErrors []string `bson:"firstErrors,omitempty" json:"firstErrors,omitempty"`

	StartedAt  time.Time  `bson:"startedAt" json:"startedAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
	FinishedAt *time.Time `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
}

// NewRunProgress creates a run in the running state
func NewRunProgress(tenantID string, total int64) (*RunProgress, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	now := time.Now().UTC()
	return &RunProgress{
		RunID:     fmt.Sprintf("RUN-%s", uuid.New().String()[:8]),
		TenantID:  tenantID,
		Status:    RunRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// Advance records a processed batch
func (p *RunProgress) Advance(processed, errors int64, errorMessages []string) {
	p.Processed += processed
	p.Errors += errors
	for _, msg := range errorMessages {
		if len(p.FirstErrors) >= MaxRecordedErrors {
			break
		}
		p.FirstErrors = append(p.FirstErrors, msg)
	}
	// Failed orders still advance the run, so the percentage is based
	// on attempted orders rather than successes.
	if p.Total > 0 {
		p.Percentage = RoundDisplay(float64(p.Processed+p.Errors) / float64(p.Total) * 100)
	}
	p.UpdatedAt = time.Now().UTC()
}

func (p *RunProgress) finish(status RunStatus) {
	now := time.Now().UTC()
	p.Status = status
	p.UpdatedAt = now
	p.FinishedAt = &now
}

// Complete marks the run finished
func (p *RunProgress) Complete() {
	p.finish(RunCompleted)
}

// Fail marks the run failed with a reason
func (p *RunProgress) Fail(reason string) {
	if reason != "" && len(p.FirstErrors) < MaxRecordedErrors {
		p.FirstErrors = append(p.FirstErrors, reason)
	}
	p.finish(RunFailed)
}

// Cancel marks the run cancelled. Only running runs can be cancelled.
func (p *RunProgress) Cancel() error {
	if p.Status.IsTerminal() {
		return ErrRunNotCancellable
	}
	p.finish(RunCancelled)
	return nil
}
