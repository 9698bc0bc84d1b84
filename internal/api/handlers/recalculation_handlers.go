package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/middleware"
)

// RunLauncher resumes a planned recalculation run asynchronously. The
// Temporal-backed launcher starts a workflow; the in-process launcher
// drives the batches on a background goroutine.
type RunLauncher interface {
	Launch(ctx context.Context, sel application.Selector, runID string, opts application.RunOptions) error
}

// RecalculationHandlers contains handlers for batch recalculation runs
type RecalculationHandlers struct {
	recalculator *application.BatchRecalculator
	launcher     RunLauncher
	logger       *logging.Logger
}

// NewRecalculationHandlers creates a new RecalculationHandlers
func NewRecalculationHandlers(recalculator *application.BatchRecalculator, launcher RunLauncher, logger *logging.Logger) *RecalculationHandlers {
	return &RecalculationHandlers{
		recalculator: recalculator,
		launcher:     launcher,
		logger:       logger,
	}
}

// RegisterRoutes registers recalculation routes on the router
func (h *RecalculationHandlers) RegisterRoutes(router *gin.RouterGroup) {
	runs := router.Group("/recalculations")
	{
		runs.POST("", h.StartRecalculation)
		runs.GET("", h.ListRecalculations)
		runs.GET("/:runId", h.GetRecalculation)
		runs.DELETE("/:runId", h.CancelRecalculation)
	}
}

// StartRecalculation plans a run and hands it to the launcher
func (h *RecalculationHandlers) StartRecalculation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var cmd application.StartRecalculationCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	sel := application.Selector{
		TenantID:   middleware.GetTenantID(c),
		Provider:   cmd.Provider,
		RuleID:     cmd.RuleID,
		OrphanOnly: cmd.OrphanOnly,
		OrderIDs:   cmd.OrderIDs,
	}
	opts := application.RunOptions{
		BatchSize: cmd.BatchSize,
		Workers:   cmd.Workers,
	}

	progress, err := h.recalculator.Plan(c.Request.Context(), sel)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	if err := h.launcher.Launch(c.Request.Context(), sel, progress.RunID, opts); err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusAccepted, application.ToProgressDTO(progress))
}

// GetRecalculation returns the progress of one run
func (h *RecalculationHandlers) GetRecalculation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	runID := c.Param("runId")
	progress, err := h.recalculator.Progress(c.Request.Context(), runID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}
	if progress.TenantID != middleware.GetTenantID(c) {
		responder.RespondNotFound("recalculation run", runID)
		return
	}

	c.JSON(http.StatusOK, application.ToProgressDTO(progress))
}

// ListRecalculations lists recent runs for the tenant
func (h *RecalculationHandlers) ListRecalculations(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	runs, err := h.recalculator.RecentRuns(c.Request.Context(), middleware.GetTenantID(c),
		domain.Pagination{Page: page, PageSize: pageSize})
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	out := make([]*application.ProgressDTO, len(runs))
	for i, run := range runs {
		out[i] = application.ToProgressDTO(run)
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// CancelRecalculation requests cooperative cancellation of a run. The
// batch in flight finishes; the run stops before the next one.
func (h *RecalculationHandlers) CancelRecalculation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	runID := c.Param("runId")
	progress, err := h.recalculator.Progress(c.Request.Context(), runID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}
	if progress.TenantID != middleware.GetTenantID(c) {
		responder.RespondNotFound("recalculation run", runID)
		return
	}

	if err := h.recalculator.Cancel(c.Request.Context(), runID); err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.Status(http.StatusAccepted)
}
