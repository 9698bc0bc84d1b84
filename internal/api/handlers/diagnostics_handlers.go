package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/middleware"
)

// DiagnosticsHandlers contains handlers for consistency scans
type DiagnosticsHandlers struct {
	diagnostics *application.Diagnostics
	logger      *logging.Logger
}

// NewDiagnosticsHandlers creates a new DiagnosticsHandlers
func NewDiagnosticsHandlers(diagnostics *application.Diagnostics, logger *logging.Logger) *DiagnosticsHandlers {
	return &DiagnosticsHandlers{
		diagnostics: diagnostics,
		logger:      logger,
	}
}

// RegisterRoutes registers diagnostics routes on the router
func (h *DiagnosticsHandlers) RegisterRoutes(router *gin.RouterGroup) {
	diag := router.Group("/diagnostics")
	{
		diag.GET("/orphan-rules", h.OrphanRules)
		diag.GET("/cost-mismatches", h.CostMismatches)
	}
}

// OrphanRules reports snapshot references to rules no longer live
func (h *DiagnosticsHandlers) OrphanRules(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	report, err := h.diagnostics.OrphanRuleReport(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// CostMismatches reports orders whose stored totals diverge from a fresh
// computation against the current catalog
func (h *DiagnosticsHandlers) CostMismatches(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	report, err := h.diagnostics.CostMismatchReport(c.Request.Context(), middleware.GetTenantID(c), limit)
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusOK, report)
}
