package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/middleware"
)

// RuleHandlers contains handlers for fee rule catalog operations
type RuleHandlers struct {
	service *application.RuleCatalogService
	logger  *logging.Logger
}

// NewRuleHandlers creates a new RuleHandlers
func NewRuleHandlers(service *application.RuleCatalogService, logger *logging.Logger) *RuleHandlers {
	return &RuleHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers rule catalog routes on the router
func (h *RuleHandlers) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/rules")
	{
		rules.POST("", h.CreateRule)
		rules.GET("", h.ListRules)
		rules.POST("/preview", h.PreviewRule)
		rules.GET("/:ruleId", h.GetRule)
		rules.DELETE("/:ruleId", h.DeleteRule)
	}
}

// CreateRule handles creating a fee rule
func (h *RuleHandlers) CreateRule(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var cmd application.CreateRuleCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tenantID := middleware.GetTenantID(c)
	rule, err := h.service.CreateRule(c.Request.Context(), tenantID, &cmd)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.JSON(http.StatusCreated, application.ToRuleDTO(rule))
}

// ListRules handles listing the tenant's rules. Soft-deleted rules are
// included with ?includeDeleted=true.
func (h *RuleHandlers) ListRules(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	tenantID := middleware.GetTenantID(c)
	includeDeleted := c.Query("includeDeleted") == "true"

	rules, err := h.service.ListRules(c.Request.Context(), tenantID, includeDeleted)
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": application.ToRuleDTOs(rules)})
}

// GetRule handles reading one rule
func (h *RuleHandlers) GetRule(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	tenantID := middleware.GetTenantID(c)
	ruleID := c.Param("ruleId")

	rule, err := h.service.GetRule(c.Request.Context(), tenantID, ruleID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.JSON(http.StatusOK, application.ToRuleDTO(rule))
}

// DeleteRule handles soft-deleting a rule
func (h *RuleHandlers) DeleteRule(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	tenantID := middleware.GetTenantID(c)
	ruleID := c.Param("ruleId")

	if err := h.service.DeleteRule(c.Request.Context(), tenantID, ruleID); err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// PreviewRule handles evaluating a rule draft against an order payload
func (h *RuleHandlers) PreviewRule(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var cmd application.PreviewRuleCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tenantID := middleware.GetTenantID(c)
	preview, err := h.service.PreviewRule(c.Request.Context(), tenantID, &cmd)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.JSON(http.StatusOK, preview)
}
