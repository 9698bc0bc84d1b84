package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/middleware"
)

// CostHandlers contains handlers for order cost operations
type CostHandlers struct {
	engine      *application.CostEngine
	allocations domain.AllocationRepository
	logger      *logging.Logger
}

// NewCostHandlers creates a new CostHandlers
func NewCostHandlers(engine *application.CostEngine, allocations domain.AllocationRepository, logger *logging.Logger) *CostHandlers {
	return &CostHandlers{
		engine:      engine,
		allocations: allocations,
		logger:      logger,
	}
}

// RegisterRoutes registers order cost routes on the router
func (h *CostHandlers) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.POST("/preview", h.PreviewOrder)
		orders.POST("/:orderId/recompute", h.RecomputeOrder)
		orders.GET("/:orderId/snapshot", h.GetSnapshot)
		orders.GET("/:orderId/allocations", h.GetAllocations)
	}
}

// RecomputeOrder handles recomputing one order's cost snapshot
func (h *CostHandlers) RecomputeOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	orderID := c.Param("orderId")
	tenantID := middleware.GetTenantID(c)

	order, report, err := h.engine.RecomputeOrder(c.Request.Context(), orderID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}
	if order.TenantID != tenantID {
		responder.RespondNotFound("order", orderID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    application.ToOrderCostDTO(order),
		"warnings": report.Warnings,
	})
}

// GetSnapshot handles reading an order's stored cost snapshot
func (h *CostHandlers) GetSnapshot(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	orderID := c.Param("orderId")
	tenantID := middleware.GetTenantID(c)

	order, err := h.engine.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}
	if order.TenantID != tenantID {
		responder.RespondNotFound("order", orderID)
		return
	}
	if !order.HasSnapshot() {
		responder.RespondNotFound("cost snapshot", orderID)
		return
	}

	c.JSON(http.StatusOK, application.ToOrderCostDTO(order))
}

// PreviewOrder handles computing a snapshot for an ad-hoc payload
// without persisting anything
func (h *CostHandlers) PreviewOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var cmd application.PreviewOrderCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	tenantID := middleware.GetTenantID(c)
	order := application.OrderFromPreview(tenantID, &cmd)

	snapshot, report, err := h.engine.Preview(c.Request.Context(), order)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot": application.ToSnapshotDTO(snapshot),
		"report":   report,
	})
}

// GetAllocations handles listing an order's product allocations
func (h *CostHandlers) GetAllocations(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	orderID := c.Param("orderId")
	tenantID := middleware.GetTenantID(c)

	order, err := h.engine.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondInternalError(err)
		}
		return
	}
	if order.TenantID != tenantID {
		responder.RespondNotFound("order", orderID)
		return
	}

	allocations, err := h.allocations.FindByOrderID(c.Request.Context(), orderID)
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":     orderID,
		"allocations": application.ToAllocationDTOs(allocations),
	})
}
