package handler

import (
	"errors"
	"net/http"
	"ticket-engine/internal/model"
	"ticket-engine/internal/service"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PurchaseHandler struct {
	service service.PurchaseService
}

func NewPurchaseHandler(service service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

func (h *PurchaseHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.POST("tickets/purchase", h.Purchase)
		router.POST("tickets/claim", h.ClaimFree)
		router.GET("tickets/:ticket_code", h.GetTicket)
		router.PUT("tickets/:ticket_code/cancel", h.Cancel)
	}
}

func (h *PurchaseHandler) Purchase(c *gin.Context) {
	var req model.PurchaseRequest

	if err := BindJson(c, &req); err != nil {
		return
	}

	resp, err := h.service.Purchase(c, req)
	if err != nil {
		h.handlePurchaseError(c, err, "Purchase")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PurchaseHandler) ClaimFree(c *gin.Context) {
	var req model.PurchaseRequest

	if err := BindJson(c, &req); err != nil {
		return
	}

	ticket, err := h.service.ClaimFree(c, req)
	if err != nil {
		h.handlePurchaseError(c, err, "ClaimFree")
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

func (h *PurchaseHandler) GetTicket(c *gin.Context) {
	ticket, err := h.service.GetTicket(c, c.Param("ticket_code"))
	if err != nil {
		h.handlePurchaseError(c, err, "GetTicket")
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (h *PurchaseHandler) Cancel(c *gin.Context) {
	ticket, err := h.service.Cancel(c, c.Param("ticket_code"))
	if err != nil {
		h.handlePurchaseError(c, err, "Cancel")
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// Helper functions

func (h *PurchaseHandler) handlePurchaseError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrCapacityExhausted):
		log.Warn("Capacity exhausted")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Sold out",
		})
	case errors.Is(err, apperrors.ErrSeatConflict):
		log.Warn("Seat conflict")
		c.JSON(http.StatusConflict, gin.H{
			"error": "One or more seats are no longer available",
		})
	case errors.Is(err, apperrors.ErrSeatCountMismatch):
		log.Warn("Seat count mismatch")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Seat selection must match quantity",
		})
	case errors.Is(err, apperrors.ErrExceedsMaxPerUser):
		log.Warn("Exceeds max per user")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Exceeds max tickets per user",
		})
	case errors.Is(err, apperrors.ErrPromoInactive),
		errors.Is(err, apperrors.ErrPromoExpired),
		errors.Is(err, apperrors.ErrPromoLimitReached),
		errors.Is(err, apperrors.ErrPromoNotFound):
		log.Warn("Promo code rejected")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Promo code is not usable",
		})
	case errors.Is(err, apperrors.ErrAlreadyClaimed):
		log.Warn("Already claimed")
		c.JSON(http.StatusConflict, gin.H{
			"error": "You already have a ticket for this event",
		})
	case errors.Is(err, apperrors.ErrInvalidTicketState):
		log.Warn("Invalid ticket state")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Ticket cannot change to that state",
		})
	case errors.Is(err, apperrors.ErrPaymentFailed):
		log.Warn("Payment init failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Payment provider unavailable",
		})
	case errors.Is(err, apperrors.ErrTicketNotFound):
		log.Warn("Ticket not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Ticket not found",
		})
	case errors.Is(err, apperrors.ErrTicketTypeNotFound):
		log.Warn("Ticket type not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Ticket type not found",
		})
	case errors.Is(err, apperrors.ErrEventNotFound):
		log.Warn("Event not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Event not found or not on sale",
		})
	case errors.Is(err, apperrors.ErrInvalidInput):
		log.Warn("Invalid input")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request",
		})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
