package handler

import (
	"errors"
	"net/http"
	"strconv"
	"ticket-engine/internal/model"
	"ticket-engine/internal/service"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PromoHandler struct {
	service      service.PromoService
	eventService service.EventService
}

func NewPromoHandler(service service.PromoService, eventService service.EventService) *PromoHandler {
	return &PromoHandler{service: service, eventService: eventService}
}

func (h *PromoHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1/events/:event_id/promo-codes")
	{
		router.POST("", h.Create)
		router.GET("", h.List)
		router.GET("validate/:code", h.Validate)
		router.PUT(":id/toggle", h.ToggleActive)
		router.DELETE(":id", h.Delete)
	}
}

// resolveEvent 路由上的 uuid 換成資料庫主鍵
func (h *PromoHandler) resolveEvent(c *gin.Context) (int, bool) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return 0, false
	}
	event, err := h.eventService.Get(c, eventID)
	if err != nil {
		h.handlePromoError(c, err, "ResolveEvent")
		return 0, false
	}
	return event.ID, true
}

func (h *PromoHandler) Create(c *gin.Context) {
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}

	var req model.CreatePromoRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	promo, err := h.service.Create(c, eventID, req)
	if err != nil {
		h.handlePromoError(c, err, "CreatePromo")
		return
	}

	c.JSON(http.StatusCreated, promo)
}

func (h *PromoHandler) List(c *gin.Context) {
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}

	promos, err := h.service.ListByEvent(c, eventID)
	if err != nil {
		h.handlePromoError(c, err, "ListPromos")
		return
	}

	c.JSON(http.StatusOK, promos)
}

func (h *PromoHandler) Validate(c *gin.Context) {
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}

	resp, err := h.service.Validate(c, eventID, c.Param("code"))
	if err != nil {
		h.handlePromoError(c, err, "ValidatePromo")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PromoHandler) ToggleActive(c *gin.Context) {
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid promo id"})
		return
	}

	promo, err := h.service.ToggleActive(c, id, eventID)
	if err != nil {
		h.handlePromoError(c, err, "TogglePromo")
		return
	}

	c.JSON(http.StatusOK, promo)
}

func (h *PromoHandler) Delete(c *gin.Context) {
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid promo id"})
		return
	}

	if err := h.service.Delete(c, id, eventID); err != nil {
		h.handlePromoError(c, err, "DeletePromo")
		return
	}

	c.Status(http.StatusNoContent)
}

// Helper functions

func (h *PromoHandler) handlePromoError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrDuplicateCode):
		log.Warn("Duplicate promo code")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Promo code already exists for this event",
		})
	case errors.Is(err, apperrors.ErrPromoNotFound):
		log.Warn("Promo not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Promo code not found",
		})
	case errors.Is(err, apperrors.ErrEventNotFound):
		log.Warn("Event not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Event not found",
		})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
