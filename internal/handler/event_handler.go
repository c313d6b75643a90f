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
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventHandler struct {
	service service.EventService
}

func NewEventHandler(service service.EventService) *EventHandler {
	return &EventHandler{service: service}
}

func (h *EventHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.POST("events", h.CreateEvent)
		router.GET("events/:event_id", h.GetEvent)
		router.PUT("events/:event_id/activate", h.Activate)
		router.POST("events/:event_id/ticket-types", h.AddTicketType)
		router.GET("events/:event_id/ticket-types", h.ListTicketTypes)
		router.GET("events/:event_id/ticket-types/:id/seats", h.SeatMap)
		router.POST("events/:event_id/access-codes", h.CreateAccessCode)
	}
}

// organizerID 從 header 取。認證是外層 gateway 的事，這裡只收結果。
func organizerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader("X-Organizer-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing or invalid organizer id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}

	var req model.CreateEventRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	event, err := h.service.Create(c, orgID, req)
	if err != nil {
		h.handleEventError(c, err, "CreateEvent")
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	event, err := h.service.Get(c, eventID)
	if err != nil {
		h.handleEventError(c, err, "GetEvent")
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) Activate(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	event, err := h.service.Activate(c, eventID)
	if err != nil {
		h.handleEventError(c, err, "Activate")
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) AddTicketType(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	var req model.CreateTicketTypeRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	ticketType, err := h.service.AddTicketType(c, eventID, req)
	if err != nil {
		h.handleEventError(c, err, "AddTicketType")
		return
	}

	c.JSON(http.StatusCreated, ticketType)
}

func (h *EventHandler) ListTicketTypes(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	ticketTypes, err := h.service.ListTicketTypes(c, eventID)
	if err != nil {
		h.handleEventError(c, err, "ListTicketTypes")
		return
	}

	c.JSON(http.StatusOK, ticketTypes)
}

func (h *EventHandler) SeatMap(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	ticketTypeID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ticket type id",
		})
		return
	}

	seats, err := h.service.SeatMap(c, eventID, ticketTypeID)
	if err != nil {
		h.handleEventError(c, err, "SeatMap")
		return
	}

	c.JSON(http.StatusOK, seats)
}

func (h *EventHandler) CreateAccessCode(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	var req struct {
		GateLabel string `json:"gate_label" binding:"required"`
	}
	if err := BindJson(c, &req); err != nil {
		return
	}

	code, err := h.service.CreateAccessCode(c, eventID, req.GateLabel)
	if err != nil {
		h.handleEventError(c, err, "CreateAccessCode")
		return
	}

	c.JSON(http.StatusCreated, code)
}

// Helper functions

func (h *EventHandler) handleEventError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrEventNotFound):
		log.Warn("Event not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Event not found",
		})
	case errors.Is(err, apperrors.ErrTicketTypeNotFound):
		log.Warn("Ticket type not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Ticket type not found",
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
