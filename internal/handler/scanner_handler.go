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

type ScannerHandler struct {
	service service.ScannerService
}

func NewScannerHandler(service service.ScannerService) *ScannerHandler {
	return &ScannerHandler{service: service}
}

func (h *ScannerHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1/scanner")
	{
		router.POST("verify-access", h.VerifyAccess)
		router.POST("events/:event_id/validate", h.ValidateScan)
		router.POST("events/:event_id/validate-manual", h.ValidateManual)
		router.POST("events/:event_id/mark-used", h.MarkUsed)
		router.GET("events/:event_id/stats", h.Stats)
	}
}

func (h *ScannerHandler) VerifyAccess(c *gin.Context) {
	var req model.VerifyAccessRequest

	if err := BindJson(c, &req); err != nil {
		return
	}

	resp, err := h.service.VerifyAccess(c, req)
	if err != nil {
		h.handleScannerError(c, err, "VerifyAccess")
		return
	}
	if !resp.Verified {
		c.JSON(http.StatusUnauthorized, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ScannerHandler) ValidateScan(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	var req model.ValidateScanRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	result, err := h.service.ValidateScan(c, eventID, req)
	if err != nil {
		h.handleScannerError(c, err, "ValidateScan")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ScannerHandler) ValidateManual(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	var req model.ManualValidateRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	result, err := h.service.ValidateManual(c, eventID, req)
	if err != nil {
		h.handleScannerError(c, err, "ValidateManual")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ScannerHandler) MarkUsed(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	var req model.MarkUsedRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	result, err := h.service.MarkUsed(c, eventID, req)
	if err != nil {
		h.handleScannerError(c, err, "MarkUsed")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ScannerHandler) Stats(c *gin.Context) {
	eventID, ok := ParseEventID(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c, eventID)
	if err != nil {
		h.handleScannerError(c, err, "Stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Helper functions

func (h *ScannerHandler) handleScannerError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrAccessDenied):
		log.Warn("Scanner access denied")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Access denied",
		})
	case errors.Is(err, apperrors.ErrEventNotFound):
		log.Warn("Event not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Event not found",
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
