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

type InfluencerHandler struct {
	service service.InfluencerService
}

func NewInfluencerHandler(service service.InfluencerService) *InfluencerHandler {
	return &InfluencerHandler{service: service}
}

func (h *InfluencerHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1/influencers")
	{
		router.POST("", h.Create)
		router.GET("", h.List)
		router.GET(":id", h.Get)
		router.PUT(":id", h.Update)
		router.DELETE(":id", h.Delete)
		router.GET(":id/referral-link", h.ReferralLink)
		router.GET(":id/attributions", h.Attributions)
	}
}

func (h *InfluencerHandler) parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid influencer id"})
		return 0, false
	}
	return id, true
}

func (h *InfluencerHandler) Create(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}

	var req model.CreateInfluencerRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	influencer, err := h.service.Create(c, orgID, req)
	if err != nil {
		h.handleInfluencerError(c, err, "CreateInfluencer")
		return
	}

	c.JSON(http.StatusCreated, influencer)
}

func (h *InfluencerHandler) List(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}

	influencers, err := h.service.List(c, orgID)
	if err != nil {
		h.handleInfluencerError(c, err, "ListInfluencers")
		return
	}

	c.JSON(http.StatusOK, influencers)
}

func (h *InfluencerHandler) Get(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	influencer, err := h.service.Get(c, id, orgID)
	if err != nil {
		h.handleInfluencerError(c, err, "GetInfluencer")
		return
	}

	c.JSON(http.StatusOK, influencer)
}

func (h *InfluencerHandler) Update(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req model.UpdateInfluencerRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	influencer, err := h.service.Update(c, id, orgID, req)
	if err != nil {
		h.handleInfluencerError(c, err, "UpdateInfluencer")
		return
	}

	c.JSON(http.StatusOK, influencer)
}

func (h *InfluencerHandler) Delete(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c, id, orgID); err != nil {
		h.handleInfluencerError(c, err, "DeleteInfluencer")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *InfluencerHandler) ReferralLink(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	eventID, err := uuid.Parse(c.Query("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id"})
		return
	}

	link, err := h.service.ReferralLink(c, id, orgID, eventID)
	if err != nil {
		h.handleInfluencerError(c, err, "ReferralLink")
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *InfluencerHandler) Attributions(c *gin.Context) {
	orgID, ok := organizerID(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	attributions, err := h.service.Attributions(c, id, orgID)
	if err != nil {
		h.handleInfluencerError(c, err, "ListAttributions")
		return
	}

	c.JSON(http.StatusOK, attributions)
}

// Helper functions

func (h *InfluencerHandler) handleInfluencerError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrInfluencerNotFound):
		log.Warn("Influencer not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Influencer not found",
		})
	case errors.Is(err, apperrors.ErrDuplicateCode):
		log.Warn("Duplicate referral code")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Referral code already exists",
		})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
