package announcement

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/middleware"
	"parcelmarket/internal/modules/pricing"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	anns := rg.Group("/announcements")
	{
		anns.POST("", h.CreateAnnouncement)
		anns.GET("", h.ListAnnouncements)
		anns.GET("/:id", h.GetAnnouncement)
		anns.POST("/:id/publish", h.action((*Service).Publish))
		anns.POST("/:id/cancel", h.action((*Service).Cancel))
		anns.POST("/:id/complete", h.action((*Service).Complete))
	}
}

// CreateAnnouncement godoc
// @Summary Post a trip as a draft
// @Tags Announcements
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateAnnouncementRequest true "Trip"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /announcements [post]
func (h *Handler) CreateAnnouncement(c *gin.Context) {
	var req CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if !req.CapacityKg.IsPositive() {
		response.AppError(c, apperr.Validation("capacity_kg", "capacity must be greater than zero"))
		return
	}
	grams, err := pricing.GramsFromKg(req.CapacityKg)
	if err != nil {
		response.AppError(c, apperr.Validation("capacity_kg", pricing.WeightMessage("capacity", err)))
		return
	}

	v, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), CreateInput{
		OriginCountry:      req.OriginCountry,
		OriginCity:         req.OriginCity,
		DestinationCountry: req.DestinationCountry,
		DestinationCity:    req.DestinationCity,
		DepartureDate:      req.DepartureDate,
		CapacityGrams:      grams,
		PricePerKg:         req.PricePerKg,
		Currency:           req.Currency,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"announcement": toResponse(v)})
}

// ListAnnouncements godoc
// @Summary Search open trips, or list my own
// @Tags Announcements
// @Security BearerAuth
// @Produce json
// @Param origin query string false "Origin country (ISO 3166-1 alpha-2)"
// @Param destination query string false "Destination country"
// @Param mine query bool false "Only my announcements, any status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /announcements [get]
func (h *Handler) ListAnnouncements(c *gin.Context) {
	var q ListAnnouncementsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	list, err := h.service.List(c.Request.Context(), middleware.CurrentActor(c), q)
	if err != nil {
		response.AppError(c, err)
		return
	}
	out := make([]AnnouncementResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	response.Success(c, http.StatusOK, gin.H{"announcements": out})
}

// GetAnnouncement godoc
// @Summary Announcement with remaining capacity
// @Tags Announcements
// @Security BearerAuth
// @Produce json
// @Param id path int true "Announcement ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /announcements/{id} [get]
func (h *Handler) GetAnnouncement(c *gin.Context) {
	id, ok := announcementID(c)
	if !ok {
		return
	}
	v, err := h.service.Get(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"announcement": toResponse(v)})
}

// action wraps the owner-only status changes (publish, cancel and complete).
func (h *Handler) action(fn func(*Service, context.Context, domain.Actor, int64) (*View, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := announcementID(c)
		if !ok {
			return
		}
		v, err := fn(h.service, c.Request.Context(), middleware.CurrentActor(c), id)
		if err != nil {
			response.AppError(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"announcement": toResponse(v)})
	}
}

func announcementID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid announcement ID")
		return 0, false
	}
	return id, true
}
