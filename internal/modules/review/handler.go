package review

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/middleware"
	"parcelmarket/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings/:id/review", h.Create)
	rg.GET("/profiles/:id/reviews", h.ListForTraveler)
	rg.POST("/reviews/:id/response", h.Respond)
}

// Create godoc
// @Summary Rate the traveler of a delivered booking
// @Tags Reviews
// @Security BearerAuth
// @Param id path int true "Booking ID"
// @Param request body CreateReviewRequest true "Rating 1-5 and optional comment"
// @Success 201 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{} "Booking already reviewed or not delivered yet"
// @Router /bookings/{id}/review [post]
func (h *Handler) Create(c *gin.Context) {
	id, ok := pathID(c, "Invalid booking ID")
	if !ok {
		return
	}
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	rv, err := h.svc.Create(c.Request.Context(), middleware.CurrentActor(c), id, req.Rating, req.Comment)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"review": rv})
}

// ListForTraveler godoc
// @Summary A traveler's rating and reviews
// @Tags Reviews
// @Security BearerAuth
// @Param id path int true "Traveler profile ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /profiles/{id}/reviews [get]
func (h *Handler) ListForTraveler(c *gin.Context) {
	id, ok := pathID(c, "Invalid profile ID")
	if !ok {
		return
	}
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	out, err := h.svc.ListForTraveler(c.Request.Context(), id, q.Limit, q.Offset)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Respond godoc
// @Summary Reply to a review about me
// @Tags Reviews
// @Security BearerAuth
// @Param id path int true "Review ID"
// @Param request body RespondRequest true "Reply"
// @Success 200 {object} map[string]interface{}
// @Router /reviews/{id}/response [post]
func (h *Handler) Respond(c *gin.Context) {
	id, ok := pathID(c, "Invalid review ID")
	if !ok {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	rv, err := h.svc.Respond(c.Request.Context(), middleware.CurrentActor(c), id, req.Response)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"review": rv})
}

func pathID(c *gin.Context, msg string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", msg)
		return 0, false
	}
	return id, true
}
