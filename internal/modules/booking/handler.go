package booking

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

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
	bookings := rg.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/pay", h.PayBooking)
		bookings.POST("/:id/in-transit", h.MarkInTransit)
		bookings.POST("/:id/delivered", h.MarkDelivered)
		bookings.POST("/:id/confirm-delivery", h.ConfirmDelivery)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/dispute", h.DisputeBooking)
		bookings.DELETE("/:id", h.DeleteBooking)
	}
}

// CreateBooking godoc
// @Summary Request capacity on an announcement
// @Tags Bookings
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateBookingRequest true "Booking request"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /bookings [post]
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if !req.WeightKg.IsPositive() {
		response.AppError(c, apperr.Validation("weight_kg", "weight must be greater than zero"))
		return
	}
	grams, err := pricing.GramsFromKg(req.WeightKg)
	if err != nil {
		response.AppError(c, apperr.Validation("weight_kg", pricing.WeightMessage("weight", err)))
		return
	}

	b, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), CreateInput{
		AnnouncementID: req.AnnouncementID,
		WeightGrams:    grams,
		DeclaredValue:  req.DeclaredValue,
		InsuranceOpted: req.Insurance,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"booking": toResponse(b)})
}

// ListBookings godoc
// @Summary List my bookings as sender or traveler
// @Tags Bookings
// @Security BearerAuth
// @Produce json
// @Param role query string false "sender (default) or traveler"
// @Param status query string false "Booking status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /bookings [get]
func (h *Handler) ListBookings(c *gin.Context) {
	var q ListBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	list, err := h.service.List(c.Request.Context(), middleware.CurrentActor(c), q)
	if err != nil {
		response.AppError(c, err)
		return
	}
	out := make([]BookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": out})
}

// GetBooking godoc
// @Summary Booking detail with status history
// @Tags Bookings
// @Security BearerAuth
// @Produce json
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /bookings/{id} [get]
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	d, err := h.service.Get(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"booking": toResponse(d.Booking),
		"events":  toEventResponses(d.Events),
	})
}

// PayBooking godoc
// @Summary Request the escrow hold for a pending booking
// @Tags Bookings
// @Security BearerAuth
// @Produce json
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /bookings/{id}/pay [post]
func (h *Handler) PayBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	res, err := h.service.Pay(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	data := gin.H{
		"booking":     toResponse(res.Booking),
		"alreadyPaid": res.AlreadyPaid,
	}
	if res.ClientSecret != "" {
		data["client_secret"] = res.ClientSecret
	}
	response.Success(c, http.StatusOK, data)
}

// MarkInTransit godoc
// @Summary Traveler picked up the parcel
// @Tags Bookings
// @Security BearerAuth
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{id}/in-transit [post]
func (h *Handler) MarkInTransit(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.service.MarkInTransit(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": toResponse(b)})
}

// MarkDelivered godoc
// @Summary Traveler handed the parcel over
// @Tags Bookings
// @Security BearerAuth
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{id}/delivered [post]
func (h *Handler) MarkDelivered(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.service.MarkDelivered(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": toResponse(b)})
}

// ConfirmDelivery godoc
// @Summary Sender confirms delivery, releasing funds to the traveler
// @Tags Bookings
// @Security BearerAuth
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /bookings/{id}/confirm-delivery [post]
func (h *Handler) ConfirmDelivery(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	res, err := h.service.ConfirmDelivery(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"booking":          toResponse(res.Booking),
		"alreadyCompleted": res.AlreadyCompleted,
	})
}

// CancelBooking godoc
// @Summary Cancel a pending or confirmed booking
// @Tags Bookings
// @Security BearerAuth
// @Accept json
// @Param id path int true "Booking ID"
// @Param request body CancelBookingRequest false "Reason"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{id}/cancel [post]
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	b, err := h.service.Cancel(c.Request.Context(), middleware.CurrentActor(c), id, req.Reason)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": toResponse(b)})
}

// DisputeBooking godoc
// @Summary Open a dispute on a booking in transit or delivered
// @Tags Bookings
// @Security BearerAuth
// @Accept json
// @Param id path int true "Booking ID"
// @Param request body DisputeBookingRequest true "Reason"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{id}/dispute [post]
func (h *Handler) DisputeBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req DisputeBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AppError(c, apperr.Validation("reason", "a dispute reason is required"))
		return
	}
	b, err := h.service.Dispute(c.Request.Context(), middleware.CurrentActor(c), id, req.Reason)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": toResponse(b)})
}

// DeleteBooking godoc
// @Summary Delete a cancelled booking
// @Tags Bookings
// @Security BearerAuth
// @Param id path int true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{id} [delete]
func (h *Handler) DeleteBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return 0, false
	}
	return id, true
}
