package payout

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/middleware"
	"parcelmarket/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profiles/me", h.GetMe)
	rg.POST("/kyc/session", h.StartKYC)
	rg.POST("/payouts/account", h.CreateAccount)
	rg.GET("/payouts/account/status", h.AccountStatus)
}

// GetMe godoc
// @Summary My profile and eligibility
// @Tags Profiles
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /profiles/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	view, err := h.service.Me(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// StartKYC godoc
// @Summary Start identity verification
// @Tags Profiles
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body KYCSessionRequest false "Return URL"
// @Success 200 {object} KYCSessionResult
// @Failure 502 {object} map[string]interface{}
// @Router /kyc/session [post]
func (h *Handler) StartKYC(c *gin.Context) {
	var req KYCSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	res, err := h.service.StartKYC(c.Request.Context(), middleware.CurrentActor(c), req.ReturnURL)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// CreateAccount godoc
// @Summary Create my payout account and get an onboarding link
// @Tags Payouts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest false "Contact details"
// @Success 200 {object} OnboardResult
// @Failure 403 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /payouts/account [post]
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	res, err := h.service.CreateAccount(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// AccountStatus godoc
// @Summary Sync my payout account status
// @Tags Payouts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} AccountStatusResult
// @Failure 409 {object} map[string]interface{}
// @Router /payouts/account/status [get]
func (h *Handler) AccountStatus(c *gin.Context) {
	res, err := h.service.AccountStatus(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
