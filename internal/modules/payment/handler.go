package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/pkg/processor/sandbox"
	"parcelmarket/internal/pkg/response"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts the webhook endpoint. It is authenticated by signature, not by JWT.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/payment", h.Webhook)
}

// Webhook godoc
// @Summary      Payment processor webhook
// @Description  Verifies the signature, records the event id and applies it once. Redeliveries are acknowledged.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string false "Processor signature"
// @Success      200 {object} Result
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /webhooks/payment [post]
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Webhook body too large")
			return
		}
		response.Error(c, http.StatusBadRequest, "MALFORMED_EVENT", "Failed to read webhook body")
		return
	}

	res, err := h.service.HandleWebhook(c.Request.Context(), payload, signature(c))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func signature(c *gin.Context) string {
	if sig := c.GetHeader("Stripe-Signature"); sig != "" {
		return sig
	}
	return c.GetHeader(sandbox.SignatureHeader)
}
