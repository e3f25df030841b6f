package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/pkg/apperr"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// AppError writes the envelope for a service error. Unknown errors are attached to the gin
// context for the request logger and answered with a generic 500.
func AppError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	body := gin.H{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if e.Kind == apperr.KindExternal {
		body["retryable"] = e.Retryable
		_ = c.Error(err)
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(apperr.HTTPStatus(e), gin.H{
		"success": false,
		"error":   body,
	})
}
