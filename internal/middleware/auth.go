package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/jwt"
	"parcelmarket/internal/pkg/response"
)

// JWTAuth verifies the identity provider's bearer token and puts user_id and role on the context.
func JWTAuth(tokens *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		role := claims.Role
		if role == "" {
			role = string(domain.RoleUser)
		}
		c.Set("user_id", claims.UserID)
		c.Set("role", role)
		if claims.Email != "" {
			c.Set("email", claims.Email)
		}
		c.Next()
	}
}

// CurrentActor reads the caller set by JWTAuth.
func CurrentActor(c *gin.Context) domain.Actor {
	return domain.Actor{
		UserID: c.GetInt64("user_id"),
		Role:   domain.UserRole(c.GetString("role")),
	}
}
