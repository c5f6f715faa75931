package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/learnledger/editor-api/internal/models"
	"github.com/learnledger/editor-api/internal/service"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token.
func JWT(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentUser returns the claims attached by JWT, or nil.
func CurrentUser(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
