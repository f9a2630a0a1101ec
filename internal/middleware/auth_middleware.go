package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "focustimer/internal/errors"
)

const UserIDContextKey = "userID"

// TokenParser resolves a bearer token to its owner id.
type TokenParser interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

// Auth requires a bearer token. GET requests may pass it as the access_token
// query parameter instead, since EventSource clients cannot set headers.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, apiErr := bearerToken(c)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		userID, apiErr := parser.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(UserIDContextKey)
}

func bearerToken(c *gin.Context) (string, *apperrors.APIError) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if c.Request.Method == http.MethodGet {
			if token := strings.TrimSpace(c.Query("access_token")); token != "" {
				return token, nil
			}
		}
		return "", apperrors.Unauthorized("missing authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	return token, nil
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
