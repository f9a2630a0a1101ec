package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focustimer/internal/errors"
	"focustimer/internal/middleware"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "internal_error",
				"message": "internal server error",
			},
		})
		return
	}

	errorBody := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		errorBody["details"] = apiErr.Details
	}

	c.JSON(apiErr.Status, gin.H{
		"error": errorBody,
	})
}

// bindJSON decodes the request body into dst and writes a 400 on failure.
// An empty body is accepted when optional is set.
func bindJSON(c *gin.Context, dst interface{}, optional bool) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
	return false
}

// requireUser returns the authenticated owner id, writing a 401 when absent.
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeError(c, apperrors.Unauthorized(""))
		return "", false
	}
	return userID, true
}
