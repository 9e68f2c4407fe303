package handler

import (
	"errors"
	"net/http"

	"lobbyhub/backend/internal/lobby"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

// respondLobbyError maps the lobby error taxonomy onto HTTP statuses:
// validation 400, authorization 403, not-found 404, state conflicts 409.
// Anything unclassified is a 500.
func respondLobbyError(c *gin.Context, err error) {
	var lerr *lobby.Error
	if !errors.As(err, &lerr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch lerr.Kind {
	case lobby.KindValidation:
		status = http.StatusBadRequest
	case lobby.KindForbidden:
		status = http.StatusForbidden
	case lobby.KindNotFound:
		status = http.StatusNotFound
	case lobby.KindConflict:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": lerr.Message})
}

func currentUserID(c *gin.Context) uint {
	userID, _ := c.Get("userID")
	return userID.(uint)
}
