package handlers

import (
	"errors"
	"net/http"

	"catalog-sync-service/internal/services"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var configErr *services.ConfigError
	var validationErr *services.ValidationError
	var remoteErr *services.RemoteError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.As(err, &remoteErr):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
