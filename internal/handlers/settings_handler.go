package handlers

import (
	"net/http"

	"catalog-sync-service/internal/services"
	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the integration settings
type SettingsHandler struct {
	credentials *services.CredentialService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(credentials *services.CredentialService) *SettingsHandler {
	return &SettingsHandler{credentials: credentials}
}

// Get returns the settings with secrets masked
func (h *SettingsHandler) Get(c *gin.Context) {
	view, err := h.credentials.View(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// Update saves the provided settings; secrets go to the secret store
func (h *SettingsHandler) Update(c *gin.Context) {
	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.credentials.Save(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"saved_count": saved,
	})
}
