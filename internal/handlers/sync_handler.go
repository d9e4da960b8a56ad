package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
	"github.com/gin-gonic/gin"
)

// SyncHandler handles push, import, status and connection test endpoints
type SyncHandler struct {
	syncService   *services.SyncService
	importService *services.ImportService
	runs          *services.RunHistory
	defaultLimit  int
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService *services.SyncService, importService *services.ImportService, runs *services.RunHistory, defaultLimit int) *SyncHandler {
	return &SyncHandler{
		syncService:   syncService,
		importService: importService,
		runs:          runs,
		defaultLimit:  defaultLimit,
	}
}

// SyncRequest selects the page of local items to push
type SyncRequest struct {
	Offset *int `json:"offset"`
	Limit  *int `json:"limit"`
}

// Sync pushes one page of items
func (h *SyncHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offset, limit := 0, h.defaultLimit
	if req.Offset != nil {
		offset = *req.Offset
	}
	if req.Limit != nil {
		limit = *req.Limit
	}

	result, err := h.syncService.Sync(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Import pulls the remote catalog into the local store
func (h *SyncHandler) Import(c *gin.Context) {
	result, err := h.importService.Import(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// TestConnection checks the stored credentials against the remote API
func (h *SyncHandler) TestConnection(c *gin.Context) {
	result, err := h.syncService.TestConnection(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status returns the last sync time and recent failures
func (h *SyncHandler) Status(c *gin.Context) {
	report, err := h.syncService.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Runs lists recent sync and import runs
func (h *SyncHandler) Runs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, total, err := h.runs.List(c.Request.Context(), repository.RunListOptions{
		Kind:   c.Query("kind"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": total,
	})
}
