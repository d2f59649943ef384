package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"go.uber.org/zap"
)

type CaptionHandler struct {
	services *services.Services
	logger   *zap.Logger
}

func NewCaptionHandler(services *services.Services, logger *zap.Logger) *CaptionHandler {
	return &CaptionHandler{
		services: services,
		logger:   logger,
	}
}

// Generate writes a caption without uploading anything. When the model is
// unavailable the fallback caption is returned with a warning.
func (h *CaptionHandler) Generate(c *gin.Context) {
	var req models.CaptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caption, err := h.services.Captions.Generate(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Caption generation fell back", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"caption": caption, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"caption": caption})
}
