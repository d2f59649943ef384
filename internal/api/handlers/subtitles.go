package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/subtitles"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"go.uber.org/zap"
)

type SubtitleHandler struct {
	services *services.Services
	logger   *zap.Logger
}

func NewSubtitleHandler(services *services.Services, logger *zap.Logger) *SubtitleHandler {
	return &SubtitleHandler{
		services: services,
		logger:   logger,
	}
}

// Merge combines per-part SRT files into one, shifting each by its offset
func (h *SubtitleHandler) Merge(c *gin.Context) {
	var req models.MergeSubtitlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Parts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no parts given"})
		return
	}

	parts := make([]subtitles.PartSubtitle, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offsets must not be negative"})
			return
		}
		parts = append(parts, subtitles.PartSubtitle{
			Path:   h.resolve(p.Path),
			Offset: secondsToDuration(p.Offset),
		})
	}

	output := h.resolve(req.Output)
	n, err := subtitles.CombinePartsFile(output, parts)
	if err != nil {
		h.logger.Error("Failed to merge subtitles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": output, "cues": n})
}

type styleRequest struct {
	Path  string               `json:"path" binding:"required"`
	Style models.SubtitleStyle `json:"style"`
}

// Style rewrites the styles of an ASS file in place
func (h *SubtitleHandler) Style(c *gin.Context) {
	var req styleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := h.resolve(req.Path)
	if err := subtitles.RewriteStylesFile(path, workflow.StyleFrom(req.Style)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *SubtitleHandler) resolve(path string) string {
	return underOutput(h.services, path)
}
