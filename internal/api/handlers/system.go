package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/download"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"go.uber.org/zap"
)

// Version is reported by /api/system/info
var Version = "dev"

type SystemHandler struct {
	config   *config.Config
	services *services.Services
	logger   *zap.Logger
}

func NewSystemHandler(cfg *config.Config, services *services.Services, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		config:   cfg,
		services: services,
		logger:   logger,
	}
}

func (h *SystemHandler) Info(c *gin.Context) {
	targets := h.services.Pipeline.Targets()
	sort.Strings(targets)
	busy := h.services.Jobs.Busy()

	c.JSON(http.StatusOK, gin.H{
		"name":        "zemper",
		"version":     Version,
		"ffmpeg":      h.services.FFmpeg.GetFFmpegPath(),
		"ffprobe":     h.services.FFmpeg.GetFFprobePath(),
		"ytdlp":       h.config.YtDlp.Path,
		"transcriber": h.config.Whisper.Provider,
		"targets":     targets,
		"busy":        busy,
		"stopping":    busy && h.services.Flags.StopRequested(),
		"running":     h.services.FFmpeg.Running(),
		"output_dir":  h.services.Storage.OutputDir(),
	})
}

// Stop interrupts the running job, killing its external processes
func (h *SystemHandler) Stop(c *gin.Context) {
	if !h.services.Jobs.Stop() {
		c.JSON(http.StatusOK, gin.H{"stopped": false, "message": "nothing is running"})
		return
	}
	h.logger.Info("Stop requested via API")
	c.JSON(http.StatusAccepted, gin.H{"stopped": true})
}

// VideoInfo returns metadata for ?url=
func (h *SystemHandler) VideoInfo(c *gin.Context) {
	rawURL := c.Query("url")
	if !download.IsURL(rawURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter required"})
		return
	}

	info, err := h.services.Downloader.Info(c.Request.Context(), rawURL)
	if err != nil {
		h.logger.Error("Failed to read video info", zap.String("url", rawURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}
