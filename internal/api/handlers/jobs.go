package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/control"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/ffmpeg"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type JobHandler struct {
	services *services.Services
	logger   *zap.Logger
}

func NewJobHandler(services *services.Services, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		services: services,
		logger:   logger,
	}
}

// Process starts the part pipeline
func (h *JobHandler) Process(c *gin.Context) {
	var req models.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Vertical {
	case "", ffmpeg.VerticalFill, ffmpeg.VerticalFit, ffmpeg.VerticalZoom:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "vertical must be fill, fit or zoom"})
		return
	}
	if req.End > 0 && req.End <= req.Start {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	job, err := h.services.StartProcess(req)
	h.started(c, job, err)
}

// Visualize starts an audio visualizer render
func (h *JobHandler) Visualize(c *gin.Context) {
	var req models.VisualizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Mode {
	case "", ffmpeg.VisualizerWaves, ffmpeg.VisualizerFreqs:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be waves or freqs"})
		return
	}

	job, err := h.services.StartVisualize(req)
	h.started(c, job, err)
}

// Publish uploads the parts of a processed video
func (h *JobHandler) Publish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Platforms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one platform required"})
		return
	}

	job, err := h.services.StartPublish(req)
	h.started(c, job, err)
}

// Download fetches a source video without processing it
func (h *JobHandler) Download(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.services.StartDownload(req)
	h.started(c, job, err)
}

// Join concatenates the finished parts of a processed video
func (h *JobHandler) Join(c *gin.Context) {
	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.services.StartJoin(req)
	h.started(c, job, err)
}

// Burn renders an SRT file onto a video. Relative paths are taken from the
// output directory.
func (h *JobHandler) Burn(c *gin.Context) {
	var req models.BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !strings.EqualFold(filepath.Ext(req.Subtitle), ".srt") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subtitle must be an .srt file"})
		return
	}
	req.Video = underOutput(h.services, req.Video)
	req.Subtitle = underOutput(h.services, req.Subtitle)
	req.Output = underOutput(h.services, req.Output)

	job, err := h.services.StartBurn(req)
	h.started(c, job, err)
}

func (h *JobHandler) started(c *gin.Context, job *models.Job, err error) {
	switch {
	case errors.Is(err, control.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("Failed to start job", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, job)
	}
}

// List returns every job
func (h *JobHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.services.Jobs.List()})
}

// Get returns one job
func (h *JobHandler) Get(c *gin.Context) {
	id := c.Param("id")

	job, err := h.services.Jobs.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Delete removes the record of a finished job
func (h *JobHandler) Delete(c *gin.Context) {
	err := h.services.Jobs.Delete(c.Param("id"))
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, services.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

// Stream sends the job followed by its live events over a websocket. The
// connection closes once the job finishes.
func (h *JobHandler) Stream(c *gin.Context) {
	id := c.Param("id")

	events, unsubscribe, err := h.services.Jobs.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	defer unsubscribe()

	job, err := h.services.Jobs.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(gin.H{"type": "snapshot", "job": job}); err != nil {
		return
	}
	if job.Status.IsFinished() {
		closeNormal(conn)
		return
	}

	// the reader notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "status" && ev.Status.IsFinished() {
				closeNormal(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
