package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"go.uber.org/zap"
)

type OutputHandler struct {
	services *services.Services
	logger   *zap.Logger
}

func NewOutputHandler(services *services.Services, logger *zap.Logger) *OutputHandler {
	return &OutputHandler{
		services: services,
		logger:   logger,
	}
}

// Get returns the result record and finished parts of a workspace
func (h *OutputHandler) Get(c *gin.Context) {
	name := c.Param("name")

	parts, err := h.services.Storage.ListFinalParts(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := h.services.Pipeline.LoadResult(name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("Failed to read result", zap.String("name", name), zap.Error(err))
	}
	if result == nil && len(parts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "output not found"})
		return
	}

	files := make([]string, 0, len(parts))
	for _, p := range parts {
		files = append(files, filepath.Base(p))
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "result": result, "parts": files})
}

// File serves a file from inside a workspace
func (h *OutputHandler) File(c *gin.Context) {
	name := c.Param("name")
	rel := strings.TrimPrefix(c.Param("file"), "/")

	root := h.services.Storage.VideoDir(name)
	path := filepath.Join(root, filepath.FromSlash(rel))
	if rel == "" || !strings.HasPrefix(path, root+string(filepath.Separator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.logger.Warn("Output file not found", zap.String("path", path))
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(path)))
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("X-Content-Type-Options", "nosniff")
	c.File(path)
}
