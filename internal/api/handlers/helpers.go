package handlers

import (
	"path/filepath"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// underOutput places relative paths under the output directory
func underOutput(svc *services.Services, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(svc.Storage.OutputDir(), path)
}
