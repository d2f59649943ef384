package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/ffmpeg"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/subtitles"
	"go.uber.org/zap"
)

// JoinedSuffix names the full video rebuilt from a workspace's parts
const JoinedSuffix = "_completo.mp4"

// Join concatenates the finished parts of a processed video back into one
// file, output/<name>/<name>_completo.mp4
func (p *Pipeline) Join(ctx context.Context, name string, ev Events) (*models.Result, error) {
	parts, err := p.store.ListFinalParts(name)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no finished parts for %s", name)
	}

	base := storage.SanitizeFilename(name)
	out := filepath.Join(p.store.VideoDir(name), base+JoinedSuffix)
	if err := os.MkdirAll(p.store.TempDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	list := p.store.GetTempPath(base + "_concat.txt")

	ev.logf("Joining %d part(s) of %s", len(parts), name)
	err = p.step(ctx, ev, "join", func() error {
		return p.media.Concat(ctx, parts, list, out)
	})
	if err != nil {
		return nil, err
	}

	size, err := p.store.GetFileSize(out)
	if err != nil || size == 0 {
		return nil, fmt.Errorf("output %s is missing or empty", out)
	}
	ev.progress(1)
	ev.logf("Joined into %s", out)
	p.logger.Info("Joined parts", zap.String("name", name), zap.Int("parts", len(parts)), zap.String("output", out))

	return &models.Result{
		Name:   base,
		Dir:    p.store.VideoDir(name),
		Source: name,
		Parts:  []models.PartResult{{Index: 1, Path: out, Size: size}},
	}, nil
}

// Burn renders an SRT file onto a video, styling it through force_style
func (p *Pipeline) Burn(ctx context.Context, req models.BurnRequest, ev Events) (*models.Result, error) {
	if !strings.EqualFold(filepath.Ext(req.Subtitle), ".srt") {
		return nil, errors.New("subtitle must be an .srt file")
	}
	if !p.store.NonEmpty(req.Video) {
		return nil, fmt.Errorf("video not found: %s", req.Video)
	}
	if !p.store.NonEmpty(req.Subtitle) {
		return nil, fmt.Errorf("subtitle not found: %s", req.Subtitle)
	}

	out := req.Output
	if out == "" {
		out = strings.TrimSuffix(req.Video, filepath.Ext(req.Video)) + "_subs.mp4"
	}

	info, err := p.media.Probe(ctx, req.Video)
	if err != nil {
		return nil, fmt.Errorf("failed to read video info: %w", err)
	}
	duration, err := info.GetDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to read duration: %w", err)
	}

	var force string
	if req.Style != nil {
		force = subtitles.ForceStyle(StyleFrom(*req.Style))
	}

	ev.logf("Burning %s onto %s", filepath.Base(req.Subtitle), filepath.Base(req.Video))
	err = p.step(ctx, ev, "burn", func() error {
		return p.media.BurnSubtitles(ctx, req.Video, req.Subtitle, force, out, duration, ffmpeg.ProgressCallback(ev.progress))
	})
	if err != nil {
		return nil, err
	}

	size, err := p.store.GetFileSize(out)
	if err != nil || size == 0 {
		return nil, fmt.Errorf("output %s is missing or empty", out)
	}
	ev.logf("Saved %s", out)

	return &models.Result{
		Name:     storage.BaseName(req.Video),
		Dir:      filepath.Dir(out),
		Source:   req.Video,
		Duration: duration,
		Parts:    []models.PartResult{{Index: 1, Duration: duration, Path: out, SubtitlePath: req.Subtitle, Size: size}},
	}, nil
}
