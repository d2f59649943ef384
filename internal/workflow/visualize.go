package workflow

import (
	"context"
	"fmt"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/ffmpeg"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"go.uber.org/zap"
)

// VisualSuffix names the workspace holding visualizer renders
const VisualSuffix = "_visual"

// Visualize renders an audio visualizer video for every part of the source,
// which may be an audio file or a video whose audio is used.
func (p *Pipeline) Visualize(ctx context.Context, req models.VisualizeRequest, ev Events) (*models.Result, error) {
	src, title, err := p.resolveSource(ctx, req.Source, ev)
	if err != nil {
		return nil, err
	}

	name := storage.BaseName(req.Source) + VisualSuffix
	dir, err := p.store.VideoWorkspace(name)
	if err != nil {
		return nil, err
	}

	probe, err := p.media.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}
	if !probe.HasAudio() {
		return nil, fmt.Errorf("%s has no audio stream", src)
	}
	total, err := probe.GetDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to read duration: %w", err)
	}

	partMinutes := req.PartMinutes
	if partMinutes <= 0 {
		partMinutes = p.opts.PartMinutes
	}
	parts := PlanParts(total, partMinutes*60, 0, 0)
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to render in %s", src)
	}

	result := &models.Result{
		Name:     storage.SanitizeFilename(name),
		Title:    title,
		Dir:      dir,
		Source:   req.Source,
		Duration: total,
	}

	ev.logf("Rendering %d visualizer part(s) for %s", len(parts), name)
	p.logger.Info("Starting visualizer",
		zap.String("name", name),
		zap.String("mode", req.Mode),
		zap.Int("parts", len(parts)),
	)

	for i, part := range parts {
		if err := p.checkStop(ctx); err != nil {
			ev.logf("Stopped before part %d", part.Index)
			p.finish(result, nil, ev)
			return result, err
		}

		out := p.store.PartPath(name, storage.FinalDir, part.Index, ".mp4")
		base := float64(i) / float64(len(parts))
		err := p.step(ctx, ev, "visualizer", func() error {
			return p.media.Visualizer(ctx, ffmpeg.VisualizerOptions{
				Audio:      src,
				Output:     out,
				Background: req.Background,
				Color:      req.Color,
				Mode:       req.Mode,
				Width:      p.opts.Width,
				Height:     p.opts.Height,
				Start:      part.Start,
				Duration:   part.Duration,
			}, func(f float64) {
				ev.progress(base + f/float64(len(parts)))
			})
		})
		if err != nil {
			p.finish(result, nil, ev)
			return result, fmt.Errorf("part %d: %w", part.Index, err)
		}

		size, err := p.store.GetFileSize(out)
		if err != nil || size == 0 {
			p.finish(result, nil, ev)
			return result, fmt.Errorf("part %d: output %s is missing or empty", part.Index, out)
		}

		result.Parts = append(result.Parts, models.PartResult{
			Index:    part.Index,
			Start:    part.Start,
			Duration: part.Duration,
			Path:     out,
			Size:     size,
		})
		ev.logf("Visualizer part %d done: %s", part.Index, out)
	}

	p.finish(result, nil, ev)
	return result, nil
}
