// Package workflow runs the sequential part pipeline: cut the source into
// parts, subtitle and reframe each one, and publish the results.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/control"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/download"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/ffmpeg"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/subtitles"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/transcribe"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/upload"
	"go.uber.org/zap"
)

// ResultFile is written into every workspace after a run
const ResultFile = "result.json"

// MediaTool is the ffmpeg surface the pipeline drives
type MediaTool interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	CutPart(ctx context.Context, input, output string, start, duration float64, onProgress ffmpeg.ProgressCallback) error
	ExtractAudio(ctx context.Context, input, output string, start, duration float64) error
	Transform(ctx context.Context, opts ffmpeg.TransformOptions) error
	BurnSubtitles(ctx context.Context, input, srtPath, forceStyle, output string, duration float64, onProgress ffmpeg.ProgressCallback) error
	Concat(ctx context.Context, inputs []string, listPath, output string) error
	SrtToAss(ctx context.Context, srtPath, assPath string) error
	Composite(ctx context.Context, opts ffmpeg.CompositeOptions, onProgress ffmpeg.ProgressCallback) error
	Visualizer(ctx context.Context, opts ffmpeg.VisualizerOptions, onProgress ffmpeg.ProgressCallback) error
	Thumbnail(ctx context.Context, input, output string, timestamp float64) error
}

// Fetcher downloads remote sources and looks up their metadata
type Fetcher interface {
	Download(ctx context.Context, rawURL, format string, onProgress download.ProgressFunc) (string, error)
	Info(ctx context.Context, rawURL string) (*models.VideoInfo, error)
}

// CaptionWriter produces platform metadata for a part
type CaptionWriter interface {
	Generate(ctx context.Context, req models.CaptionRequest) (models.Caption, error)
}

// Events receives user-visible log lines and overall progress (0..1).
// Either function may be nil.
type Events struct {
	Log      func(line string)
	Progress func(fraction float64)
}

func (e Events) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log(fmt.Sprintf(format, args...))
	}
}

func (e Events) progress(f float64) {
	if e.Progress == nil {
		return
	}
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	e.Progress(f)
}

// Options are the pipeline defaults
type Options struct {
	PartMinutes float64
	StepRetries int
	RetryDelay  time.Duration
	Width       int
	Height      int
	Language    string
	YtDlpFormat string
	KeepTemp    bool
}

// Deps are the collaborators of a Pipeline. Transcriber, Captions and
// Fetcher may be nil when the matching feature is not configured.
type Deps struct {
	Storage     *storage.Manager
	Media       MediaTool
	Fetcher     Fetcher
	Transcriber transcribe.Transcriber
	Captions    CaptionWriter
	Targets     []upload.Target
	Flags       *control.Flags
}

// Pipeline processes one request at a time
type Pipeline struct {
	store       *storage.Manager
	media       MediaTool
	fetch       Fetcher
	transcriber transcribe.Transcriber
	captions    CaptionWriter
	targets     map[string]upload.Target
	flags       *control.Flags
	opts        Options
	logger      *zap.Logger
}

// New creates a pipeline
func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if opts.PartMinutes <= 0 {
		opts.PartMinutes = 5
	}
	if opts.StepRetries < 0 {
		opts.StepRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1080, 1920
	}
	if opts.YtDlpFormat == "" {
		opts.YtDlpFormat = download.DefaultFormat
	}
	flags := deps.Flags
	if flags == nil {
		flags = &control.Flags{}
	}

	targets := make(map[string]upload.Target, len(deps.Targets))
	for _, t := range deps.Targets {
		targets[t.Name()] = t
	}

	return &Pipeline{
		store:       deps.Storage,
		media:       deps.Media,
		fetch:       deps.Fetcher,
		transcriber: deps.Transcriber,
		captions:    deps.Captions,
		targets:     targets,
		flags:       flags,
		opts:        opts,
		logger:      logger,
	}
}

// Targets returns the names of the configured upload targets
func (p *Pipeline) Targets() []string {
	names := make([]string, 0, len(p.targets))
	for name := range p.targets {
		names = append(names, name)
	}
	return names
}

// Target looks up an upload target by platform name
func (p *Pipeline) Target(name string) (upload.Target, bool) {
	t, ok := p.targets[name]
	return t, ok
}

// checkStop is consulted before every part and between retries
func (p *Pipeline) checkStop(ctx context.Context) error {
	if err := p.flags.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// step runs fn, retrying it StepRetries times unless a stop was requested
func (p *Pipeline) step(ctx context.Context, ev Events, label string, fn func() error) error {
	attempts := p.opts.StepRetries + 1
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if stopErr := p.checkStop(ctx); stopErr != nil {
			return stopErr
		}
		p.logger.Warn("Pipeline step failed",
			zap.String("step", label),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		if i < attempts {
			ev.logf("%s failed (%v), retrying", label, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.opts.RetryDelay):
			}
		}
	}
	return fmt.Errorf("%s: %w", label, err)
}

// resolveSource downloads URLs and returns the local path plus a title
func (p *Pipeline) resolveSource(ctx context.Context, source string, ev Events) (string, string, error) {
	if !download.IsURL(source) {
		if _, err := os.Stat(source); err != nil {
			return "", "", fmt.Errorf("source not found: %w", err)
		}
		stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		return source, stem, nil
	}
	if p.fetch == nil {
		return "", "", errors.New("downloads are not configured")
	}

	title := storage.BaseName(source)
	if info, err := p.fetch.Info(ctx, source); err == nil && info.Title != "" {
		title = info.Title
	} else if err != nil {
		p.logger.Warn("Failed to read video info", zap.String("url", source), zap.Error(err))
	}

	ev.logf("Downloading %s", source)
	lastLogged := -10.0
	path, err := p.fetch.Download(ctx, source, p.opts.YtDlpFormat, func(percent float64) {
		if percent-lastLogged >= 10 {
			lastLogged = percent
			ev.logf("Download %.0f%%", percent)
		}
	})
	if err != nil {
		return "", "", fmt.Errorf("download failed: %w", err)
	}
	ev.logf("Downloaded to %s", path)
	return path, title, nil
}

// Process cuts the source into parts and runs every enabled step on each.
// The parts finished before a stop or failure are returned with the error.
func (p *Pipeline) Process(ctx context.Context, req models.ProcessRequest, ev Events) (*models.Result, error) {
	src, title, err := p.resolveSource(ctx, req.Source, ev)
	if err != nil {
		return nil, err
	}

	name := storage.BaseName(req.Source)
	dir, err := p.store.VideoWorkspace(name)
	if err != nil {
		return nil, err
	}

	probe, err := p.media.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}
	total, err := probe.GetDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to read duration: %w", err)
	}
	if !probe.HasVideo() {
		return nil, fmt.Errorf("%s has no video stream, use visualize for audio", filepath.Base(src))
	}

	partMinutes := req.PartMinutes
	if partMinutes <= 0 {
		partMinutes = p.opts.PartMinutes
	}
	parts := PlanParts(total, partMinutes*60, req.Start, req.End)
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to process in %s (duration %.1fs)", src, total)
	}

	// burning implies transcribing
	if req.Burn {
		req.Subtitles = true
	}
	if req.Subtitles && p.transcriber == nil {
		return nil, errors.New("subtitles requested but no transcriber is configured")
	}

	result := &models.Result{
		Name:     storage.SanitizeFilename(name),
		Title:    title,
		Dir:      dir,
		Source:   req.Source,
		Duration: total,
	}

	ev.logf("Processing %s: %d part(s) of up to %.1f min", name, len(parts), partMinutes)
	p.logger.Info("Starting process",
		zap.String("name", name),
		zap.String("source", src),
		zap.Float64("duration", total),
		zap.Int("parts", len(parts)),
	)

	hasAudio := probe.HasAudio()
	var subs []subtitles.PartSubtitle
	for i, part := range parts {
		if err := p.checkStop(ctx); err != nil {
			ev.logf("Stopped before part %d", part.Index)
			p.finish(result, subs, ev)
			return result, err
		}

		ev.logf("Part %d/%d: %s + %s", part.Index, len(parts),
			ffmpeg.FormatSeconds(part.Start), ffmpeg.FormatSeconds(part.Duration))

		base := float64(i) / float64(len(parts))
		onProgress := func(f float64) {
			ev.progress(base + f/float64(len(parts)))
		}

		pr, err := p.processPart(ctx, src, name, part, req, hasAudio, ev, onProgress)
		if err != nil {
			p.finish(result, subs, ev)
			return result, fmt.Errorf("part %d: %w", part.Index, err)
		}

		result.Parts = append(result.Parts, pr)
		if pr.SubtitlePath != "" {
			subs = append(subs, subtitles.PartSubtitle{
				Path:   pr.SubtitlePath,
				Offset: seconds(part.Start),
			})
		}
		ev.progress(float64(i+1) / float64(len(parts)))
		ev.logf("Part %d done: %s", part.Index, pr.Path)
	}

	p.finish(result, subs, ev)
	ev.logf("Finished %d part(s) in %s", len(result.Parts), dir)
	return result, nil
}

// finish writes the combined subtitles and the result record
func (p *Pipeline) finish(result *models.Result, subs []subtitles.PartSubtitle, ev Events) {
	if len(subs) > 0 {
		out := filepath.Join(result.Dir, storage.SubsDir, result.Name+"_completo.srt")
		n, err := subtitles.CombinePartsFile(out, subs)
		if err != nil {
			p.logger.Warn("Failed to combine subtitles", zap.Error(err))
			ev.logf("Could not combine subtitles: %v", err)
		} else {
			result.CombinedSRT = out
			ev.logf("Combined %d subtitle(s) into %s", n, out)
		}
	}

	if err := storage.WriteJSON(filepath.Join(result.Dir, ResultFile), result); err != nil {
		p.logger.Warn("Failed to save result", zap.Error(err))
	}
}

func (p *Pipeline) processPart(ctx context.Context, src, name string, part Part, req models.ProcessRequest, hasAudio bool, ev Events, onProgress ffmpeg.ProgressCallback) (models.PartResult, error) {
	pr := models.PartResult{Index: part.Index, Start: part.Start, Duration: part.Duration}

	filter := ffmpeg.Chain(
		cropFilter(req.Crop),
		ffmpeg.VerticalFilter(ffmpeg.VerticalSpec{
			Width:   p.opts.Width,
			Height:  p.opts.Height,
			Mode:    req.Vertical,
			Zoom:    req.Zoom,
			OffsetX: req.OffsetX,
		}),
	)

	finalPath := p.store.PartPath(name, storage.FinalDir, part.Index, ".mp4")
	var intermediates []string

	if req.Subtitles {
		if !hasAudio {
			ev.logf("Part %d has no audio, skipping subtitles", part.Index)
		} else {
			srtPath, assPath, err := p.subtitle(ctx, name, part, src, req, ev)
			if err != nil {
				return pr, err
			}
			pr.SubtitlePath = srtPath
			if assPath != "" {
				filter = ffmpeg.Chain(filter, ffmpeg.SubtitleFilter(assPath, ""))
				intermediates = append(intermediates, assPath)
			}
		}
	}

	// the part is trimmed out of the source inside its only encode
	encoded := finalPath
	span := 1.0
	if req.Background != "" {
		encoded = p.store.PartPath(name, storage.PartsDir, part.Index, "_edit.mp4")
		intermediates = append(intermediates, encoded)
		span = 0.6
	}

	var err error
	if filter != "" {
		err = p.step(ctx, ev, "transform", func() error {
			return p.media.Transform(ctx, ffmpeg.TransformOptions{
				Input:      src,
				Output:     encoded,
				Filter:     filter,
				Start:      part.Start,
				Duration:   part.Duration,
				OnProgress: scaled(onProgress, 0, span),
			})
		})
	} else {
		err = p.step(ctx, ev, "cut", func() error {
			return p.media.CutPart(ctx, src, encoded, part.Start, part.Duration, scaled(onProgress, 0, span))
		})
	}
	if err != nil {
		return pr, err
	}

	if req.Background != "" {
		err = p.step(ctx, ev, "background", func() error {
			return p.media.Composite(ctx, ffmpeg.CompositeOptions{
				Video:      encoded,
				Background: req.Background,
				Output:     finalPath,
				Width:      p.opts.Width,
				Height:     p.opts.Height,
				HasAudio:   hasAudio,
				Duration:   part.Duration,
			}, scaled(onProgress, span, 1-span))
		})
		if err != nil {
			return pr, err
		}
	}

	size, err := p.store.GetFileSize(finalPath)
	if err != nil || size == 0 {
		return pr, fmt.Errorf("output %s is missing or empty", finalPath)
	}
	pr.Path = finalPath
	pr.Size = size

	if !p.opts.KeepTemp {
		p.store.DeleteFiles(intermediates...)
	}
	return pr, nil
}

// subtitle transcribes the part's span of src into SRT and, for burning, a
// styled ASS
func (p *Pipeline) subtitle(ctx context.Context, name string, part Part, src string, req models.ProcessRequest, ev Events) (string, string, error) {
	audioPath := p.store.PartPath(name, storage.AudioDir, part.Index, ".mp3")
	srtPath := p.store.PartPath(name, storage.SubsDir, part.Index, ".srt")

	err := p.step(ctx, ev, "extract audio", func() error {
		return p.media.ExtractAudio(ctx, src, audioPath, part.Start, part.Duration)
	})
	if err != nil {
		return "", "", err
	}
	if !p.opts.KeepTemp {
		defer p.store.DeleteFiles(audioPath)
	}

	lang := req.Language
	if lang == "" {
		lang = p.opts.Language
	}

	ev.logf("Transcribing part %d", part.Index)
	var srt string
	err = p.step(ctx, ev, "transcribe", func() error {
		var err error
		srt, err = p.transcriber.Transcribe(ctx, audioPath, lang)
		return err
	})
	if err != nil {
		return "", "", err
	}

	cues, err := subtitles.ParseSRT(strings.NewReader(srt))
	if err != nil {
		return "", "", fmt.Errorf("invalid transcription: %w", err)
	}
	if req.Style != nil && req.Style.MaxLineChars > 0 {
		cues = subtitles.WrapCues(cues, req.Style.MaxLineChars)
	}
	if err := subtitles.WriteSRTFile(srtPath, cues); err != nil {
		return "", "", err
	}
	ev.logf("Subtitles for part %d: %d cue(s)", part.Index, len(cues))

	if !req.Burn {
		return srtPath, "", nil
	}

	assPath := p.store.PartPath(name, storage.SubsDir, part.Index, ".ass")
	err = p.step(ctx, ev, "convert subtitles", func() error {
		return p.media.SrtToAss(ctx, srtPath, assPath)
	})
	if err != nil {
		return "", "", err
	}
	if req.Style != nil {
		if err := subtitles.RewriteStylesFile(assPath, StyleFrom(*req.Style)); err != nil {
			return "", "", err
		}
	}
	return srtPath, assPath, nil
}

// StyleFrom maps the request style onto ASS style fields
func StyleFrom(s models.SubtitleStyle) subtitles.Style {
	return subtitles.Style{
		Font:         s.Font,
		Size:         s.Size,
		PrimaryColor: s.Color,
		OutlineColor: s.OutlineColor,
		Bold:         s.Bold,
		Outline:      float64(s.Outline),
		Alignment:    subtitles.AlignmentFor(s.Position),
		MarginV:      s.MarginV,
	}
}

func cropFilter(in *models.Inset) string {
	if in == nil {
		return ""
	}
	return ffmpeg.CropFilter(ffmpeg.CropSpec{Top: in.Top, Bottom: in.Bottom, Left: in.Left, Right: in.Right})
}

// scaled maps a step's 0..1 progress onto [from, from+span] of the part
func scaled(cb ffmpeg.ProgressCallback, from, span float64) ffmpeg.ProgressCallback {
	if cb == nil {
		return nil
	}
	return func(f float64) {
		cb(from + f*span)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
