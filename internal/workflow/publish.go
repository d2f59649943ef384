package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/subtitles"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/upload"
	"go.uber.org/zap"
)

// LoadResult reads the record a previous run left in the workspace
func (p *Pipeline) LoadResult(name string) (*models.Result, error) {
	var r models.Result
	if err := storage.ReadJSON(filepath.Join(p.store.VideoDir(name), ResultFile), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Publish uploads the finished parts of a workspace to every requested
// platform. A failing platform does not stop the others; the error is
// recorded on its Upload. An error is returned only when nothing succeeded
// or the run was stopped.
func (p *Pipeline) Publish(ctx context.Context, req models.PublishRequest, ev Events) ([]models.Upload, error) {
	if len(req.Platforms) == 0 {
		return nil, errors.New("no platforms selected")
	}

	files, err := p.store.ListFinalParts(req.Name)
	if err != nil {
		return nil, err
	}
	files = selectParts(files, req.Parts)
	if len(files) == 0 {
		return nil, fmt.Errorf("no finished parts found for %s", req.Name)
	}

	title := req.Name
	subs := map[int]string{}
	if r, err := p.LoadResult(req.Name); err == nil {
		if r.Title != "" {
			title = r.Title
		}
		for _, pr := range r.Parts {
			if pr.SubtitlePath != "" {
				subs[pr.Index] = pr.SubtitlePath
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Failed to read result record", zap.String("name", req.Name), zap.Error(err))
	}

	lang := req.Language
	if lang == "" {
		lang = p.opts.Language
	}

	ev.logf("Publishing %d part(s) of %s to %s", len(files), req.Name, strings.Join(req.Platforms, ", "))

	var (
		uploads   []models.Upload
		succeeded int
		steps     = len(files) * len(req.Platforms)
		done      int
	)
	for _, file := range files {
		if err := p.checkStop(ctx); err != nil {
			ev.logf("Publishing stopped")
			return uploads, err
		}

		index := storage.PartIndex(file)
		transcript := TranscriptOf(subs[index])

		var links []string
		for _, platform := range req.Platforms {
			up := p.publishOne(ctx, platform, file, index, title, transcript, lang, ev, func(f float64) {
				ev.progress((float64(done) + f) / float64(steps))
			})
			done++
			ev.progress(float64(done) / float64(steps))

			uploads = append(uploads, up)
			if up.Error == "" {
				succeeded++
				if up.URL != "" {
					links = append(links, up.URL)
				}
			}
			if ctx.Err() != nil {
				return uploads, ctx.Err()
			}
		}

		if req.Notify && len(links) > 0 {
			uploads = append(uploads, p.notify(ctx, file, index, title, links, ev))
		}
	}

	if succeeded == 0 {
		return uploads, errors.New("every upload failed")
	}
	return uploads, nil
}

func (p *Pipeline) publishOne(ctx context.Context, platform, file string, index int, title, transcript, lang string, ev Events, onProgress func(float64)) models.Upload {
	target, ok := p.targets[platform]
	if !ok {
		ev.logf("Part %d: platform %s is not configured", index, platform)
		return models.Upload{Platform: platform, Part: index, Error: "platform not configured"}
	}

	caption := p.Caption(ctx, models.CaptionRequest{
		Platform:   platform,
		Title:      title,
		Transcript: transcript,
		Part:       index,
		Language:   lang,
	})

	item := upload.Item{
		Path:       file,
		Part:       index,
		Caption:    caption,
		OnProgress: onProgress,
	}
	if platform == captions.PlatformYouTube {
		item.Thumbnail = p.thumbnail(ctx, file)
	}

	ev.logf("Part %d: uploading to %s", index, platform)
	up, err := target.Publish(ctx, item)
	if err != nil {
		p.logger.Error("Upload failed",
			zap.String("platform", platform),
			zap.Int("part", index),
			zap.Error(err),
		)
		ev.logf("Part %d: %s upload failed: %v", index, platform, err)
		if up.Error == "" {
			up.Error = err.Error()
		}
		return up
	}

	if up.URL != "" {
		ev.logf("Part %d: %s %s", index, platform, up.URL)
	} else {
		ev.logf("Part %d: %s upload done (%s)", index, platform, up.ID)
	}
	return up
}

// Caption generates metadata, falling back to a title-based caption when the
// generator is missing or fails
func (p *Pipeline) Caption(ctx context.Context, req models.CaptionRequest) models.Caption {
	if p.captions == nil {
		return captions.Fit(captions.Fallback(req), req.Platform)
	}
	c, err := p.captions.Generate(ctx, req)
	if err != nil {
		p.logger.Warn("Using fallback caption", zap.String("platform", req.Platform), zap.Error(err))
	}
	if c.Title == "" && c.Description == "" {
		c = captions.Fit(captions.Fallback(req), req.Platform)
	}
	return c
}

// notify sends the part with its links through WhatsApp
func (p *Pipeline) notify(ctx context.Context, file string, index int, title string, links []string, ev Events) models.Upload {
	target, ok := p.targets[captions.PlatformWhatsApp]
	if !ok {
		return models.Upload{Platform: captions.PlatformWhatsApp, Part: index, Error: "platform not configured"}
	}

	msg := fmt.Sprintf("%s - Parte %d\n%s", title, index, strings.Join(links, "\n"))
	up, err := target.Publish(ctx, upload.Item{
		Path:    file,
		Part:    index,
		Caption: models.Caption{Title: title, Description: msg},
	})
	if err != nil {
		ev.logf("Part %d: WhatsApp notification failed: %v", index, err)
		if up.Error == "" {
			up.Error = err.Error()
		}
	}
	return up
}

// thumbnail grabs a frame from the middle of the part; "" on failure
func (p *Pipeline) thumbnail(ctx context.Context, file string) string {
	out := strings.TrimSuffix(file, filepath.Ext(file)) + "_thumb.jpg"
	if p.store.NonEmpty(out) {
		return out
	}

	ts := 1.0
	if probe, err := p.media.Probe(ctx, file); err == nil {
		if d, err := probe.GetDuration(); err == nil && d > 0 {
			ts = d / 2
		}
	}
	if err := p.media.Thumbnail(ctx, file, out, ts); err != nil {
		p.logger.Warn("Failed to create thumbnail", zap.String("file", file), zap.Error(err))
		return ""
	}
	return out
}

// selectParts keeps the files whose part number is listed; empty keeps all
func selectParts(files []string, parts []int) []string {
	if len(parts) == 0 {
		return files
	}
	want := make(map[int]bool, len(parts))
	for _, n := range parts {
		want[n] = true
	}
	var out []string
	for _, f := range files {
		if want[storage.PartIndex(f)] {
			out = append(out, f)
		}
	}
	return out
}

// TranscriptOf flattens an SRT file into prompt text. Unreadable files
// yield an empty transcript.
func TranscriptOf(path string) string {
	if path == "" {
		return ""
	}
	cues, err := subtitles.ParseSRTFile(path)
	if err != nil {
		return ""
	}
	texts := make([]string, 0, len(cues))
	for _, c := range cues {
		texts = append(texts, strings.ReplaceAll(c.Text, "\n", " "))
	}
	return strings.Join(texts, " ")
}
