package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProbeResult contains media metadata from FFprobe
type ProbeResult struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// Format contains container format information
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate,omitempty"`
	Tags       Tags   `json:"tags,omitempty"`
}

// Stream contains information about a media stream
type Stream struct {
	Index       int    `json:"index"`
	CodecName   string `json:"codec_name"`
	CodecType   string `json:"codec_type"` // video, audio, subtitle, data
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	SampleRate  string `json:"sample_rate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	RFrameRate  string `json:"r_frame_rate"`
	Duration    string `json:"duration,omitempty"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
	SideDataList []struct {
		Rotation int `json:"rotation"`
	} `json:"side_data_list,omitempty"`
	Tags Tags `json:"tags,omitempty"`
}

// Tags contains metadata tags
type Tags map[string]string

// Probe extracts metadata from a media file using FFprobe
func (e *Executor) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("Executing FFprobe", zap.String("file", filePath))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}
	pid := cmd.Process.Pid
	e.track(pid, cmd)
	err := cmd.Wait()
	e.untrack(pid)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return ParseProbeOutput(stdout.Bytes())
}

// ParseProbeOutput decodes ffprobe -print_format json output
func ParseProbeOutput(data []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// Duration probes a file and returns its duration in seconds
func (e *Executor) Duration(ctx context.Context, filePath string) (float64, error) {
	probe, err := e.Probe(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return probe.GetDuration()
}

// GetDuration extracts the duration from probe result in seconds
func (p *ProbeResult) GetDuration() (float64, error) {
	if d, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64); err == nil && d > 0 {
		return d, nil
	}
	// Some containers only report per-stream durations.
	var longest float64
	for _, s := range p.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > longest {
			longest = d
		}
	}
	if longest > 0 {
		return longest, nil
	}
	return 0, fmt.Errorf("failed to parse duration %q", p.Format.Duration)
}

// VideoSize returns the display width and height of the first video stream,
// swapped when the stream carries a 90/270 degree rotation.
func (p *ProbeResult) VideoSize() (int, int, bool) {
	for _, s := range p.Streams {
		if s.CodecType != "video" || s.Disposition.AttachedPic == 1 {
			continue
		}
		w, h := s.Width, s.Height
		for _, sd := range s.SideDataList {
			if r := sd.Rotation % 180; r == 90 || r == -90 {
				w, h = h, w
			}
		}
		if rot, ok := s.Tags["rotate"]; ok && (rot == "90" || rot == "270") {
			w, h = h, w
		}
		return w, h, true
	}
	return 0, 0, false
}

// HasAudio reports whether the file has at least one audio stream
func (p *ProbeResult) HasAudio() bool {
	for _, s := range p.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// HasVideo reports whether the file has a real (non cover-art) video stream
func (p *ProbeResult) HasVideo() bool {
	_, _, ok := p.VideoSize()
	return ok
}
