package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CutPart extracts [start, start+duration) from input, re-encoded with the
// executor's encoding so the part starts on the exact frame.
func (e *Executor) CutPart(ctx context.Context, input, output string, start, duration float64, onProgress ProgressCallback) error {
	return e.Execute(ctx, ExecuteOptions{
		Args:       CutArgs(input, output, start, duration, e.encoding),
		Duration:   duration,
		OnProgress: onProgress,
	})
}

// CutArgs builds the ffmpeg arguments for CutPart. Seeking happens before
// -i and the length is limited after it, so decoding starts at the previous
// keyframe but output begins exactly at start.
func CutArgs(input, output string, start, duration float64, enc Encoding) []string {
	args := []string{"-hide_banner"}
	args = append(args, trimArgs(input, start, duration)...)
	args = append(args,
		"-map", "0:v:0?",
		"-map", "0:a:0?",
	)
	args = append(args, enc.Args()...)
	return append(args,
		"-movflags", "+faststart",
		"-y",
		output,
	)
}

func trimArgs(input string, start, duration float64) []string {
	var args []string
	if start > 0 {
		args = append(args, "-ss", FormatSeconds(start))
	}
	args = append(args, "-i", input)
	if duration > 0 {
		args = append(args, "-t", FormatSeconds(duration))
	}
	return args
}

// ExtractAudio writes the audio of [start, start+duration) as mono 16 kHz,
// the format speech models expect. The codec follows the output extension:
// .wav gets PCM, anything else mp3. A zero duration means until the end.
func (e *Executor) ExtractAudio(ctx context.Context, input, output string, start, duration float64) error {
	args := []string{"-hide_banner"}
	args = append(args, trimArgs(input, start, duration)...)
	args = append(args, "-vn", "-ac", "1", "-ar", "16000")

	if strings.EqualFold(filepath.Ext(output), ".wav") {
		args = append(args, "-c:a", "pcm_s16le")
	} else {
		args = append(args, "-c:a", "libmp3lame", "-b:a", "64k")
	}
	args = append(args, "-y", output)

	return e.Execute(ctx, ExecuteOptions{
		Args:     args,
		Duration: duration,
	})
}

// TransformOptions describes a single re-encode with a video filter chain.
// Start and Duration trim the input in the same pass; zero values keep the
// whole input.
type TransformOptions struct {
	Input      string
	Output     string
	Filter     string // -vf expression, may be empty
	Start      float64
	Duration   float64
	OnProgress ProgressCallback
}

// Transform re-encodes Input through Filter into Output. Trimming, crop,
// reframing and subtitle burning share one encode so quality is only lost once.
func (e *Executor) Transform(ctx context.Context, opts TransformOptions) error {
	return e.Execute(ctx, ExecuteOptions{
		Args:       TransformArgs(opts, e.encoding),
		Duration:   opts.Duration,
		OnProgress: opts.OnProgress,
	})
}

// TransformArgs builds the ffmpeg arguments for Transform
func TransformArgs(opts TransformOptions, enc Encoding) []string {
	args := []string{"-hide_banner"}
	args = append(args, trimArgs(opts.Input, opts.Start, opts.Duration)...)
	args = append(args,
		"-map", "0:v:0",
		"-map", "0:a:0?",
	)
	if opts.Filter != "" {
		args = append(args, "-vf", opts.Filter)
	}
	args = append(args, enc.Args()...)
	return append(args,
		"-movflags", "+faststart",
		"-y",
		opts.Output,
	)
}

// BurnSubtitles renders an SRT file onto input with the given force_style,
// for callers that have no ASS file to burn
func (e *Executor) BurnSubtitles(ctx context.Context, input, srtPath, forceStyle, output string, duration float64, onProgress ProgressCallback) error {
	return e.Transform(ctx, TransformOptions{
		Input:      input,
		Output:     output,
		Filter:     SubtitleFilter(srtPath, forceStyle),
		Duration:   duration,
		OnProgress: onProgress,
	})
}

// Concat joins inputs end to end with the concat demuxer. The inputs must
// share codecs, which holds for parts cut by this executor, so streams are
// copied. listPath receives the demuxer list and is removed afterwards.
func (e *Executor) Concat(ctx context.Context, inputs []string, listPath, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to concatenate")
	}
	if err := os.WriteFile(listPath, []byte(ConcatList(inputs)), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	return e.Execute(ctx, ExecuteOptions{
		Args: []string{
			"-hide_banner",
			"-f", "concat",
			"-safe", "0",
			"-i", listPath,
			"-c", "copy",
			"-movflags", "+faststart",
			"-y",
			output,
		},
	})
}

// ConcatList renders the concat demuxer list for inputs
func ConcatList(inputs []string) string {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		abs = filepath.ToSlash(abs)
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return b.String()
}

// SrtToAss converts an SRT file into ASS so its styles can be rewritten
func (e *Executor) SrtToAss(ctx context.Context, srtPath, assPath string) error {
	return e.Execute(ctx, ExecuteOptions{
		Args: []string{
			"-hide_banner",
			"-i", srtPath,
			"-y",
			assPath,
		},
	})
}

// Composite places video centered on a looped background image
func (e *Executor) Composite(ctx context.Context, opts CompositeOptions, onProgress ProgressCallback) error {
	opts.Encoding = e.encoding
	return e.Execute(ctx, ExecuteOptions{
		Args:       CompositeArgs(opts),
		Duration:   opts.Duration,
		OnProgress: onProgress,
	})
}

// Visualizer renders an audio visualizer video
func (e *Executor) Visualizer(ctx context.Context, opts VisualizerOptions, onProgress ProgressCallback) error {
	opts.Encoding = e.encoding
	return e.Execute(ctx, ExecuteOptions{
		Args:       VisualizerArgs(opts),
		Duration:   opts.Duration,
		OnProgress: onProgress,
	})
}

// Thumbnail captures a single frame as a JPEG
func (e *Executor) Thumbnail(ctx context.Context, input, output string, timestamp float64) error {
	args := []string{
		"-hide_banner",
		"-ss", FormatSeconds(timestamp),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		output,
	}

	return e.Execute(ctx, ExecuteOptions{
		Args: args,
	})
}
