package ffmpeg

import (
	"fmt"
	"strings"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// Visualizer styles
const (
	VisualizerWaves = "waves"
	VisualizerFreqs = "freqs"
)

// CompositeOptions places a video over a still background
type CompositeOptions struct {
	Video      string
	Background string
	Output     string
	Width      int
	Height     int
	Scale      float64 // foreground width as a fraction of Width
	HasAudio   bool
	Duration   float64
	Encoding   Encoding
}

// VisualizerOptions renders audio as an animated waveform or spectrum
type VisualizerOptions struct {
	Audio           string
	Output          string
	Background      string // image path, optional
	BackgroundColor string
	Color           string
	Mode            string
	Width           int
	Height          int
	Start           float64
	Duration        float64
	Encoding        Encoding
}

// CompositeArgs builds the ffmpeg arguments for a background composite.
// The looped image is cut to the canvas, the video is scaled and centered,
// and the overlay ends with the video.
func CompositeArgs(opts CompositeOptions) []string {
	w, h := canvas(opts.Width, opts.Height)
	scale := opts.Scale
	if scale <= 0 || scale > 1 {
		scale = 0.9
	}

	bg := ffmpeggo.Input(opts.Background, ffmpeggo.KwArgs{"loop": 1, "framerate": 30}).
		Filter("scale", ffmpeggo.Args{fmt.Sprintf("%d:%d", w, h)}, ffmpeggo.KwArgs{"force_original_aspect_ratio": "increase"}).
		Filter("crop", ffmpeggo.Args{fmt.Sprintf("%d:%d", w, h)})

	in := ffmpeggo.Input(opts.Video)
	fg := in.Video().
		Filter("scale", ffmpeggo.Args{fmt.Sprintf("%d:-2", even(int(float64(w)*scale)))})

	video := bg.Overlay(fg, "endall", ffmpeggo.KwArgs{
		"x":        "(W-w)/2",
		"y":        "(H-h)/2",
		"shortest": 1,
	}).Filter("setsar", ffmpeggo.Args{"1"})

	streams := []*ffmpeggo.Stream{video}
	if opts.HasAudio {
		streams = append(streams, in.Audio())
	}

	return ffmpeggo.Output(streams, opts.Output, outputKwArgs(opts.Encoding)).
		GlobalArgs("-hide_banner").
		OverWriteOutput().
		GetArgs()
}

// VisualizerArgs builds the ffmpeg arguments for an audio visualizer over a
// background image, or over a solid color when no image is given.
func VisualizerArgs(opts VisualizerOptions) []string {
	w, h := canvas(opts.Width, opts.Height)

	inKw := ffmpeggo.KwArgs{}
	if opts.Start > 0 {
		inKw["ss"] = FormatSeconds(opts.Start)
	}
	if opts.Duration > 0 {
		inKw["t"] = FormatSeconds(opts.Duration)
	}
	audio := ffmpeggo.Input(opts.Audio, inKw)

	var bg *ffmpeggo.Stream
	if opts.Background != "" {
		bg = ffmpeggo.Input(opts.Background, ffmpeggo.KwArgs{"loop": 1, "framerate": 30}).
			Filter("scale", ffmpeggo.Args{fmt.Sprintf("%d:%d", w, h)}, ffmpeggo.KwArgs{"force_original_aspect_ratio": "increase"}).
			Filter("crop", ffmpeggo.Args{fmt.Sprintf("%d:%d", w, h)})
	} else {
		color := hexColor(opts.BackgroundColor, "0x000000")
		bg = ffmpeggo.Input(fmt.Sprintf("color=c=%s:s=%dx%d:r=30", color, w, h), ffmpeggo.KwArgs{"f": "lavfi"})
	}

	size := fmt.Sprintf("%dx%d", w, even(h/3))
	color := hexColor(opts.Color, "0xffffff")

	var viz *ffmpeggo.Stream
	switch opts.Mode {
	case VisualizerFreqs:
		viz = audio.Audio().Filter("showfreqs", ffmpeggo.Args{}, ffmpeggo.KwArgs{
			"s":      size,
			"mode":   "bar",
			"colors": color,
		})
	default:
		viz = audio.Audio().Filter("showwaves", ffmpeggo.Args{}, ffmpeggo.KwArgs{
			"s":      size,
			"mode":   "cline",
			"colors": color,
			"rate":   30,
		})
	}

	video := bg.Overlay(viz, "endall", ffmpeggo.KwArgs{
		"x":        "(W-w)/2",
		"y":        "(H-h)/2",
		"shortest": 1,
	}).Filter("format", ffmpeggo.Args{"yuv420p"})

	return ffmpeggo.Output([]*ffmpeggo.Stream{video, audio.Audio()}, opts.Output, outputKwArgs(opts.Encoding)).
		GlobalArgs("-hide_banner").
		OverWriteOutput().
		GetArgs()
}

func outputKwArgs(enc Encoding) ffmpeggo.KwArgs {
	if enc.VideoCodec == "" {
		enc = DefaultEncoding()
	}
	kw := ffmpeggo.KwArgs{
		"c:v":      enc.VideoCodec,
		"preset":   enc.Preset,
		"crf":      enc.CRF,
		"pix_fmt":  "yuv420p",
		"c:a":      enc.AudioCodec,
		"b:a":      enc.AudioBitrate,
		"movflags": "+faststart",
	}
	if enc.Threads > 0 {
		kw["threads"] = enc.Threads
	}
	return kw
}

func canvas(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1080, 1920
	}
	return even(w), even(h)
}

// hexColor turns "#RRGGBB" into the 0xRRGGBB form filters accept
func hexColor(c, fallback string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return fallback
	}
	if strings.HasPrefix(c, "#") {
		return "0x" + c[1:]
	}
	return c
}
