package ffmpeg

import (
	"fmt"
	"math"
	"strings"
)

// Safe ranges for user supplied geometry before it reaches a filter string
const (
	MaxInset  = 0.45
	MinZoom   = 1.0
	MaxZoom   = 3.0
	MaxOffset = 1.0
)

// Vertical reframing modes
const (
	VerticalFill = "fill" // scale to cover, crop the overflow
	VerticalFit  = "fit"  // whole frame over a blurred copy of itself
	VerticalZoom = "zoom" // like fill with an extra zoom factor
)

// ClampInset bounds an edge crop fraction to [0, MaxInset]
func ClampInset(p float64) float64 {
	return clamp(p, 0, MaxInset)
}

// ClampZoom bounds a zoom factor to [MinZoom, MaxZoom]
func ClampZoom(z float64) float64 {
	if z == 0 {
		return MinZoom
	}
	return clamp(z, MinZoom, MaxZoom)
}

// ClampOffset bounds a horizontal pan to [-1, 1], 0 meaning centered
func ClampOffset(o float64) float64 {
	return clamp(o, -MaxOffset, MaxOffset)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// CropSpec removes a fraction of the frame from each edge
type CropSpec struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// Clamped returns the spec with every inset inside the safe range
func (c CropSpec) Clamped() CropSpec {
	return CropSpec{
		Top:    ClampInset(c.Top),
		Bottom: ClampInset(c.Bottom),
		Left:   ClampInset(c.Left),
		Right:  ClampInset(c.Right),
	}
}

// IsZero reports whether the spec crops nothing after clamping
func (c CropSpec) IsZero() bool {
	c = c.Clamped()
	return c.Top == 0 && c.Bottom == 0 && c.Left == 0 && c.Right == 0
}

// CropFilter builds a crop expression relative to the input size. Output
// dimensions are rounded down to even numbers for yuv420p encoders.
func CropFilter(spec CropSpec) string {
	if spec.IsZero() {
		return ""
	}
	c := spec.Clamped()
	return fmt.Sprintf("crop=trunc(iw*%s/2)*2:trunc(ih*%s/2)*2:iw*%s:ih*%s",
		num(1-c.Left-c.Right), num(1-c.Top-c.Bottom), num(c.Left), num(c.Top))
}

// VerticalSpec reframes a clip into a portrait canvas
type VerticalSpec struct {
	Width   int
	Height  int
	Mode    string
	Zoom    float64
	OffsetX float64
}

// VerticalFilter builds the reframing filtergraph for spec.Mode. An empty or
// unknown mode returns "".
func VerticalFilter(spec VerticalSpec) string {
	w, h := spec.Width, spec.Height
	if w <= 0 || h <= 0 {
		w, h = 1080, 1920
	}
	w, h = even(w), even(h)

	// 0 => left edge, 0.5 => centered, 1 => right edge
	pan := (ClampOffset(spec.OffsetX) + 1) / 2

	switch spec.Mode {
	case VerticalFill:
		return coverFilter(w, h, 1, pan)
	case VerticalZoom:
		return coverFilter(w, h, ClampZoom(spec.Zoom), pan)
	case VerticalFit:
		return fmt.Sprintf(
			"split=2[zbg][zfg];"+
				"[zbg]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=20:2[zblur];"+
				"[zfg]scale=%d:%d:force_original_aspect_ratio=decrease[zfit];"+
				"[zblur][zfit]overlay=(W-w)/2:(H-h)/2,setsar=1",
			w, h, w, h, w, h)
	default:
		return ""
	}
}

func coverFilter(w, h int, zoom, pan float64) string {
	sw, sh := even(int(math.Round(float64(w)*zoom))), even(int(math.Round(float64(h)*zoom)))
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d:(iw-%d)*%s:(ih-%d)/2,setsar=1",
		sw, sh, w, h, w, num(pan), h)
}

// SubtitleFilter burns a subtitle file. ASS files go through the ass filter
// so their own styles apply; SRT files take an optional force_style.
func SubtitleFilter(path, forceStyle string) string {
	escaped := EscapeFilterPath(path)
	if strings.EqualFold(extOf(path), ".ass") {
		return fmt.Sprintf("ass='%s'", escaped)
	}
	if forceStyle == "" {
		return fmt.Sprintf("subtitles='%s'", escaped)
	}
	return fmt.Sprintf("subtitles='%s':force_style='%s'", escaped, forceStyle)
}

// EscapeFilterPath makes a file path safe inside a quoted filter option
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.ReplaceAll(path, ":", `\:`)
	path = strings.ReplaceAll(path, "'", `'\''`)
	return path
}

// Chain joins the non-empty filters into one -vf expression
func Chain(filters ...string) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ",")
}

func extOf(path string) string {
	i := strings.LastIndexAny(path, `./\`)
	if i < 0 || path[i] != '.' {
		return ""
	}
	return path[i:]
}

func even(n int) int {
	return n - n%2
}

// num formats a float without trailing zeros, never in exponent form
func num(f float64) string {
	s := fmt.Sprintf("%.4f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
