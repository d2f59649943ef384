package ffmpeg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// frame=  123 fps= 45 q=28.0 size=  1024kB time=00:01:23.45 bitrate= 123.4kbits/s
	videoProgressPattern = regexp.MustCompile(`frame=\s*\S+\s+fps=\s*\S+\s+q=\s*\S+\s+(?:size|Lsize)=\s*\S+\s+time=\s*(\S+)\s+`)
	// size=  233422kB time=01:45:50.68 bitrate= 301.1kbits/s
	audioProgressPattern = regexp.MustCompile(`(?:size|Lsize)=\s*\S+\s+time=\s*(\S+)\s+`)
	// -progress key=value output
	outTimePattern = regexp.MustCompile(`^out_time_(us|ms)=(-?\d+)$`)
	timePattern    = regexp.MustCompile(`^(-?)(\d+):(\d+):(\d+)(?:\.(\d+))?$`)
)

// ProgressParser parses FFmpeg stderr output for progress information
type ProgressParser struct {
	duration float64
}

// NewProgressParser creates a new progress parser
func NewProgressParser(duration float64) *ProgressParser {
	return &ProgressParser{
		duration: duration,
	}
}

// ParseLine parses a single line of FFmpeg output and returns progress (0-1)
// Returns -1 if line doesn't contain progress information
func (p *ProgressParser) ParseLine(line string) float64 {
	if p.duration <= 0 {
		return -1
	}

	currentTime, ok := p.currentTime(strings.TrimSpace(line))
	if !ok || currentTime < 0 {
		return -1
	}

	progress := currentTime / p.duration
	if progress > 1 {
		progress = 1
	}
	return progress
}

func (p *ProgressParser) currentTime(line string) (float64, bool) {
	if m := outTimePattern.FindStringSubmatch(line); m != nil {
		// ffmpeg reports microseconds under both keys
		v, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(v) / 1e6, true
	}

	matches := videoProgressPattern.FindStringSubmatch(line)
	if len(matches) == 0 {
		matches = audioProgressPattern.FindStringSubmatch(line)
	}
	if len(matches) < 2 {
		return 0, false
	}

	t, err := parseFFmpegTime(matches[1])
	if err != nil {
		return 0, false
	}
	return t, true
}

// parseFFmpegTime parses FFmpeg time format (HH:MM:SS.MS) to seconds
func parseFFmpegTime(timeStr string) (float64, error) {
	matches := timePattern.FindStringSubmatch(timeStr)
	if len(matches) != 6 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hours, _ := strconv.Atoi(matches[2])
	minutes, _ := strconv.Atoi(matches[3])
	seconds, _ := strconv.Atoi(matches[4])

	total := float64(hours*3600 + minutes*60 + seconds)
	if frac := matches[5]; frac != "" {
		f, _ := strconv.ParseFloat("0."+frac, 64)
		total += f
	}

	if matches[1] == "-" {
		total = -total
	}
	return total, nil
}

// FormatSeconds renders seconds as HH:MM:SS.mmm for -ss/-t arguments
func FormatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ParseFFmpegError extracts error message from FFmpeg stderr output
func ParseFFmpegError(stderr string) string {
	lines := strings.Split(stderr, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])

		if strings.Contains(line, "error") ||
			strings.Contains(line, "Error") ||
			strings.Contains(line, "Invalid") ||
			strings.Contains(line, "failed") ||
			strings.Contains(line, "No such") {
			return line
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}

	return "Unknown FFmpeg error"
}
