package models

import (
	"time"
)

// Job represents a long-running user action executed in the background
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Source      string     `json:"source,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	Logs        []string   `json:"logs,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Uploads     []Upload   `json:"uploads,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type JobKind string

const (
	JobKindProcess   JobKind = "process"
	JobKindVisualize JobKind = "visualize"
	JobKindPublish   JobKind = "publish"
	JobKindDownload  JobKind = "download"
	JobKindJoin      JobKind = "join"
	JobKindBurn      JobKind = "burn"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsFinished reports whether the job reached a terminal status
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Result describes what a processing run produced on disk
type Result struct {
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Dir         string       `json:"dir"`
	Source      string       `json:"source"`
	Duration    float64      `json:"duration"`
	Parts       []PartResult `json:"parts"`
	CombinedSRT string       `json:"combined_srt,omitempty"`
}

// PartResult is one produced part ("corte") of the source video
type PartResult struct {
	Index        int     `json:"index"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	Path         string  `json:"path"`
	SubtitlePath string  `json:"subtitle_path,omitempty"`
	Size         int64   `json:"size"`
}

// Inset holds crop fractions per edge (0..0.45)
type Inset struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// SubtitleStyle is the user-facing subtitle look, rewritten into ASS styles
type SubtitleStyle struct {
	Font         string `json:"font,omitempty"`
	Size         int    `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`         // #RRGGBB
	OutlineColor string `json:"outline_color,omitempty"` // #RRGGBB
	Outline      int    `json:"outline,omitempty"`
	Bold         bool   `json:"bold,omitempty"`
	Position     string `json:"position,omitempty"` // bottom, middle, top
	MarginV      int    `json:"margin_v,omitempty"`
	MaxLineChars int    `json:"max_line_chars,omitempty"`
}

// ProcessRequest drives the part pipeline
type ProcessRequest struct {
	Source      string         `json:"source" binding:"required"` // local path or URL
	PartMinutes float64        `json:"part_minutes,omitempty"`
	Start       float64        `json:"start,omitempty"`
	End         float64        `json:"end,omitempty"`
	Subtitles   bool           `json:"subtitles,omitempty"`
	Burn        bool           `json:"burn,omitempty"`
	Language    string         `json:"language,omitempty"`
	Style       *SubtitleStyle `json:"style,omitempty"`
	Crop        *Inset         `json:"crop,omitempty"`
	Vertical    string         `json:"vertical,omitempty"` // "", fill, fit, zoom
	Zoom        float64        `json:"zoom,omitempty"`
	OffsetX     float64        `json:"offset_x,omitempty"`
	Background  string         `json:"background,omitempty"` // image path
}

// VisualizeRequest renders an audio visualizer video per part
type VisualizeRequest struct {
	Source      string  `json:"source" binding:"required"`
	Background  string  `json:"background,omitempty"`
	Color       string  `json:"color,omitempty"`
	Mode        string  `json:"mode,omitempty"` // waves, freqs
	PartMinutes float64 `json:"part_minutes,omitempty"`
}

// PublishRequest uploads the parts of a processed video
type PublishRequest struct {
	Name      string   `json:"name" binding:"required"` // workspace name under output/
	Platforms []string `json:"platforms" binding:"required"`
	Parts     []int    `json:"parts,omitempty"` // 1-based; empty means all
	Language  string   `json:"language,omitempty"`
	Notify    bool     `json:"notify,omitempty"`
}

// DownloadRequest represents a yt-dlp download request
type DownloadRequest struct {
	URL    string `json:"url" binding:"required"`
	Format string `json:"format,omitempty"`
}

// JoinRequest concatenates the finished parts of a processed video
type JoinRequest struct {
	Name string `json:"name" binding:"required"`
}

// BurnRequest renders an SRT file onto a video
type BurnRequest struct {
	Video    string         `json:"video" binding:"required"`
	Subtitle string         `json:"subtitle" binding:"required"` // .srt
	Output   string         `json:"output,omitempty"`            // defaults to <video>_subs.mp4
	Style    *SubtitleStyle `json:"style,omitempty"`
}

// MergeSubtitlesRequest combines per-part SRT files into one
type MergeSubtitlesRequest struct {
	Parts  []SubtitlePart `json:"parts" binding:"required"`
	Output string         `json:"output" binding:"required"`
}

type SubtitlePart struct {
	Path   string  `json:"path"`
	Offset float64 `json:"offset"` // seconds
}

// CaptionRequest asks for AI-written metadata
type CaptionRequest struct {
	Platform   string `json:"platform"`
	Title      string `json:"title,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Part       int    `json:"part,omitempty"`
	Language   string `json:"language,omitempty"`
}

// Caption is AI-written publishing metadata
type Caption struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

// Upload records one upload attempt
type Upload struct {
	Platform string `json:"platform"`
	Part     int    `json:"part"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VideoInfo is basic metadata about a remote video
type VideoInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author,omitempty"`
	Description string  `json:"description,omitempty"`
	Duration    float64 `json:"duration"`
}
