// Package download acquires source videos from URLs, through yt-dlp for
// hosted platforms or a plain HTTP GET for direct media links.
package download

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"go.uber.org/zap"
)

// DefaultFormat prefers an mp4/m4a pair so the result needs no remux
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// [download]  45.2% of 123.45MiB at 1.23MiB/s ETA 00:12
var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".wmv": true, ".flv": true, ".m4v": true,
	".3gp": true, ".ts": true, ".m2ts": true,
}

// ProgressFunc receives download progress as a percentage (0-100)
type ProgressFunc func(percent float64)

// Downloader fetches videos into a downloads directory
type Downloader struct {
	ytdlpPath  string
	dir        string
	httpClient *http.Client
	yt         *youtube.Client
	logger     *zap.Logger
	mu         sync.Mutex
	processes  map[int]*exec.Cmd
}

// New creates a downloader writing into dir
func New(ytdlpPath, dir string, logger *zap.Logger) *Downloader {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Downloader{
		ytdlpPath: ytdlpPath,
		dir:       dir,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // large files
		},
		yt:        &youtube.Client{},
		logger:    logger,
		processes: make(map[int]*exec.Cmd),
	}
}

// Download fetches rawURL and returns the local file path. A file already
// downloaded from the same URL is reused.
func (d *Downloader) Download(ctx context.Context, rawURL, format string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	name := DownloadName(rawURL)
	if existing := d.findDownloaded(name); existing != "" {
		d.logger.Info("Reusing downloaded file", zap.String("file", existing))
		return existing, nil
	}

	if IsDirectVideoURL(rawURL) {
		return d.downloadDirect(ctx, rawURL, name, onProgress)
	}
	return d.downloadYtdlp(ctx, rawURL, name, format, onProgress)
}

// DownloadName is the file stem a URL downloads to. YouTube links use the
// video id; any other URL gets its path stem plus a short hash of the whole
// URL, so same-named files from different hosts or queries never collide.
func DownloadName(rawURL string) string {
	if id := storage.YouTubeID(rawURL); id != "" {
		return id
	}
	sum := sha1.Sum([]byte(strings.TrimSpace(rawURL)))
	return storage.BaseName(rawURL) + "_" + hex.EncodeToString(sum[:4])
}

func (d *Downloader) findDownloaded(name string) string {
	files, err := filepath.Glob(filepath.Join(d.dir, globEscape(name)+".*"))
	if err != nil {
		return ""
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if !videoExts[ext] {
			continue // .part, .ytdl and friends
		}
		if info, err := os.Stat(f); err == nil && info.Size() > 0 {
			return f
		}
	}
	return ""
}

// downloadDirect downloads a media URL over HTTP
func (d *Downloader) downloadDirect(ctx context.Context, rawURL, name string, onProgress ProgressFunc) (string, error) {
	d.logger.Info("Starting direct HTTP download", zap.String("url", rawURL))

	outputPath := filepath.Join(d.dir, name+ExtensionFromURL(rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", rawURL)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmp := outputPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(out, &progressReader{
		r:          resp.Body,
		total:      resp.ContentLength,
		onProgress: onProgress,
	})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download interrupted: %w", err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return "", fmt.Errorf("failed to finalize download: %w", err)
	}

	d.logger.Info("Direct download completed",
		zap.String("file", outputPath),
		zap.Int64("size", written),
	)
	return outputPath, nil
}

// progressReader reports read progress at most every 500ms. Without a
// known total only the final 100 at EOF is reported.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       time.Time
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.onProgress == nil {
		return n, err
	}
	switch {
	case err == io.EOF:
		p.onProgress(100)
	case p.total > 0 && time.Since(p.last) > 500*time.Millisecond:
		p.onProgress(float64(p.read) / float64(p.total) * 100)
		p.last = time.Now()
	}
	return n, err
}

// downloadYtdlp downloads with yt-dlp for YouTube and similar sites
func (d *Downloader) downloadYtdlp(ctx context.Context, rawURL, name, format string, onProgress ProgressFunc) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	template := filepath.Join(d.dir, name+".%(ext)s")

	args := []string{
		"--newline",
		"--no-playlist",
		"--progress",
		"--merge-output-format", "mp4",
		"-f", format,
		"-o", template,
		rawURL,
	}

	cmd := exec.CommandContext(ctx, d.ytdlpPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	d.logger.Info("Executing yt-dlp", zap.String("command", cmd.String()))

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}
	pid := cmd.Process.Pid
	d.track(pid, cmd)
	defer d.untrack(pid)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if p, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(p)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp interrupted: %w", ctx.Err())
		}
		return "", fmt.Errorf("yt-dlp failed: %s", lastLine(stderr.String(), err))
	}

	file := d.findDownloaded(name)
	if file == "" {
		return "", fmt.Errorf("downloaded file not found for %s", name)
	}

	d.logger.Info("Download completed", zap.String("file", file))
	return file, nil
}

// Info returns metadata about a remote video. YouTube links are resolved
// through the YouTube client with yt-dlp as fallback.
func (d *Downloader) Info(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	if storage.YouTubeID(rawURL) != "" {
		v, err := d.yt.GetVideoContext(ctx, rawURL)
		if err == nil {
			return &models.VideoInfo{
				ID:          v.ID,
				Title:       v.Title,
				Author:      v.Author,
				Description: v.Description,
				Duration:    v.Duration.Seconds(),
			}, nil
		}
		d.logger.Warn("YouTube lookup failed, falling back to yt-dlp", zap.Error(err))
	}
	return d.infoYtdlp(ctx, rawURL)
}

func (d *Downloader) infoYtdlp(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.ytdlpPath, "--dump-json", "--no-playlist", rawURL)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to get video info: %s", lastLine(string(exitErr.Stderr), err))
		}
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	return ParseInfoJSON(output)
}

// ParseInfoJSON decodes yt-dlp --dump-json output
func ParseInfoJSON(data []byte) (*models.VideoInfo, error) {
	var raw struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Uploader    string  `json:"uploader"`
		Channel     string  `json:"channel"`
		Description string  `json:"description"`
		Duration    float64 `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}

	author := raw.Uploader
	if author == "" {
		author = raw.Channel
	}
	return &models.VideoInfo{
		ID:          raw.ID,
		Title:       raw.Title,
		Author:      author,
		Description: raw.Description,
		Duration:    raw.Duration,
	}, nil
}

// ParseProgressLine extracts the percentage from a yt-dlp progress line
func ParseProgressLine(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// IsURL reports whether s is an http(s) URL rather than a local path
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsDirectVideoURL checks if the URL points directly to a video file
func IsDirectVideoURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if videoExts[strings.ToLower(filepath.Ext(u.Path))] {
		return true
	}
	// some CDNs carry the type in the query instead of the path
	q := strings.ToLower(u.RawQuery)
	return strings.Contains(q, "response-content-type=video") || strings.Contains(q, "content-type=video")
}

// ExtensionFromURL returns the video extension of a URL, .mp4 when unknown
func ExtensionFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".mp4"
	}
	if ext := strings.ToLower(filepath.Ext(u.Path)); videoExts[ext] {
		return ext
	}
	if cd := u.Query().Get("response-content-disposition"); cd != "" {
		if idx := strings.Index(cd, "filename="); idx >= 0 {
			fn := strings.Trim(cd[idx+9:], `"`)
			if ext := strings.ToLower(filepath.Ext(fn)); videoExts[ext] {
				return ext
			}
		}
	}
	return ".mp4"
}

// KillAll kills running yt-dlp processes started by this downloader
func (d *Downloader) KillAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	killed := 0
	for pid, cmd := range d.processes {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			d.logger.Warn("Failed to kill yt-dlp", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		killed++
	}
	return killed
}

func (d *Downloader) track(pid int, cmd *exec.Cmd) {
	d.mu.Lock()
	d.processes[pid] = cmd
	d.mu.Unlock()
}

func (d *Downloader) untrack(pid int) {
	d.mu.Lock()
	delete(d.processes, pid)
	d.mu.Unlock()
}

func lastLine(s string, fallback error) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if l := strings.TrimSpace(lines[len(lines)-1]); l != "" {
		return l
	}
	return fallback.Error()
}

func globEscape(s string) string {
	r := strings.NewReplacer(`[`, `\[`, `]`, `\]`, `*`, `\*`, `?`, `\?`)
	return r.Replace(s)
}
