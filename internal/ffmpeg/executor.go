package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Encoding holds the re-encode settings shared by every transform
type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
	Threads      int
}

// DefaultEncoding returns H.264/AAC settings suitable for social uploads
func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	}
}

// Args renders the encoder flags
func (enc Encoding) Args() []string {
	args := []string{
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
	}
	if enc.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(enc.Threads))
	}
	return args
}

// Executor manages FFmpeg process execution
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	encoding    Encoding
	logger      *zap.Logger
	mu          sync.Mutex
	processes   map[int]*exec.Cmd
}

// NewExecutor creates a new FFmpeg executor
func NewExecutor(ffmpegPath, ffprobePath string, logger *zap.Logger) *Executor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		encoding:    DefaultEncoding(),
		logger:      logger,
		processes:   make(map[int]*exec.Cmd),
	}
}

// SetEncoding overrides the encoder settings; zero fields keep the defaults
func (e *Executor) SetEncoding(enc Encoding) {
	def := DefaultEncoding()
	if enc.VideoCodec == "" {
		enc.VideoCodec = def.VideoCodec
	}
	if enc.Preset == "" {
		enc.Preset = def.Preset
	}
	if enc.CRF <= 0 {
		enc.CRF = def.CRF
	}
	if enc.AudioCodec == "" {
		enc.AudioCodec = def.AudioCodec
	}
	if enc.AudioBitrate == "" {
		enc.AudioBitrate = def.AudioBitrate
	}
	e.encoding = enc
}

// Encoding returns the active encoder settings
func (e *Executor) Encoding() Encoding {
	return e.encoding
}

// ProgressCallback is called with progress updates (0.0 to 1.0)
type ProgressCallback func(progress float64)

// ExecuteOptions contains options for FFmpeg execution
type ExecuteOptions struct {
	Args       []string
	Duration   float64
	OnProgress ProgressCallback
	StdinData  io.Reader
}

// Execute runs FFmpeg with the given arguments
func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, opts.Args...)

	e.logger.Info("Executing FFmpeg",
		zap.String("command", cmd.String()),
	)

	if opts.StdinData != nil {
		cmd.Stdin = opts.StdinData
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	var stdoutBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	pid := cmd.Process.Pid
	e.track(pid, cmd)
	defer e.untrack(pid)

	var stderrBuf bytes.Buffer
	progressDone := make(chan struct{})

	go func() {
		defer close(progressDone)
		e.parseProgress(stderrPipe, &stderrBuf, opts.Duration, opts.OnProgress)
	}()

	err = cmd.Wait()
	<-progressDone

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}

		errorMsg := ParseFFmpegError(stderrBuf.String())
		e.logger.Error("FFmpeg execution failed",
			zap.Error(err),
			zap.String("stderr", errorMsg),
		)

		return fmt.Errorf("ffmpeg failed: %s", errorMsg)
	}

	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}

	e.logger.Debug("FFmpeg execution completed successfully")
	return nil
}

// parseProgress reads stderr line by line and calls progress callback
func (e *Executor) parseProgress(stderr io.Reader, stderrBuf *bytes.Buffer, duration float64, onProgress ProgressCallback) {
	parser := NewProgressParser(duration)
	scanner := bufio.NewScanner(io.TeeReader(stderr, stderrBuf))
	scanner.Split(scanLinesOrCR)

	for scanner.Scan() {
		if onProgress == nil {
			continue
		}
		if progress := parser.ParseLine(scanner.Text()); progress >= 0 {
			onProgress(progress)
		}
	}

	if err := scanner.Err(); err != nil {
		e.logger.Warn("Error reading FFmpeg stderr", zap.Error(err))
	}
}

// scanLinesOrCR splits on \n and on the bare \r ffmpeg uses to redraw its status line
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (e *Executor) track(pid int, cmd *exec.Cmd) {
	e.mu.Lock()
	e.processes[pid] = cmd
	e.mu.Unlock()
}

func (e *Executor) untrack(pid int) {
	e.mu.Lock()
	delete(e.processes, pid)
	e.mu.Unlock()
}

// Running returns the number of ffmpeg/ffprobe processes started by this executor
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.processes)
}

// KillAll kills every process started by this executor and returns how many were signalled
func (e *Executor) KillAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	killed := 0
	for pid, cmd := range e.processes {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			e.logger.Warn("Failed to kill ffmpeg process", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		killed++
	}
	return killed
}

// GetFFmpegPath returns the FFmpeg binary path
func (e *Executor) GetFFmpegPath() string {
	return e.ffmpegPath
}

// GetFFprobePath returns the FFprobe binary path
func (e *Executor) GetFFprobePath() string {
	return e.ffprobePath
}
