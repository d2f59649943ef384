// Package transcribe turns speech into SRT subtitles.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Providers accepted by New
const (
	ProviderOpenAI = "openai"
	ProviderCLI    = "cli"
)

// ErrNoAPIKey is returned when the OpenAI provider has no key configured
var ErrNoAPIKey = errors.New("openai api key not configured")

// Transcriber produces SRT text for an audio file
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// New selects the transcriber configured under whisper.provider
func New(cfg *config.Config, logger *zap.Logger) (Transcriber, error) {
	switch strings.ToLower(cfg.Whisper.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Whisper.Model, logger), nil
	case ProviderCLI:
		return NewCLI(cfg.Whisper.CLIPath, cfg.Whisper.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Whisper.Provider)
	}
}

// OpenAI transcribes through the OpenAI audio API. The client is created on
// first use and shared afterwards.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	logger  *zap.Logger

	once   sync.Once
	client *openai.Client
}

// NewOpenAI creates an OpenAI transcriber
func NewOpenAI(apiKey, baseURL, model string, logger *zap.Logger) *OpenAI {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		logger:  logger,
	}
}

func (o *OpenAI) getClient() *openai.Client {
	o.once.Do(func() {
		cfg := openai.DefaultConfig(o.apiKey)
		if o.baseURL != "" {
			cfg.BaseURL = o.baseURL
		}
		o.client = openai.NewClientWithConfig(cfg)
	})
	return o.client
}

// Transcribe sends the audio and returns the SRT body
func (o *OpenAI) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if o.apiKey == "" {
		return "", ErrNoAPIKey
	}

	o.logger.Info("Transcribing audio",
		zap.String("file", audioPath),
		zap.String("model", o.model),
		zap.String("language", language),
	)

	resp, err := o.getClient().CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatSRT,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// CLI runs the openai-whisper command line tool
type CLI struct {
	path   string
	model  string
	logger *zap.Logger
}

// NewCLI creates a transcriber around the whisper executable
func NewCLI(path, model string, logger *zap.Logger) *CLI {
	if path == "" {
		path = "whisper"
	}
	if model == "" || model == openai.Whisper1 {
		model = "base"
	}
	return &CLI{path: path, model: model, logger: logger}
}

// Args returns the whisper command line for audioPath writing into outDir
func (c *CLI) Args(audioPath, language, outDir string) []string {
	args := []string{
		audioPath,
		"--model", c.model,
		"--output_format", "srt",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	return args
}

// Transcribe runs whisper in a scratch directory and returns the SRT body
func (c *CLI) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	outDir, err := os.MkdirTemp("", "zemper-whisper-")
	if err != nil {
		return "", fmt.Errorf("failed to create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, c.path, c.Args(audioPath, language, outDir)...)
	c.logger.Info("Executing whisper", zap.String("command", cmd.String()))

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("whisper interrupted: %w", ctx.Err())
		}
		return "", fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(lastLines(string(out), 3)))
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, stem+".srt"))
	if err != nil {
		return "", fmt.Errorf("whisper produced no srt: %w", err)
	}
	return string(data), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
