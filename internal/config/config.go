package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	YtDlp     YtDlpConfig     `mapstructure:"ytdlp"`
	Whisper   WhisperConfig   `mapstructure:"whisper"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Drive     DriveConfig     `mapstructure:"drive"`
	TikTok    TikTokConfig    `mapstructure:"tiktok"`
	Instagram InstagramConfig `mapstructure:"instagram"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Hosting   HostingConfig   `mapstructure:"hosting"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Production  bool     `mapstructure:"production"`
	CorsOrigins []string `mapstructure:"cors_origins"`
}

type StorageConfig struct {
	BasePath       string `mapstructure:"base_path"`
	OutputDir      string `mapstructure:"output_dir"`
	CredentialsDir string `mapstructure:"credentials_dir"`
	KeepTemp       bool   `mapstructure:"keep_temp"`
}

type FFmpegConfig struct {
	Path         string `mapstructure:"path"`
	ProbePath    string `mapstructure:"probe_path"`
	Threads      int    `mapstructure:"threads"`
	Preset       string `mapstructure:"preset"`
	CRF          int    `mapstructure:"crf"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
}

type YtDlpConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type WhisperConfig struct {
	// Provider is "openai" or "cli".
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	CLIPath  string `mapstructure:"cli_path"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type WorkflowConfig struct {
	PartMinutes float64 `mapstructure:"part_minutes"`
	StepRetries int     `mapstructure:"step_retries"`
	Width       int     `mapstructure:"width"`
	Height      int     `mapstructure:"height"`

	// KillByName makes stop also kill every ffmpeg, ffprobe and yt-dlp on
	// the machine, not only the processes this app started
	KillByName bool `mapstructure:"kill_by_name"`
}

type YouTubeConfig struct {
	ClientSecretsFile string `mapstructure:"client_secrets_file"`
	TokenFile         string `mapstructure:"token_file"`
	PrivacyStatus     string `mapstructure:"privacy_status"`
	CategoryID        string `mapstructure:"category_id"`
}

type DriveConfig struct {
	// CredentialsFile is a service-account key; when empty the YouTube OAuth
	// client secrets and a drive token are used instead.
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type TikTokConfig struct {
	ClientKey    string `mapstructure:"client_key"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenFile    string `mapstructure:"token_file"`
	BaseURL      string `mapstructure:"base_url"`
	PrivacyLevel string `mapstructure:"privacy_level"`
	ChunkSize    int64  `mapstructure:"chunk_size"`
}

type InstagramConfig struct {
	ConfigFile  string `mapstructure:"config_file"`
	AccessToken string `mapstructure:"access_token"`
	UserID      string `mapstructure:"user_id"`
	GraphURL    string `mapstructure:"graph_url"`
}

type WhatsAppConfig struct {
	RelayURL string `mapstructure:"relay_url"`
	Token    string `mapstructure:"token"`
	To       string `mapstructure:"to"`
}

type HostingConfig struct {
	TransferURL string `mapstructure:"transfer_url"`
	FileIOURL   string `mapstructure:"fileio_url"`
	Retries     int    `mapstructure:"retries"`
}

// Load reads .env, the optional config file and ZEMPER_* environment variables.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/zemper/")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".zemper"))
	}

	v.SetEnvPrefix("ZEMPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the provider SDKs.
	_ = v.BindEnv("openai.api_key", "ZEMPER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("tiktok.client_key", "ZEMPER_TIKTOK_CLIENT_KEY", "TIKTOK_CLIENT_KEY")
	_ = v.BindEnv("tiktok.client_secret", "ZEMPER_TIKTOK_CLIENT_SECRET", "TIKTOK_CLIENT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Storage.BasePath = os.ExpandEnv(c.Storage.BasePath)
	if c.Storage.BasePath == "" {
		c.Storage.BasePath = "."
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(c.Storage.BasePath, "output")
	}
	if c.Storage.CredentialsDir == "" {
		c.Storage.CredentialsDir = filepath.Join(c.Storage.BasePath, "credentials")
	}

	creds := c.Storage.CredentialsDir
	c.YouTube.ClientSecretsFile = inDir(creds, c.YouTube.ClientSecretsFile)
	c.YouTube.TokenFile = inDir(creds, c.YouTube.TokenFile)
	c.Drive.CredentialsFile = inDir(creds, c.Drive.CredentialsFile)
	c.Drive.TokenFile = inDir(creds, c.Drive.TokenFile)
	c.TikTok.TokenFile = inDir(creds, c.TikTok.TokenFile)
	c.Instagram.ConfigFile = inDir(creds, c.Instagram.ConfigFile)

	if c.Workflow.PartMinutes <= 0 {
		c.Workflow.PartMinutes = 5
	}
	if c.Workflow.StepRetries < 0 {
		c.Workflow.StepRetries = 0
	}
}

// inDir resolves bare file names against the credentials directory.
func inDir(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(dir, name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.production", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("storage.base_path", ".")
	v.SetDefault("storage.keep_temp", false)

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")
	v.SetDefault("ffmpeg.threads", 0) // auto
	v.SetDefault("ffmpeg.preset", "veryfast")
	v.SetDefault("ffmpeg.crf", 23)
	v.SetDefault("ffmpeg.audio_bitrate", "192k")

	v.SetDefault("ytdlp.path", "yt-dlp")
	v.SetDefault("ytdlp.format", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best")

	v.SetDefault("whisper.provider", "openai")
	v.SetDefault("whisper.model", "whisper-1")
	v.SetDefault("whisper.language", "es")
	v.SetDefault("whisper.cli_path", "whisper")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_retries", 3)

	v.SetDefault("workflow.part_minutes", 5)
	v.SetDefault("workflow.step_retries", 1)
	v.SetDefault("workflow.width", 1080)
	v.SetDefault("workflow.height", 1920)
	v.SetDefault("workflow.kill_by_name", true)

	v.SetDefault("youtube.client_secrets_file", "client_secret.json")
	v.SetDefault("youtube.token_file", "youtube_token.json")
	v.SetDefault("youtube.privacy_status", "private")
	v.SetDefault("youtube.category_id", "22")

	v.SetDefault("drive.token_file", "drive_token.json")

	v.SetDefault("tiktok.token_file", "tiktok_tokens.json")
	v.SetDefault("tiktok.base_url", "https://open.tiktokapis.com")
	v.SetDefault("tiktok.privacy_level", "SELF_ONLY")
	v.SetDefault("tiktok.chunk_size", 10*1024*1024)

	v.SetDefault("instagram.config_file", "instagram_config.json")
	v.SetDefault("instagram.graph_url", "https://graph.facebook.com/v19.0")

	v.SetDefault("hosting.transfer_url", "https://transfer.sh")
	v.SetDefault("hosting.fileio_url", "https://file.io")
	v.SetDefault("hosting.retries", 3)
}
