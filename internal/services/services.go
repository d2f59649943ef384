package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/control"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/download"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/ffmpeg"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/transcribe"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/upload"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"go.uber.org/zap"
)

// Services holds all application services
type Services struct {
	Config     *config.Config
	Storage    *storage.Manager
	FFmpeg     *ffmpeg.Executor
	Downloader *download.Downloader
	Captions   *captions.Generator
	Pipeline   *workflow.Pipeline
	Flags      *control.Flags
	Stopper    *control.Stopper
	Jobs       *JobService
	Logger     *zap.Logger
}

// NewServices wires every component from the configuration
func NewServices(storageManager *storage.Manager, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	executor := ffmpeg.NewExecutor(cfg.FFmpeg.Path, cfg.FFmpeg.ProbePath, logger)
	executor.SetEncoding(ffmpeg.Encoding{
		Preset:       cfg.FFmpeg.Preset,
		CRF:          cfg.FFmpeg.CRF,
		AudioBitrate: cfg.FFmpeg.AudioBitrate,
		Threads:      cfg.FFmpeg.Threads,
	})

	downloader := download.New(cfg.YtDlp.Path, storageManager.DownloadsDir(), logger)

	transcriber, err := transcribe.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	generator := captions.NewGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.MaxRetries, logger)

	flags := &control.Flags{}
	stopper := control.NewStopper(flags, logger, executor, downloader)
	if !cfg.Workflow.KillByName {
		stopper.SetNames()
	}

	pipeline := workflow.New(workflow.Deps{
		Storage:     storageManager,
		Media:       executor,
		Fetcher:     downloader,
		Transcriber: transcriber,
		Captions:    generator,
		Targets:     Targets(cfg, logger),
		Flags:       flags,
	}, workflow.Options{
		PartMinutes: cfg.Workflow.PartMinutes,
		StepRetries: cfg.Workflow.StepRetries,
		Width:       cfg.Workflow.Width,
		Height:      cfg.Workflow.Height,
		Language:    cfg.Whisper.Language,
		YtDlpFormat: cfg.YtDlp.Format,
		KeepTemp:    cfg.Storage.KeepTemp,
	}, logger)

	return &Services{
		Config:     cfg,
		Storage:    storageManager,
		FFmpeg:     executor,
		Downloader: downloader,
		Captions:   generator,
		Pipeline:   pipeline,
		Flags:      flags,
		Stopper:    stopper,
		Jobs:       NewJobService(storageManager, flags, stopper, logger),
		Logger:     logger,
	}, nil
}

// MediaHost picks Drive when a service account is configured, the public
// file hosts otherwise
func MediaHost(cfg *config.Config, logger *zap.Logger) upload.MediaHost {
	if cfg.Drive.CredentialsFile != "" {
		return upload.NewDrive(driveOptions(cfg), logger)
	}
	return upload.NewPublicHost(cfg.Hosting.TransferURL, cfg.Hosting.FileIOURL, cfg.Hosting.Retries, logger)
}

// Targets builds every upload target from the configuration
func Targets(cfg *config.Config, logger *zap.Logger) []upload.Target {
	host := MediaHost(cfg, logger)
	return []upload.Target{
		upload.NewYouTube(upload.YouTubeOptions{
			ClientSecretsFile: cfg.YouTube.ClientSecretsFile,
			TokenFile:         cfg.YouTube.TokenFile,
			PrivacyStatus:     cfg.YouTube.PrivacyStatus,
			CategoryID:        cfg.YouTube.CategoryID,
			ChunkSize:         8 * 1024 * 1024,
		}, logger),
		upload.NewDrive(driveOptions(cfg), logger),
		upload.NewTikTok(upload.TikTokOptions{
			ClientKey:    cfg.TikTok.ClientKey,
			ClientSecret: cfg.TikTok.ClientSecret,
			TokenFile:    cfg.TikTok.TokenFile,
			BaseURL:      cfg.TikTok.BaseURL,
			PrivacyLevel: cfg.TikTok.PrivacyLevel,
			ChunkSize:    cfg.TikTok.ChunkSize,
		}, logger),
		upload.NewInstagram(upload.InstagramOptions{
			ConfigFile:  cfg.Instagram.ConfigFile,
			AccessToken: cfg.Instagram.AccessToken,
			UserID:      cfg.Instagram.UserID,
			GraphURL:    cfg.Instagram.GraphURL,
		}, host, logger),
		upload.NewWhatsApp(cfg.WhatsApp.RelayURL, cfg.WhatsApp.Token, cfg.WhatsApp.To, host, cfg.Hosting.Retries, logger),
	}
}

func driveOptions(cfg *config.Config) upload.DriveOptions {
	return upload.DriveOptions{
		CredentialsFile:   cfg.Drive.CredentialsFile,
		ClientSecretsFile: cfg.YouTube.ClientSecretsFile,
		TokenFile:         cfg.Drive.TokenFile,
		FolderID:          cfg.Drive.FolderID,
	}
}

// StartProcess runs the part pipeline as a job
func (s *Services) StartProcess(req models.ProcessRequest) (*models.Job, error) {
	return s.Jobs.Start(models.JobKindProcess, req.Source, func(ctx context.Context, run *Run) error {
		res, err := s.Pipeline.Process(ctx, req, run.Events())
		if res != nil {
			run.SetResult(res)
		}
		return err
	})
}

// StartVisualize renders visualizer parts as a job
func (s *Services) StartVisualize(req models.VisualizeRequest) (*models.Job, error) {
	return s.Jobs.Start(models.JobKindVisualize, req.Source, func(ctx context.Context, run *Run) error {
		res, err := s.Pipeline.Visualize(ctx, req, run.Events())
		if res != nil {
			run.SetResult(res)
		}
		return err
	})
}

// StartPublish uploads finished parts as a job
func (s *Services) StartPublish(req models.PublishRequest) (*models.Job, error) {
	return s.Jobs.Start(models.JobKindPublish, req.Name, func(ctx context.Context, run *Run) error {
		ups, err := s.Pipeline.Publish(ctx, req, run.Events())
		run.AddUploads(ups)
		return err
	})
}

// StartJoin concatenates the finished parts of a workspace as a job
func (s *Services) StartJoin(req models.JoinRequest) (*models.Job, error) {
	return s.Jobs.Start(models.JobKindJoin, req.Name, func(ctx context.Context, run *Run) error {
		res, err := s.Pipeline.Join(ctx, req.Name, run.Events())
		if res != nil {
			run.SetResult(res)
		}
		return err
	})
}

// StartBurn renders an SRT file onto a video as a job
func (s *Services) StartBurn(req models.BurnRequest) (*models.Job, error) {
	return s.Jobs.Start(models.JobKindBurn, req.Video, func(ctx context.Context, run *Run) error {
		res, err := s.Pipeline.Burn(ctx, req, run.Events())
		if res != nil {
			run.SetResult(res)
		}
		return err
	})
}

// StartDownload fetches a source without processing it
func (s *Services) StartDownload(req models.DownloadRequest) (*models.Job, error) {
	if !download.IsURL(req.URL) {
		return nil, fmt.Errorf("invalid url: %s", req.URL)
	}
	format := req.Format
	if format == "" {
		format = s.Config.YtDlp.Format
	}
	return s.Jobs.Start(models.JobKindDownload, req.URL, func(ctx context.Context, run *Run) error {
		run.Log("Downloading " + req.URL)
		path, err := s.Downloader.Download(ctx, req.URL, format, func(percent float64) {
			run.Progress(percent / 100)
		})
		if err != nil {
			return err
		}
		size, _ := s.Storage.GetFileSize(path)
		run.Log("Saved " + path)
		run.SetResult(&models.Result{
			Name:   storage.BaseName(req.URL),
			Dir:    filepath.Dir(path),
			Source: req.URL,
			Parts:  []models.PartResult{{Index: 1, Path: path, Size: size}},
		})
		return nil
	})
}
