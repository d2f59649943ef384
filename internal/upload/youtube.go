package upload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/auth"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeOptions configures the YouTube uploader
type YouTubeOptions struct {
	ClientSecretsFile string
	TokenFile         string
	PrivacyStatus     string
	CategoryID        string
	// ChunkSize enables resumable uploads; 0 sends the file in one request
	ChunkSize int
	// Endpoint and HTTPClient override the API location and credentials
	Endpoint   string
	HTTPClient *http.Client
}

// YouTube uploads videos through the Data API v3
type YouTube struct {
	opts   YouTubeOptions
	logger *zap.Logger
}

// NewYouTube creates a YouTube uploader
func NewYouTube(opts YouTubeOptions, logger *zap.Logger) *YouTube {
	if opts.PrivacyStatus == "" {
		opts.PrivacyStatus = "private"
	}
	if opts.CategoryID == "" {
		opts.CategoryID = "22"
	}
	return &YouTube{opts: opts, logger: logger}
}

// Name implements Target
func (y *YouTube) Name() string { return captions.PlatformYouTube }

func (y *YouTube) service(ctx context.Context) (*youtube.Service, error) {
	client := y.opts.HTTPClient
	if client == nil {
		var err error
		client, err = auth.GoogleClient(ctx, y.opts.ClientSecretsFile, y.opts.TokenFile,
			youtube.YoutubeUploadScope, youtube.YoutubeScope)
		if err != nil {
			return nil, fmt.Errorf("youtube auth: %w", err)
		}
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if y.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.opts.Endpoint))
	}
	return youtube.NewService(ctx, opts...)
}

// Publish implements Target
func (y *YouTube) Publish(ctx context.Context, item Item) (models.Upload, error) {
	up := models.Upload{Platform: y.Name(), Part: item.Part}

	id, err := y.Upload(ctx, item)
	if err != nil {
		up.Error = err.Error()
		return up, err
	}
	up.ID = id
	up.URL = "https://youtu.be/" + id
	return up, nil
}

// Upload inserts the video and sets its thumbnail when one is given
func (y *YouTube) Upload(ctx context.Context, item Item) (string, error) {
	svc, err := y.service(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(item.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       item.Caption.Title,
			Description: youTubeDescription(item.Caption),
			Tags:        tagsOf(item.Caption.Hashtags),
			CategoryId:  y.opts.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.opts.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ChunkSize(y.opts.ChunkSize)).
		ProgressUpdater(func(current, total int64) {
			if total <= 0 {
				total = size
			}
			if item.OnProgress != nil && total > 0 {
				item.OnProgress(float64(current) / float64(total))
			}
		})

	y.logger.Info("Uploading to YouTube",
		zap.String("file", item.Path),
		zap.String("title", item.Caption.Title),
	)

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload failed: %w", err)
	}

	if item.Thumbnail != "" {
		if err := y.setThumbnail(ctx, svc, resp.Id, item.Thumbnail); err != nil {
			// the video is already up; a missing thumbnail is not fatal
			y.logger.Warn("Failed to set thumbnail", zap.String("video", resp.Id), zap.Error(err))
		}
	}

	y.logger.Info("YouTube upload completed", zap.String("id", resp.Id))
	return resp.Id, nil
}

func (y *YouTube) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

func youTubeDescription(c models.Caption) string {
	if len(c.Hashtags) == 0 {
		return c.Description
	}
	return c.Description + "\n\n" + strings.Join(c.Hashtags, " ")
}

// tagsOf turns hashtags into YouTube tags, which carry no #
func tagsOf(hashtags []string) []string {
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		if t := strings.TrimPrefix(h, "#"); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
