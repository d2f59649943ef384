package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"go.uber.org/zap"
)

// InstagramOptions configures the Reels uploader. Values in ConfigFile
// override AccessToken and UserID.
type InstagramOptions struct {
	ConfigFile   string
	AccessToken  string
	UserID       string
	GraphURL     string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type instagramCredentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"ig_user_id"`
}

// Instagram publishes Reels through the Graph API. The video must be reachable
// by URL, so local files go through a MediaHost first.
type Instagram struct {
	opts   InstagramOptions
	host   MediaHost
	client *http.Client
	logger *zap.Logger
}

// NewInstagram creates an Instagram uploader
func NewInstagram(opts InstagramOptions, host MediaHost, logger *zap.Logger) *Instagram {
	if opts.GraphURL == "" {
		opts.GraphURL = "https://graph.facebook.com/v19.0"
	}
	opts.GraphURL = strings.TrimRight(opts.GraphURL, "/")
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	return &Instagram{
		opts:   opts,
		host:   host,
		client: &http.Client{Timeout: time.Minute},
		logger: logger,
	}
}

// Name implements Target
func (g *Instagram) Name() string { return captions.PlatformInstagram }

func (g *Instagram) credentials() (instagramCredentials, error) {
	creds := instagramCredentials{AccessToken: g.opts.AccessToken, UserID: g.opts.UserID}
	if g.opts.ConfigFile != "" {
		var file instagramCredentials
		err := storage.ReadJSON(g.opts.ConfigFile, &file)
		switch {
		case err == nil:
			if file.AccessToken != "" {
				creds.AccessToken = file.AccessToken
			}
			if file.UserID != "" {
				creds.UserID = file.UserID
			}
		case !errors.Is(err, os.ErrNotExist):
			return creds, fmt.Errorf("failed to read instagram config: %w", err)
		}
	}
	if creds.AccessToken == "" || creds.UserID == "" {
		return creds, fmt.Errorf("instagram access token or user id not configured")
	}
	return creds, nil
}

// Publish implements Target
func (g *Instagram) Publish(ctx context.Context, item Item) (models.Upload, error) {
	up := models.Upload{Platform: g.Name(), Part: item.Part}

	videoURL := item.Path
	if !strings.HasPrefix(videoURL, "http://") && !strings.HasPrefix(videoURL, "https://") {
		if g.host == nil {
			err := fmt.Errorf("instagram needs a public video url and no media host is configured")
			up.Error = err.Error()
			return up, err
		}
		hosted, err := g.host.Host(ctx, item.Path)
		if err != nil {
			up.Error = err.Error()
			return up, err
		}
		videoURL = hosted
	}
	if item.OnProgress != nil {
		item.OnProgress(0.3)
	}

	id, err := g.UploadReel(ctx, videoURL, captions.Text(item.Caption))
	if err != nil {
		up.Error = err.Error()
		return up, err
	}
	if item.OnProgress != nil {
		item.OnProgress(1)
	}
	up.ID = id
	return up, nil
}

// UploadReel creates a REELS container, waits for it to finish processing
// and publishes it. It returns the media id.
func (g *Instagram) UploadReel(ctx context.Context, videoURL, caption string) (string, error) {
	creds, err := g.credentials()
	if err != nil {
		return "", err
	}

	var container struct {
		ID string `json:"id"`
	}
	err = g.post(ctx, creds.UserID+"/media", url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"caption":      {caption},
		"access_token": {creds.AccessToken},
	}, &container)
	if err != nil {
		return "", fmt.Errorf("instagram container failed: %w", err)
	}
	if container.ID == "" {
		return "", fmt.Errorf("instagram container failed: no id returned")
	}

	g.logger.Info("Instagram container created", zap.String("container", container.ID))

	if err := g.waitFinished(ctx, container.ID, creds.AccessToken); err != nil {
		return "", err
	}

	var published struct {
		ID string `json:"id"`
	}
	err = g.post(ctx, creds.UserID+"/media_publish", url.Values{
		"creation_id":  {container.ID},
		"access_token": {creds.AccessToken},
	}, &published)
	if err != nil {
		return "", fmt.Errorf("instagram publish failed: %w", err)
	}

	g.logger.Info("Instagram reel published", zap.String("media", published.ID))
	return published.ID, nil
}

func (g *Instagram) waitFinished(ctx context.Context, containerID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.PollTimeout)
	defer cancel()

	q := url.Values{"fields": {"status_code"}, "access_token": {token}}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.opts.GraphURL+"/"+containerID+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("instagram status failed: %w", err)
		}
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := decodeResponse(resp, &status); err != nil {
			return fmt.Errorf("instagram status failed: %w", err)
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("instagram container %s: %s", containerID, status.StatusCode)
		}

		if err := sleep(ctx, g.opts.PollInterval); err != nil {
			return fmt.Errorf("instagram container not ready: %w", err)
		}
	}
}

func (g *Instagram) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.GraphURL+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}
