package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/auth"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
)

// TikTok chunk size bounds from the content posting API
const (
	TikTokMinChunk     = 5 * 1024 * 1024
	TikTokMaxChunk     = 64 * 1024 * 1024
	TikTokDefaultChunk = 10 * 1024 * 1024
)

// TikTokOptions configures the TikTok uploader
type TikTokOptions struct {
	ClientKey    string
	ClientSecret string
	TokenFile    string
	BaseURL      string
	PrivacyLevel string
	ChunkSize    int64
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// TikTok publishes videos with the direct post flow
type TikTok struct {
	opts   TikTokOptions
	store  *auth.Store
	client *http.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewTikTok creates a TikTok uploader
func NewTikTok(opts TikTokOptions, logger *zap.Logger) *TikTok {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://open.tiktokapis.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PrivacyLevel == "" {
		opts.PrivacyLevel = "SELF_ONLY"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = TikTokDefaultChunk
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	return &TikTok{
		opts:   opts,
		store:  auth.NewStore(opts.TokenFile),
		client: &http.Client{Timeout: 10 * time.Minute},
		now:    time.Now,
		logger: logger,
	}
}

// Name implements Target
func (t *TikTok) Name() string { return captions.PlatformTikTok }

// ChunkPlan returns the chunk size and count TikTok expects for a file.
// Files up to one chunk go in a single request; otherwise the last chunk
// absorbs the remainder.
func ChunkPlan(size, chunk int64) (int64, int64) {
	if chunk <= 0 || size <= chunk {
		return size, 1
	}
	return chunk, size / chunk
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e tiktokError) err() error {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	return fmt.Errorf("tiktok %s: %s", e.Code, e.Message)
}

// Publish implements Target
func (t *TikTok) Publish(ctx context.Context, item Item) (models.Upload, error) {
	up := models.Upload{Platform: t.Name(), Part: item.Part}

	id, err := t.Upload(ctx, item)
	if err != nil {
		up.Error = err.Error()
		return up, err
	}
	up.ID = id
	return up, nil
}

// Upload runs init, chunked transfer and status polling. It returns the
// publish id.
func (t *TikTok) Upload(ctx context.Context, item Item) (string, error) {
	tok, err := t.Token(ctx)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(item.Path)
	if err != nil {
		return "", fmt.Errorf("failed to stat video: %w", err)
	}
	size := info.Size()
	chunk, count := ChunkPlan(size, t.opts.ChunkSize)

	publishID, uploadURL, err := t.initUpload(ctx, tok, item.Caption, size, chunk, count)
	if err != nil {
		return "", err
	}

	t.logger.Info("Uploading to TikTok",
		zap.String("file", item.Path),
		zap.String("publish_id", publishID),
		zap.Int64("chunks", count),
	)

	if err := t.putChunks(ctx, uploadURL, item.Path, size, chunk, count, item.OnProgress); err != nil {
		return "", err
	}

	if err := t.waitPublished(ctx, tok, publishID); err != nil {
		return "", err
	}

	t.logger.Info("TikTok upload completed", zap.String("publish_id", publishID))
	return publishID, nil
}

// Token returns a usable access token, refreshing and saving it when it is
// about to expire.
func (t *TikTok) Token(ctx context.Context) (auth.Token, error) {
	tok, err := t.store.Load()
	if err != nil {
		return auth.Token{}, err
	}
	now := t.now()
	if auth.TokenIsValid(tok, now, auth.DefaultSkew) {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return auth.Token{}, fmt.Errorf("tiktok token expired and no refresh token stored")
	}

	form := url.Values{
		"client_key":    {t.opts.ClientKey},
		"client_secret": {t.opts.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.BaseURL+"/v2/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return auth.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return auth.Token{}, fmt.Errorf("tiktok token refresh failed: %w", err)
	}

	var out struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		OpenID           string `json:"open_id"`
		Scope            string `json:"scope"`
		TokenType        string `json:"token_type"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return auth.Token{}, fmt.Errorf("tiktok token refresh failed: %w", err)
	}
	if out.Error != "" || out.AccessToken == "" {
		return auth.Token{}, fmt.Errorf("tiktok token refresh failed: %s %s", out.Error, out.ErrorDescription)
	}

	fresh := auth.Token{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		TokenType:    out.TokenType,
		OpenID:       out.OpenID,
		Scope:        out.Scope,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if fresh.OpenID == "" {
		fresh.OpenID = tok.OpenID
	}
	fresh.ExpiresIn(now, out.ExpiresIn)

	if err := t.store.Save(fresh); err != nil {
		return auth.Token{}, fmt.Errorf("failed to save tiktok token: %w", err)
	}
	t.logger.Info("TikTok token refreshed", zap.Int64("expires_at", fresh.ExpiresAt))
	return fresh, nil
}

func (t *TikTok) initUpload(ctx context.Context, tok auth.Token, c models.Caption, size, chunk, count int64) (string, string, error) {
	payload := map[string]any{
		"post_info": map[string]any{
			"title":           captions.Text(c),
			"privacy_level":   t.opts.PrivacyLevel,
			"disable_comment": false,
			"disable_duet":    false,
			"disable_stitch":  false,
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        size,
			"chunk_size":        chunk,
			"total_chunk_count": count,
		},
	}

	var out struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	if err := t.postJSON(ctx, tok, "/v2/post/publish/video/init/", payload, &out); err != nil {
		return "", "", fmt.Errorf("tiktok init failed: %w", err)
	}
	if err := out.Error.err(); err != nil {
		return "", "", fmt.Errorf("tiktok init failed: %w", err)
	}
	if out.Data.UploadURL == "" {
		return "", "", fmt.Errorf("tiktok init returned no upload url")
	}
	return out.Data.PublishID, out.Data.UploadURL, nil
}

func (t *TikTok) putChunks(ctx context.Context, uploadURL, path string, size, chunk, count int64, onProgress func(float64)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	for i := int64(0); i < count; i++ {
		start := i * chunk
		end := start + chunk - 1
		if i == count-1 {
			end = size - 1
		}
		n := end - start + 1

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, io.NewSectionReader(f, start, n))
		if err != nil {
			return err
		}
		req.ContentLength = n
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("tiktok chunk %d failed: %w", i+1, err)
		}
		if err := decodeResponse(resp, nil); err != nil {
			return fmt.Errorf("tiktok chunk %d failed: %w", i+1, err)
		}

		if onProgress != nil {
			onProgress(float64(end+1) / float64(size))
		}
	}
	return nil
}

func (t *TikTok) waitPublished(ctx context.Context, tok auth.Token, publishID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.PollTimeout)
	defer cancel()

	for {
		var out struct {
			Data struct {
				Status     string `json:"status"`
				FailReason string `json:"fail_reason"`
			} `json:"data"`
			Error tiktokError `json:"error"`
		}
		err := t.postJSON(ctx, tok, "/v2/post/publish/status/fetch/", map[string]string{"publish_id": publishID}, &out)
		if err != nil {
			return fmt.Errorf("tiktok status failed: %w", err)
		}
		if err := out.Error.err(); err != nil {
			return fmt.Errorf("tiktok status failed: %w", err)
		}

		switch out.Data.Status {
		case "PUBLISH_COMPLETE", "SEND_TO_USER_INBOX":
			return nil
		case "FAILED":
			return fmt.Errorf("tiktok publish failed: %s", out.Data.FailReason)
		}

		t.logger.Debug("TikTok publish pending", zap.String("status", out.Data.Status))
		if err := sleep(ctx, t.opts.PollInterval); err != nil {
			return fmt.Errorf("tiktok publish not confirmed: %w", err)
		}
	}
}

func (t *TikTok) postJSON(ctx context.Context, tok auth.Token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}
