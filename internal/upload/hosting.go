package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PublicHost uploads files to transfer.sh, falling back to file.io
type PublicHost struct {
	transferURL string
	fileIOURL   string
	retries     int
	retryDelay  time.Duration
	client      *http.Client
	logger      *zap.Logger
}

// NewPublicHost creates a host. Empty URLs disable that service.
func NewPublicHost(transferURL, fileIOURL string, retries int, logger *zap.Logger) *PublicHost {
	if retries <= 0 {
		retries = 1
	}
	return &PublicHost{
		transferURL: strings.TrimRight(transferURL, "/"),
		fileIOURL:   strings.TrimRight(fileIOURL, "/"),
		retries:     retries,
		retryDelay:  2 * time.Second,
		client:      &http.Client{Timeout: 30 * time.Minute},
		logger:      logger,
	}
}

// Host implements MediaHost
func (h *PublicHost) Host(ctx context.Context, path string) (string, error) {
	var errs []string

	if h.transferURL != "" {
		var link string
		err := retry(ctx, h.retries, h.retryDelay, func() error {
			var err error
			link, err = h.transfer(ctx, path)
			if err != nil {
				h.logger.Warn("transfer.sh upload failed", zap.String("file", path), zap.Error(err))
			}
			return err
		})
		if err == nil {
			return link, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, "transfer.sh: "+err.Error())
	}

	if h.fileIOURL != "" {
		var link string
		err := retry(ctx, h.retries, h.retryDelay, func() error {
			var err error
			link, err = h.fileIO(ctx, path)
			if err != nil {
				h.logger.Warn("file.io upload failed", zap.String("file", path), zap.Error(err))
			}
			return err
		})
		if err == nil {
			return link, nil
		}
		errs = append(errs, "file.io: "+err.Error())
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("no hosting service configured")
	}
	return "", fmt.Errorf("failed to host %s: %s", filepath.Base(path), strings.Join(errs, "; "))
}

func (h *PublicHost) transfer(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	target := h.transferURL + "/" + url.PathEscape(filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return "", err
	}
	req.ContentLength = info.Size()

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	link := strings.TrimSpace(string(body))
	if !strings.HasPrefix(link, "http") {
		return "", fmt.Errorf("unexpected response %q", link)
	}
	return link, nil
}

func (h *PublicHost) fileIO(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.fileIOURL+"/", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}

	var out struct {
		Success bool   `json:"success"`
		Link    string `json:"link"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if !out.Success || out.Link == "" {
		return "", fmt.Errorf("file.io rejected the upload")
	}
	return out.Link, nil
}
