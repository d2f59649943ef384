// Package upload publishes finished parts to YouTube, Google Drive, TikTok,
// Instagram and WhatsApp, and hosts files publicly for the providers that
// pull media by URL.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
)

// Item is one file to publish
type Item struct {
	Path       string
	Thumbnail  string
	Part       int
	Caption    models.Caption
	OnProgress func(fraction float64)
}

// Target is a platform the publish step can send a part to
type Target interface {
	Name() string
	Publish(ctx context.Context, item Item) (models.Upload, error)
}

// MediaHost makes a local file reachable through a public URL
type MediaHost interface {
	Host(ctx context.Context, path string) (string, error)
}

// retry runs fn up to attempts times, sleeping delay between failures
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			if serr := sleep(ctx, delay); serr != nil {
				return serr
			}
		}
	}
	return err
}

// decodeResponse checks the status and decodes a JSON body into v
func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
