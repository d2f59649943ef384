package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
)

// WhatsApp sends a hosted part through an HTTP relay
type WhatsApp struct {
	relayURL   string
	token      string
	to         string
	host       MediaHost
	retries    int
	retryDelay time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// NewWhatsApp creates a WhatsApp target
func NewWhatsApp(relayURL, token, to string, host MediaHost, retries int, logger *zap.Logger) *WhatsApp {
	if retries <= 0 {
		retries = 1
	}
	return &WhatsApp{
		relayURL:   relayURL,
		token:      token,
		to:         to,
		host:       host,
		retries:    retries,
		retryDelay: 2 * time.Second,
		client:     &http.Client{Timeout: time.Minute},
		logger:     logger,
	}
}

// Name implements Target
func (w *WhatsApp) Name() string { return captions.PlatformWhatsApp }

// Publish implements Target
func (w *WhatsApp) Publish(ctx context.Context, item Item) (models.Upload, error) {
	up := models.Upload{Platform: w.Name(), Part: item.Part}

	if w.relayURL == "" || w.to == "" {
		err := fmt.Errorf("whatsapp relay or recipient not configured")
		up.Error = err.Error()
		return up, err
	}

	link, err := w.host.Host(ctx, item.Path)
	if err != nil {
		up.Error = err.Error()
		return up, err
	}
	if item.OnProgress != nil {
		item.OnProgress(0.5)
	}

	payload := map[string]string{
		"to":        w.to,
		"message":   captions.Text(item.Caption),
		"media_url": link,
	}

	var out struct {
		ID string `json:"id"`
	}
	err = retry(ctx, w.retries, w.retryDelay, func() error {
		return w.send(ctx, payload, &out)
	})
	if err != nil {
		up.Error = err.Error()
		return up, fmt.Errorf("whatsapp send failed: %w", err)
	}
	if item.OnProgress != nil {
		item.OnProgress(1)
	}

	w.logger.Info("WhatsApp message sent", zap.String("to", w.to), zap.Int("part", item.Part))
	up.ID = out.ID
	up.URL = link
	return up, nil
}

func (w *WhatsApp) send(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.relayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	// relays may answer with an empty body
	if resp.ContentLength == 0 {
		return decodeResponse(resp, nil)
	}
	return decodeResponse(resp, out)
}
