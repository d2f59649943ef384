// Package captions writes publishing metadata (title, description and
// hashtags) for a clip with an OpenAI chat model.
package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Platforms and their limits
const (
	PlatformYouTube   = "youtube"
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformWhatsApp  = "whatsapp"

	YouTubeTitleMax       = 100
	YouTubeDescriptionMax = 5000
	CaptionMax            = 2200
	MaxHashtags           = 15
)

// maxTranscriptRunes bounds the transcript excerpt sent in the prompt
const maxTranscriptRunes = 6000

// Generator writes captions through the chat completions API
type Generator struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewGenerator creates a caption generator. An empty apiKey yields a
// generator that always returns the fallback caption.
func NewGenerator(apiKey, baseURL, model string, maxRetries int, logger *zap.Logger) *Generator {
	var client *openai.Client
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Generator{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}
}

// Generate asks the model for a caption and fits it to the platform. When
// every attempt fails the fallback caption is returned together with the
// last error.
func (g *Generator) Generate(ctx context.Context, req models.CaptionRequest) (models.Caption, error) {
	if g.client == nil {
		return Fit(Fallback(req), req.Platform), errors.New("openai api key not configured")
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		caption, err := g.complete(ctx, messages)
		if err == nil {
			return Fit(caption, req.Platform), nil
		}
		lastErr = err
		g.logger.Warn("Caption generation failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < g.maxRetries {
			select {
			case <-ctx.Done():
				return Fit(Fallback(req), req.Platform), ctx.Err()
			case <-time.After(g.retryDelay):
			}
		}
	}
	return Fit(Fallback(req), req.Platform), fmt.Errorf("caption generation failed after %d attempts: %w", g.maxRetries, lastErr)
}

func (g *Generator) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (models.Caption, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.Caption{}, err
	}
	if len(resp.Choices) == 0 {
		return models.Caption{}, errors.New("empty completion")
	}
	return ParseCaption(resp.Choices[0].Message.Content)
}

const systemPrompt = `You write social media metadata for short video clips.
Answer only with a JSON object: {"title": string, "description": string, "hashtags": [string]}.
Write in the language of the transcript unless another language is requested.`

// BuildPrompt renders the user message for req
func BuildPrompt(req models.CaptionRequest) string {
	var b strings.Builder
	platform := req.Platform
	if platform == "" {
		platform = PlatformYouTube
	}
	fmt.Fprintf(&b, "Platform: %s\n", platform)
	if req.Title != "" {
		fmt.Fprintf(&b, "Source video title: %s\n", req.Title)
	}
	if req.Part > 0 {
		fmt.Fprintf(&b, "This clip is part %d of the source video.\n", req.Part)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	switch platform {
	case PlatformYouTube:
		fmt.Fprintf(&b, "Title at most %d characters, description at most %d characters.\n", YouTubeTitleMax, YouTubeDescriptionMax)
	default:
		fmt.Fprintf(&b, "Title plus description plus hashtags at most %d characters.\n", CaptionMax)
	}
	if t := strings.TrimSpace(req.Transcript); t != "" {
		fmt.Fprintf(&b, "Transcript:\n%s\n", truncateRunes(t, maxTranscriptRunes))
	}
	return b.String()
}

// ParseCaption decodes the model's JSON answer, tolerating code fences
func ParseCaption(content string) (models.Caption, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var c models.Caption
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &c); err != nil {
		return models.Caption{}, fmt.Errorf("invalid caption json: %w", err)
	}
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Description) == "" {
		return models.Caption{}, errors.New("caption is empty")
	}
	return c, nil
}

// Fallback builds a caption from the request alone
func Fallback(req models.CaptionRequest) models.Caption {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Video"
	}
	if req.Part > 0 {
		title = fmt.Sprintf("%s - Parte %d", title, req.Part)
	}
	return models.Caption{
		Title:       title,
		Description: title,
		Hashtags:    []string{"#shorts"},
	}
}

// Fit enforces the platform limits on c
func Fit(c models.Caption, platform string) models.Caption {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.Hashtags = NormalizeHashtags(c.Hashtags)

	switch platform {
	case PlatformTikTok, PlatformInstagram:
		// one text field: description and hashtags share the budget
		tags := strings.Join(c.Hashtags, " ")
		budget := CaptionMax
		if tags != "" {
			budget -= utf8.RuneCountInString(tags) + 2
		}
		if budget < 0 {
			c.Hashtags = nil
			budget = CaptionMax
		}
		c.Description = truncateRunes(c.Description, budget)
		c.Title = truncateRunes(c.Title, CaptionMax)
	default:
		c.Title = truncateRunes(c.Title, YouTubeTitleMax)
		c.Description = truncateRunes(c.Description, YouTubeDescriptionMax)
	}
	return c
}

// Text renders a caption as the single text field TikTok, Instagram and
// WhatsApp take
func Text(c models.Caption) string {
	body := c.Description
	if body == "" {
		body = c.Title
	}
	if len(c.Hashtags) == 0 {
		return body
	}
	return body + "\n\n" + strings.Join(c.Hashtags, " ")
}

// NormalizeHashtags prefixes #, strips spaces and punctuation and drops
// duplicates (case-insensitive), keeping at most MaxHashtags
func NormalizeHashtags(tags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		var b strings.Builder
		for _, r := range strings.TrimLeft(strings.TrimSpace(tag), "#") {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			continue
		}
		norm := "#" + b.String()
		key := strings.ToLower(norm)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, norm)
		if len(out) == MaxHashtags {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
