package captions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
)

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse(`{"title":"Un gran momento","description":"Lo mejor del directo","hashtags":["humor","#Humor","en vivo"]}`)))
	}))
	defer srv.Close()

	g := NewGenerator("sk-test", srv.URL+"/v1", "", 3, zap.NewNop())
	g.retryDelay = 0

	c, err := g.Generate(context.Background(), models.CaptionRequest{Platform: PlatformYouTube, Title: "Directo", Part: 2})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if c.Title != "Un gran momento" {
		t.Errorf("unexpected title %q", c.Title)
	}
	if strings.Join(c.Hashtags, " ") != "#humor #envivo" {
		t.Errorf("unexpected hashtags %v", c.Hashtags)
	}
}

func TestGenerateFallsBackAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse("not json at all")))
	}))
	defer srv.Close()

	g := NewGenerator("sk-test", srv.URL+"/v1", "", 2, zap.NewNop())
	g.retryDelay = 0

	c, err := g.Generate(context.Background(), models.CaptionRequest{Platform: PlatformTikTok, Title: "Podcast", Part: 3})
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if c.Title != "Podcast - Parte 3" {
		t.Errorf("unexpected fallback title %q", c.Title)
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	g := NewGenerator("", "", "", 3, zap.NewNop())
	c, err := g.Generate(context.Background(), models.CaptionRequest{Title: "Clip"})
	if err == nil {
		t.Errorf("expected error without api key")
	}
	if c.Title != "Clip" {
		t.Errorf("unexpected fallback %+v", c)
	}
}

func TestParseCaption(t *testing.T) {
	c, err := ParseCaption("```json\n{\"title\":\"T\",\"description\":\"D\",\"hashtags\":[\"a\"]}\n```")
	if err != nil {
		t.Fatalf("ParseCaption() error = %v", err)
	}
	if c.Title != "T" || c.Description != "D" || len(c.Hashtags) != 1 {
		t.Errorf("unexpected caption %+v", c)
	}

	if _, err := ParseCaption(`{"hashtags":["a"]}`); err == nil {
		t.Errorf("expected error for empty caption")
	}
}

func TestFitYouTube(t *testing.T) {
	c := Fit(models.Caption{
		Title:       strings.Repeat("á", 150),
		Description: strings.Repeat("b", 6000),
	}, PlatformYouTube)

	if n := utf8.RuneCountInString(c.Title); n != YouTubeTitleMax {
		t.Errorf("title has %d runes, want %d", n, YouTubeTitleMax)
	}
	if n := utf8.RuneCountInString(c.Description); n != YouTubeDescriptionMax {
		t.Errorf("description has %d runes, want %d", n, YouTubeDescriptionMax)
	}
}

func TestFitSharedCaptionBudget(t *testing.T) {
	for _, platform := range []string{PlatformTikTok, PlatformInstagram} {
		t.Run(platform, func(t *testing.T) {
			c := Fit(models.Caption{
				Title:       "t",
				Description: strings.Repeat("x", 3000),
				Hashtags:    []string{"uno", "dos"},
			}, platform)

			if n := utf8.RuneCountInString(Text(c)); n > CaptionMax {
				t.Errorf("caption text has %d runes, limit %d", n, CaptionMax)
			}
			if len(c.Hashtags) != 2 {
				t.Errorf("hashtags dropped: %v", c.Hashtags)
			}
		})
	}
}

func TestNormalizeHashtags(t *testing.T) {
	got := NormalizeHashtags([]string{"#Fútbol", "fútbol", " en vivo ", "##", "!!!", "gol_2024"})
	want := "#Fútbol #envivo #gol_2024"
	if strings.Join(got, " ") != want {
		t.Errorf("NormalizeHashtags() = %v, want %s", got, want)
	}

	many := make([]string, 30)
	for i := range many {
		many[i] = strings.Repeat("a", i+1)
	}
	if n := len(NormalizeHashtags(many)); n != MaxHashtags {
		t.Errorf("expected %d hashtags, got %d", MaxHashtags, n)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(models.CaptionRequest{Platform: PlatformInstagram, Title: "Show", Part: 4, Transcript: "hola mundo"})
	for _, want := range []string{"Platform: instagram", "Source video title: Show", "part 4", "2200", "hola mundo"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestText(t *testing.T) {
	if got := Text(models.Caption{Title: "T", Hashtags: []string{"#a", "#b"}}); got != "T\n\n#a #b" {
		t.Errorf("Text() = %q", got)
	}
	if got := Text(models.Caption{Title: "T", Description: "D"}); got != "D" {
		t.Errorf("Text() = %q", got)
	}
}
