package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/auth"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"go.uber.org/zap"
)

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip_parte_1.mp4")
	if err := os.WriteFile(path, []byte(strings.Repeat("v", size)), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type staticHost struct {
	url   string
	err   error
	calls atomic.Int32
}

func (h *staticHost) Host(ctx context.Context, path string) (string, error) {
	h.calls.Add(1)
	return h.url, h.err
}

func TestRetry(t *testing.T) {
	var n int
	err := retry(context.Background(), 3, 0, func() error {
		n++
		if n < 3 {
			return fmt.Errorf("attempt %d", n)
		}
		return nil
	})
	if err != nil || n != 3 {
		t.Errorf("retry() = %v after %d calls", err, n)
	}

	n = 0
	err = retry(context.Background(), 2, 0, func() error {
		n++
		return fmt.Errorf("attempt %d", n)
	})
	if err == nil || err.Error() != "attempt 2" || n != 2 {
		t.Errorf("retry() = %v after %d calls", err, n)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int
	err := retry(ctx, 5, time.Hour, func() error {
		n++
		return fmt.Errorf("fail")
	})
	if err != context.Canceled || n != 1 {
		t.Errorf("retry() = %v after %d calls", err, n)
	}
}

func TestChunkPlan(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		name      string
		size      int64
		chunk     int64
		wantChunk int64
		wantCount int64
	}{
		{"smaller than chunk", 3 * mb, 10 * mb, 3 * mb, 1},
		{"exactly one chunk", 10 * mb, 10 * mb, 10 * mb, 1},
		{"remainder joins last chunk", 25 * mb, 10 * mb, 10 * mb, 2},
		{"even split", 30 * mb, 10 * mb, 10 * mb, 3},
		{"no chunk size", 7, 0, 7, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, count := ChunkPlan(tt.size, tt.chunk)
			if chunk != tt.wantChunk || count != tt.wantCount {
				t.Errorf("ChunkPlan(%d, %d) = (%d, %d), want (%d, %d)",
					tt.size, tt.chunk, chunk, count, tt.wantChunk, tt.wantCount)
			}
		})
	}
}

func TestPublicHostTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/clip_parte_1.mp4" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 64 {
			t.Errorf("uploaded %d bytes", len(body))
		}
		fmt.Fprintln(w, "https://transfer.example/abc/clip_parte_1.mp4")
	}))
	defer srv.Close()

	h := NewPublicHost(srv.URL, "", 3, zap.NewNop())
	h.retryDelay = 0

	link, err := h.Host(context.Background(), writeVideo(t, 64))
	if err != nil {
		t.Fatalf("Host() error = %v", err)
	}
	if link != "https://transfer.example/abc/clip_parte_1.mp4" {
		t.Errorf("Host() = %q", link)
	}
}

func TestPublicHostFallsBackToFileIO(t *testing.T) {
	var transferCalls atomic.Int32
	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transferCalls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer transfer.Close()

	fileio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing form file: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		f.Close()
		if hdr.Filename != "clip_parte_1.mp4" {
			t.Errorf("unexpected filename %q", hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"link":"https://file.example/xyz"}`)
	}))
	defer fileio.Close()

	h := NewPublicHost(transfer.URL, fileio.URL, 2, zap.NewNop())
	h.retryDelay = 0

	link, err := h.Host(context.Background(), writeVideo(t, 10))
	if err != nil {
		t.Fatalf("Host() error = %v", err)
	}
	if link != "https://file.example/xyz" {
		t.Errorf("Host() = %q", link)
	}
	if transferCalls.Load() != 2 {
		t.Errorf("transfer.sh tried %d times, want 2", transferCalls.Load())
	}
}

func TestPublicHostAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewPublicHost(srv.URL, srv.URL, 1, zap.NewNop())
	h.retryDelay = 0
	if _, err := h.Host(context.Background(), writeVideo(t, 10)); err == nil {
		t.Fatal("expected error when every host fails")
	}
}

func TestWhatsAppPublish(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer relay-token" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg-1"}`)
	}))
	defer srv.Close()

	host := &staticHost{url: "https://host.example/v.mp4"}
	w := NewWhatsApp(srv.URL, "relay-token", "+5491100000000", host, 3, zap.NewNop())
	w.retryDelay = 0

	up, err := w.Publish(context.Background(), Item{
		Path:    writeVideo(t, 10),
		Part:    2,
		Caption: models.Caption{Title: "Parte 2", Description: "Mirá esto"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.ID != "msg-1" || up.URL != "https://host.example/v.mp4" || up.Part != 2 {
		t.Errorf("unexpected upload %+v", up)
	}
	if got["to"] != "+5491100000000" || got["media_url"] != "https://host.example/v.mp4" || got["message"] != "Mirá esto" {
		t.Errorf("unexpected relay payload %v", got)
	}
}

func TestWhatsAppRetriesRelay(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWhatsApp(srv.URL, "", "123", &staticHost{url: "https://h/v"}, 3, zap.NewNop())
	w.retryDelay = 0

	if _, err := w.Publish(context.Background(), Item{Path: "x.mp4"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("relay called %d times, want 3", calls.Load())
	}
}

func TestWhatsAppNotConfigured(t *testing.T) {
	host := &staticHost{url: "u"}
	w := NewWhatsApp("", "", "", host, 1, zap.NewNop())
	up, err := w.Publish(context.Background(), Item{Path: "x.mp4"})
	if err == nil || up.Error == "" {
		t.Fatal("expected configuration error")
	}
	if host.calls.Load() != 0 {
		t.Error("media must not be hosted when the relay is missing")
	}
}

func TestTikTokUploadFlow(t *testing.T) {
	const size = 25
	var (
		mu      sync.Mutex
		ranges  []string
		polls   int
		refresh int
	)

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v2/oauth/token/":
			refresh++
			r.ParseForm()
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
				t.Errorf("unexpected refresh form %v", r.Form)
			}
			fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":86400,"open_id":"oid"}`)
		case "/v2/post/publish/video/init/":
			if r.Header.Get("Authorization") != "Bearer new-access" {
				t.Errorf("init used %q", r.Header.Get("Authorization"))
			}
			var body struct {
				SourceInfo struct {
					Source     string `json:"source"`
					VideoSize  int64  `json:"video_size"`
					ChunkSize  int64  `json:"chunk_size"`
					ChunkCount int64  `json:"total_chunk_count"`
				} `json:"source_info"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.SourceInfo.Source != "FILE_UPLOAD" || body.SourceInfo.VideoSize != size ||
				body.SourceInfo.ChunkSize != 10 || body.SourceInfo.ChunkCount != 2 {
				t.Errorf("unexpected source info %+v", body.SourceInfo)
			}
			fmt.Fprintf(w, `{"data":{"publish_id":"pub-1","upload_url":"%s/upload"},"error":{"code":"ok"}}`, srv.URL)
		case "/upload":
			b, _ := io.ReadAll(r.Body)
			ranges = append(ranges, fmt.Sprintf("%s:%d", r.Header.Get("Content-Range"), len(b)))
			w.WriteHeader(http.StatusCreated)
		case "/v2/post/publish/status/fetch/":
			polls++
			status := "PROCESSING_UPLOAD"
			if polls > 1 {
				status = "PUBLISH_COMPLETE"
			}
			fmt.Fprintf(w, `{"data":{"status":"%s"},"error":{"code":"ok"}}`, status)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "tiktok_tokens.json")
	if err := auth.NewStore(tokenFile).Save(auth.Token{AccessToken: "old", RefreshToken: "old-refresh", ExpiresAt: 1}); err != nil {
		t.Fatal(err)
	}

	tk := NewTikTok(TikTokOptions{
		ClientKey:    "ck",
		ClientSecret: "cs",
		TokenFile:    tokenFile,
		BaseURL:      srv.URL,
		ChunkSize:    10,
		PollInterval: time.Millisecond,
	}, zap.NewNop())

	var last float64
	up, err := tk.Publish(context.Background(), Item{
		Path:       writeVideo(t, size),
		Part:       1,
		Caption:    models.Caption{Title: "t", Description: "d"},
		OnProgress: func(f float64) { last = f },
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.ID != "pub-1" {
		t.Errorf("unexpected publish id %q", up.ID)
	}
	if refresh != 1 {
		t.Errorf("token refreshed %d times", refresh)
	}
	want := []string{"bytes 0-9/25:10", "bytes 10-24/25:15"}
	if strings.Join(ranges, ",") != strings.Join(want, ",") {
		t.Errorf("chunks = %v, want %v", ranges, want)
	}
	if last != 1 {
		t.Errorf("final progress %v", last)
	}

	saved, err := auth.NewStore(tokenFile).Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "new-access" || saved.RefreshToken != "new-refresh" || saved.ExpiresAt == 0 {
		t.Errorf("refreshed token not saved: %+v", saved)
	}
}

func TestTikTokPublishFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/video/init/":
			fmt.Fprintf(w, `{"data":{"publish_id":"p","upload_url":"http://%s/up"},"error":{"code":"ok"}}`, r.Host)
		case "/up":
			w.WriteHeader(http.StatusCreated)
		case "/v2/post/publish/status/fetch/":
			fmt.Fprint(w, `{"data":{"status":"FAILED","fail_reason":"video_pull_failed"},"error":{"code":"ok"}}`)
		}
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "t.json")
	auth.NewStore(tokenFile).Save(auth.Token{AccessToken: "valid", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	tk := NewTikTok(TikTokOptions{TokenFile: tokenFile, BaseURL: srv.URL, PollInterval: time.Millisecond}, zap.NewNop())
	_, err := tk.Publish(context.Background(), Item{Path: writeVideo(t, 5)})
	if err == nil || !strings.Contains(err.Error(), "video_pull_failed") {
		t.Errorf("expected fail reason in error, got %v", err)
	}
}

func TestTikTokInitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{},"error":{"code":"access_token_invalid","message":"bad token"}}`)
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "t.json")
	auth.NewStore(tokenFile).Save(auth.Token{AccessToken: "valid", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	tk := NewTikTok(TikTokOptions{TokenFile: tokenFile, BaseURL: srv.URL}, zap.NewNop())
	_, err := tk.Publish(context.Background(), Item{Path: writeVideo(t, 5)})
	if err == nil || !strings.Contains(err.Error(), "access_token_invalid") {
		t.Errorf("expected api error, got %v", err)
	}
}

func TestInstagramUploadReel(t *testing.T) {
	var (
		mu       sync.Mutex
		polls    int
		created  map[string]string
		creation string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/ig-user/media":
			r.ParseForm()
			created = map[string]string{
				"media_type": r.Form.Get("media_type"),
				"video_url":  r.Form.Get("video_url"),
				"caption":    r.Form.Get("caption"),
				"token":      r.Form.Get("access_token"),
			}
			fmt.Fprint(w, `{"id":"container-1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/container-1":
			if r.URL.Query().Get("fields") != "status_code" {
				t.Errorf("unexpected fields %q", r.URL.Query().Get("fields"))
			}
			polls++
			if polls < 2 {
				fmt.Fprint(w, `{"status_code":"IN_PROGRESS"}`)
				return
			}
			fmt.Fprint(w, `{"status_code":"FINISHED"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/ig-user/media_publish":
			r.ParseForm()
			creation = r.Form.Get("creation_id")
			fmt.Fprint(w, `{"id":"media-9"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfgFile := filepath.Join(t.TempDir(), "instagram_config.json")
	if err := storage.WriteJSON(cfgFile, map[string]string{"access_token": "file-token", "ig_user_id": "ig-user"}); err != nil {
		t.Fatal(err)
	}

	host := &staticHost{url: "https://host.example/reel.mp4"}
	g := NewInstagram(InstagramOptions{
		ConfigFile:   cfgFile,
		AccessToken:  "cfg-token",
		GraphURL:     srv.URL,
		PollInterval: time.Millisecond,
	}, host, zap.NewNop())

	up, err := g.Publish(context.Background(), Item{
		Path:    writeVideo(t, 10),
		Caption: models.Caption{Title: "Reel", Description: "Hola", Hashtags: []string{"#clip"}},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.ID != "media-9" || creation != "container-1" {
		t.Errorf("unexpected result %+v creation=%s", up, creation)
	}
	if created["media_type"] != "REELS" || created["video_url"] != "https://host.example/reel.mp4" ||
		created["caption"] != "Hola\n\n#clip" || created["token"] != "file-token" {
		t.Errorf("unexpected container request %v", created)
	}
}

func TestInstagramContainerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id":"c"}`)
			return
		}
		fmt.Fprint(w, `{"status_code":"ERROR"}`)
	}))
	defer srv.Close()

	g := NewInstagram(InstagramOptions{AccessToken: "t", UserID: "u", GraphURL: srv.URL, PollInterval: time.Millisecond}, nil, zap.NewNop())
	if _, err := g.UploadReel(context.Background(), "https://v", "cap"); err == nil || !strings.Contains(err.Error(), "ERROR") {
		t.Errorf("expected container error, got %v", err)
	}
}

func TestInstagramNeedsCredentials(t *testing.T) {
	g := NewInstagram(InstagramOptions{}, nil, zap.NewNop())
	if _, err := g.UploadReel(context.Background(), "https://v", ""); err == nil {
		t.Error("expected missing credentials error")
	}
}

func TestYouTubeUpload(t *testing.T) {
	var (
		mu        sync.Mutex
		inserted  bool
		thumbnail bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/videos"):
			inserted = true
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"title":"Parte 1"`) {
				t.Errorf("metadata missing from upload body")
			}
			fmt.Fprint(w, `{"id":"yt-123","snippet":{"title":"Parte 1"}}`)
		case strings.HasSuffix(r.URL.Path, "/thumbnails/set"):
			thumbnail = r.URL.Query().Get("videoId") == "yt-123"
			fmt.Fprint(w, `{"items":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	thumb := filepath.Join(dir, "thumb.jpg")
	os.WriteFile(thumb, []byte("jpg"), 0644)

	yt := NewYouTube(YouTubeOptions{Endpoint: srv.URL + "/", HTTPClient: srv.Client()}, zap.NewNop())
	up, err := yt.Publish(context.Background(), Item{
		Path:      writeVideo(t, 32),
		Thumbnail: thumb,
		Part:      1,
		Caption:   models.Caption{Title: "Parte 1", Description: "desc", Hashtags: []string{"#a"}},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.ID != "yt-123" || up.URL != "https://youtu.be/yt-123" {
		t.Errorf("unexpected upload %+v", up)
	}
	if !inserted || !thumbnail {
		t.Errorf("inserted=%v thumbnail=%v", inserted, thumbnail)
	}
}

func TestYouTubeUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	}))
	defer srv.Close()

	yt := NewYouTube(YouTubeOptions{Endpoint: srv.URL + "/", HTTPClient: srv.Client()}, zap.NewNop())
	up, err := yt.Publish(context.Background(), Item{Path: writeVideo(t, 8), Caption: models.Caption{Title: "x"}})
	if err == nil || up.Error == "" {
		t.Fatal("expected upload error")
	}
}

func TestDriveUpload(t *testing.T) {
	var (
		mu     sync.Mutex
		shared bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/drv-1/permissions"):
			var p struct {
				Type string `json:"type"`
				Role string `json:"role"`
			}
			json.NewDecoder(r.Body).Decode(&p)
			shared = p.Type == "anyone" && p.Role == "reader"
			fmt.Fprint(w, `{"id":"perm"}`)
		case strings.HasSuffix(r.URL.Path, "/files"):
			fmt.Fprint(w, `{"id":"drv-1","webViewLink":"https://drive.example/view/drv-1"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDrive(DriveOptions{Endpoint: srv.URL + "/", HTTPClient: srv.Client(), FolderID: "folder"}, zap.NewNop())

	up, err := d.Publish(context.Background(), Item{Path: writeVideo(t, 16), Part: 3})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.ID != "drv-1" || up.URL != "https://drive.example/view/drv-1" || up.Part != 3 {
		t.Errorf("unexpected upload %+v", up)
	}
	if !shared {
		t.Error("file was not shared publicly")
	}

	link, err := d.Host(context.Background(), writeVideo(t, 4))
	if err != nil {
		t.Fatalf("Host() error = %v", err)
	}
	if link != "https://drive.google.com/uc?export=download&id=drv-1" {
		t.Errorf("Host() = %q", link)
	}
}
