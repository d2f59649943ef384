package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.Services) {
	t.Helper()
	base := t.TempDir()
	store := storage.NewManager(base, "", "", zap.NewNop())
	if err := store.Initialize(); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.FFmpeg.Path = "ffmpeg"
	cfg.FFmpeg.ProbePath = "ffprobe"
	cfg.YtDlp.Path = "yt-dlp"
	cfg.Workflow.PartMinutes = 5
	cfg.Hosting.Retries = 1

	svc, err := services.NewServices(store, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Jobs.Wait)

	return NewRouter(svc, cfg, zap.NewNop()), svc
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestSystemInfo(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/api/system/info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var info struct {
		Busy     bool     `json:"busy"`
		Stopping bool     `json:"stopping"`
		Targets  []string `json:"targets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Busy || info.Stopping {
		t.Errorf("busy or stopping with no job: %+v", info)
	}
	if len(info.Targets) != 5 {
		t.Errorf("targets = %v", info.Targets)
	}
}

func TestStartValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"missing source", "/api/jobs/process", map[string]any{}},
		{"bad vertical", "/api/jobs/process", map[string]any{"source": "a.mp4", "vertical": "sideways"}},
		{"end before start", "/api/jobs/process", map[string]any{"source": "a.mp4", "start": 10, "end": 5}},
		{"bad visualizer", "/api/jobs/visualize", map[string]any{"source": "a.mp3", "mode": "bars"}},
		{"no platforms", "/api/jobs/publish", map[string]any{"name": "video", "platforms": []string{}}},
		{"not a url", "/api/jobs/download", map[string]any{"url": "not a url"}},
		{"join without name", "/api/jobs/join", map[string]any{}},
		{"burn non-srt", "/api/jobs/burn", map[string]any{"video": "a.mp4", "subtitle": "a.ass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestBusyReturnsConflict(t *testing.T) {
	router, svc := newTestRouter(t)
	release := make(chan struct{})

	job, err := svc.Jobs.Start(models.JobKindProcess, "a.mp4", func(ctx context.Context, run *services.Run) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	w := do(router, http.MethodPost, "/api/jobs/download", map[string]any{"url": "https://example.com/v.mp4"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	w = do(router, http.MethodGet, "/api/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = do(router, http.MethodPost, "/api/system/stop", nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("stop status = %d", w.Code)
	}
	close(release)
	svc.Jobs.Wait()

	w = do(router, http.MethodPost, "/api/system/stop", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stopped":false`) {
		t.Errorf("idle stop = %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteJob(t *testing.T) {
	router, svc := newTestRouter(t)
	release := make(chan struct{})

	job, err := svc.Jobs.Start(models.JobKindProcess, "a.mp4", func(ctx context.Context, run *services.Run) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if w := do(router, http.MethodDelete, "/api/jobs/"+job.ID, nil); w.Code != http.StatusConflict {
		t.Errorf("delete running job = %d, want 409", w.Code)
	}
	close(release)
	svc.Jobs.Wait()

	if w := do(router, http.MethodDelete, "/api/jobs/"+job.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete finished job = %d, want 204", w.Code)
	}
	if w := do(router, http.MethodGet, "/api/jobs/"+job.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted job still served: %d", w.Code)
	}
	if svc.Storage.FileExists(svc.Storage.GetJobPath(job.ID)) {
		t.Errorf("job record left on disk")
	}
	if w := do(router, http.MethodDelete, "/api/jobs/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete unknown job = %d, want 404", w.Code)
	}
}

func TestJoinWithoutPartsFails(t *testing.T) {
	router, svc := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/jobs/join", map[string]any{"name": "missing"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var job models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	svc.Jobs.Wait()

	got, err := svc.Jobs.Get(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.JobKindJoin || got.Status != models.JobStatusFailed || !strings.Contains(got.Error, "no finished parts") {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestUnknownJob(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/ws"} {
		if w := do(router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, w.Code)
		}
	}
}

func TestJobStream(t *testing.T) {
	router, svc := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	proceed := make(chan struct{})
	job, err := svc.Jobs.Start(models.JobKindProcess, "a.mp4", func(ctx context.Context, run *services.Run) error {
		<-proceed
		run.Log("part 1 done")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + job.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		close(proceed)
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		close(proceed)
		t.Fatal(err)
	}
	if first["type"] != "snapshot" {
		t.Errorf("first message = %v", first)
	}
	close(proceed)

	var sawLog, sawDone bool
	for {
		var ev services.Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Type == "log" && strings.HasSuffix(ev.Line, "part 1 done") {
			sawLog = true
		}
		if ev.Type == "status" && ev.Status == models.JobStatusCompleted {
			sawDone = true
		}
	}
	if !sawLog || !sawDone {
		t.Errorf("sawLog=%v sawDone=%v", sawLog, sawDone)
	}
}

func TestMergeSubtitles(t *testing.T) {
	router, svc := newTestRouter(t)
	dir := svc.Storage.OutputDir()

	one := "1\n00:00:01,000 --> 00:00:02,000\nhola\n\n"
	two := "1\n00:00:00,500 --> 00:00:01,500\nmundo\n\n"
	os.WriteFile(filepath.Join(dir, "a.srt"), []byte(one), 0644)
	os.WriteFile(filepath.Join(dir, "b.srt"), []byte(two), 0644)

	w := do(router, http.MethodPost, "/api/subtitles/merge", map[string]any{
		"parts": []map[string]any{
			{"path": "a.srt", "offset": 0},
			{"path": "b.srt", "offset": 300},
		},
		"output": "all.srt",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "all.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "00:05:00,500 --> 00:05:01,500") {
		t.Errorf("second part not shifted:\n%s", data)
	}

	w = do(router, http.MethodPost, "/api/subtitles/merge", map[string]any{
		"parts":  []map[string]any{{"path": "a.srt", "offset": -1}},
		"output": "bad.srt",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative offset status = %d", w.Code)
	}
}

func TestCaptionFallback(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/captions", map[string]any{
		"platform": "tiktok",
		"title":    "Mi video",
		"part":     2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Caption models.Caption `json:"caption"`
		Warning string         `json:"warning"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Caption.Title == "" || resp.Warning == "" {
		t.Errorf("expected fallback caption with warning, got %+v", resp)
	}
}

func TestOutputs(t *testing.T) {
	router, svc := newTestRouter(t)

	final := filepath.Join(svc.Storage.VideoDir("clip"), storage.FinalDir)
	os.MkdirAll(final, 0755)
	os.WriteFile(filepath.Join(final, "clip_parte_01.mp4"), []byte("video"), 0644)

	w := do(router, http.MethodGet, "/api/outputs/clip", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "clip_parte_01.mp4") {
		t.Errorf("listing = %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/outputs/clip/final/clip_parte_01.mp4", nil)
	if w.Code != http.StatusOK || w.Body.String() != "video" {
		t.Errorf("file = %d %q", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/outputs/clip/final/missing.mp4", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d", w.Code)
	}

	w = do(router, http.MethodGet, "/api/outputs/clip/../../jobs/x.json", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("traversal = %d, want 400", w.Code)
	}

	w = do(router, http.MethodGet, "/api/outputs/none", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown output = %d", w.Code)
	}
}
