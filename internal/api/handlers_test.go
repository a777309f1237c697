package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/jobstore"
	"slidecast/internal/models"
)

type fakeEnqueuer struct {
	jobIDs []string
	err    error
}

func (f *fakeEnqueuer) EnqueueGenerate(ctx context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.jobIDs = append(f.jobIDs, jobID)
	return nil
}

func (f *fakeEnqueuer) Length(ctx context.Context) (int64, error) {
	return int64(len(f.jobIDs)), f.err
}

type fakeExtractor struct {
	article *models.ArticleContent
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, rawURL string) (*models.ArticleContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.article, nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) AudioDuration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

func testHandler(t *testing.T) (*Handler, *jobstore.Store, *fakeEnqueuer) {
	t.Helper()

	store := jobstore.New()
	enq := &fakeEnqueuer{}
	cfg := &config.Config{
		WorkDir:            t.TempDir(),
		OutputDir:          t.TempDir(),
		VoiceDir:           t.TempDir(),
		Language:           "en",
		MaxSlides:          8,
		WordsPerSlide:      50,
		MinSlideDuration:   3.0,
		MaxSlideDuration:   8.0,
		MinTextLength:      100,
		MaxTextLength:      50000,
		VideoWidth:         1920,
		VideoHeight:        1080,
		VideoFPS:           24,
		TransitionDuration: 0.5,
		MinVoiceSampleSec:  6.0,
	}

	h := NewHandler(store, enq, &fakeExtractor{}, &fakeProber{duration: 10}, cfg)
	return h, store, enq
}

func newServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(h, RouterConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func longText() string {
	return strings.Repeat("Every sentence in this block pads the submission over the minimum. ", 5)
}

func TestCreateVideoWithText(t *testing.T) {
	h, store, enq := testHandler(t)
	srv := newServer(t, h)

	resp := postJSON(t, srv.URL+"/v1/videos", models.GenerateRequest{Text: longText()})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out models.GenerateResponse
	decode(t, resp, &out)

	if out.JobID == "" || out.Status != models.JobStatusQueued {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(enq.jobIDs) != 1 || enq.jobIDs[0] != out.JobID {
		t.Error("job was not enqueued")
	}

	job, err := store.Get(out.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Params.Width != 1920 || job.Config.MaxSlides != 8 {
		t.Error("job did not capture configured defaults")
	}
}

func TestCreateVideoValidation(t *testing.T) {
	h, _, _ := testHandler(t)
	srv := newServer(t, h)

	cases := []struct {
		name     string
		req      models.GenerateRequest
		wantKind string
	}{
		{"too short", models.GenerateRequest{Text: "tiny"}, "content_too_short"},
		{"both text and url", models.GenerateRequest{Text: longText(), URL: "https://example.com"}, ""},
		{"neither", models.GenerateRequest{}, ""},
		{"bad scheme", models.GenerateRequest{URL: "ftp://example.com/a"}, "invalid_url"},
	}

	for _, tc := range cases {
		resp := postJSON(t, srv.URL+"/v1/videos", tc.req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
			resp.Body.Close()
			continue
		}
		var body map[string]string
		decode(t, resp, &body)
		if tc.wantKind != "" && body["error_kind"] != tc.wantKind {
			t.Errorf("%s: error_kind = %q, want %q", tc.name, body["error_kind"], tc.wantKind)
		}
	}
}

func TestCreateVideoOverrides(t *testing.T) {
	h, store, _ := testHandler(t)
	srv := newServer(t, h)

	resp := postJSON(t, srv.URL+"/v1/videos", models.GenerateRequest{
		Text:          longText(),
		Language:      "de",
		MaxSlides:     4,
		WordsPerSlide: 30,
		VoiceID:       "voice-123",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out models.GenerateResponse
	decode(t, resp, &out)

	job, _ := store.Get(out.JobID)
	if job.Config.Language != "de" || job.Config.MaxSlides != 4 || job.Config.WordsPerSlide != 30 {
		t.Errorf("overrides not captured: %+v", job.Config)
	}
	if job.Config.VoiceRef != "voice-123" {
		t.Errorf("voice ref = %q, want voice-123", job.Config.VoiceRef)
	}
}

func TestGetVideoStatus(t *testing.T) {
	h, store, _ := testHandler(t)
	srv := newServer(t, h)

	job := store.Create(models.JobInput{Text: longText()}, models.GenerationConfig{}, models.VideoParams{})

	resp, err := http.Get(srv.URL + "/v1/videos/" + job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out models.StatusResponse
	decode(t, resp, &out)
	if out.JobID != job.ID || out.Status != models.JobStatusQueued {
		t.Errorf("unexpected status payload: %+v", out)
	}

	resp, err = http.Get(srv.URL + "/v1/videos/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status for missing job = %d, want 404", resp.StatusCode)
	}
}

func TestDownloadVideo(t *testing.T) {
	h, store, _ := testHandler(t)
	srv := newServer(t, h)

	job := store.Create(models.JobInput{Text: longText()}, models.GenerationConfig{}, models.VideoParams{})

	// Still queued: 409 with not_ready.
	resp, err := http.Get(srv.URL + "/v1/videos/" + job.ID + "/download")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["error_kind"] != "not_ready" {
		t.Errorf("error_kind = %q, want not_ready", body["error_kind"])
	}

	// Completed with a real file: served as mp4 attachment.
	videoPath := filepath.Join(h.cfg.OutputDir, job.ID+".mp4")
	if err := os.WriteFile(videoPath, []byte("fake video bytes"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Complete(job.ID, models.VideoResult{VideoPath: videoPath, Duration: 12, SizeBytes: 16}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	resp, err = http.Get(srv.URL + "/v1/videos/" + job.ID + "/download")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "video/mp4" {
		t.Errorf("content type = %q, want video/mp4", got)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, job.ID+".mp4") {
		t.Errorf("content disposition = %q, want attachment with job filename", got)
	}
}

func TestCancelVideo(t *testing.T) {
	h, store, _ := testHandler(t)
	srv := newServer(t, h)

	job := store.Create(models.JobInput{Text: longText()}, models.GenerationConfig{}, models.VideoParams{})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/videos/"+job.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	got, _ := store.Get(job.ID)
	if !got.CancelRequested {
		t.Error("cancel flag not set")
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/videos/missing", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status for missing job = %d, want 404", resp.StatusCode)
	}
}

func TestPreviewArticle(t *testing.T) {
	h, _, _ := testHandler(t)
	h.extractor = &fakeExtractor{article: &models.ArticleContent{
		Title: "Headline",
		Text:  "Body text.",
	}}
	srv := newServer(t, h)

	resp := postJSON(t, srv.URL+"/v1/articles/preview", models.ArticlePreviewRequest{URL: "https://example.com/a"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out models.ArticlePreviewResponse
	decode(t, resp, &out)
	if out.Title != "Headline" || out.Text != "Body text." {
		t.Errorf("unexpected preview: %+v", out)
	}

	h.extractor = &fakeExtractor{err: fmt.Errorf("fetch failed")}
	resp = postJSON(t, srv.URL+"/v1/articles/preview", models.ArticlePreviewRequest{URL: "https://example.com/b"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func uploadVoice(t *testing.T, url, filename string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte("fake audio bytes"))
	mw.Close()

	resp, err := http.Post(url+"/v1/voices", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestUploadVoice(t *testing.T) {
	h, _, _ := testHandler(t)
	srv := newServer(t, h)

	resp := uploadVoice(t, srv.URL, "sample.mp3")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var out models.VoiceUploadResponse
	decode(t, resp, &out)
	if out.VoiceID == "" || out.Duration != 10 {
		t.Fatalf("unexpected response: %+v", out)
	}

	if _, err := os.Stat(filepath.Join(h.cfg.VoiceDir, out.VoiceID+".mp3")); err != nil {
		t.Errorf("voice sample not stored: %v", err)
	}

	// Unsupported extension is rejected outright.
	resp = uploadVoice(t, srv.URL, "sample.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status for bad extension = %d, want 400", resp.StatusCode)
	}
}

// TestUploadVoiceTooShort checks samples under the minimum length are
// rejected and not kept on disk.
func TestUploadVoiceTooShort(t *testing.T) {
	h, _, _ := testHandler(t)
	h.prober = &fakeProber{duration: 3}
	srv := newServer(t, h)

	resp := uploadVoice(t, srv.URL, "sample.wav")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	entries, err := os.ReadDir(h.cfg.VoiceDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected sample left %d files on disk", len(entries))
	}
}

// TestHealth checks the health payload reports stored jobs and queue depth.
func TestHealth(t *testing.T) {
	h, store, _ := testHandler(t)
	srv := newServer(t, h)

	store.Create(models.JobInput{Text: longText()}, models.GenerationConfig{}, models.VideoParams{})

	resp := postJSON(t, srv.URL+"/v1/videos", models.GenerateRequest{Text: longText()})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if got := body["jobs"].(float64); got != 2 {
		t.Errorf("jobs = %v, want 2", got)
	}
	if got := body["queue_depth"].(float64); got != 1 {
		t.Errorf("queue_depth = %v, want 1", got)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	h, _, _ := testHandler(t)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{BackendAPIKey: "secret"}))
	defer srv.Close()

	// Health stays public.
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	// Missing key.
	resp, err = http.Get(srv.URL + "/v1/videos/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", resp.StatusCode)
	}

	// Wrong key.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/videos/abc", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", resp.StatusCode)
	}

	// Valid key via bearer token reaches the handler (404: no such job).
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/videos/abc", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("valid key status = %d, want 404", resp.StatusCode)
	}
}
