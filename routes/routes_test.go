package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"m3u8conv/engine"
	"m3u8conv/job"
	"m3u8conv/models"
)

// fakeEngine records each request and completes it immediately
type fakeEngine struct {
	mu       sync.Mutex
	requests []engine.Request
	// onRemux observes the request before the output is written
	onRemux func(req engine.Request)
}

func (f *fakeEngine) Remux(ctx context.Context, req engine.Request) <-chan engine.Event {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.onRemux != nil {
		f.onRemux(req)
	}

	os.WriteFile(req.Output, []byte("mp4"), 0o644)
	ch := make(chan engine.Event, 3)
	ch <- engine.Event{Type: engine.EventStarted}
	ch <- engine.Event{Type: engine.EventProgress, Percent: engine.Percent(50)}
	ch <- engine.Event{Type: engine.EventCompleted}
	close(ch)
	return ch
}

func (f *fakeEngine) last(t *testing.T) engine.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("Expected the engine to be invoked")
	}
	return f.requests[len(f.requests)-1]
}

type testServer struct {
	handler  http.Handler
	registry *job.MemoryRegistry
	worker   *job.Worker
	engine   *fakeEngine
	deps     Deps
}

func newTestServer(t *testing.T, adjust func(*Deps)) *testServer {
	t.Helper()
	dir := t.TempDir()
	reg := job.NewMemoryRegistry()
	eng := &fakeEngine{}
	worker := job.NewWorker(reg, eng, job.WorkerOptions{
		OutputDir:     filepath.Join(dir, "downloads"),
		PublicBaseURL: "http://localhost:4000",
	})

	deps := Deps{
		Registry:       reg,
		Worker:         worker,
		OutputDir:      filepath.Join(dir, "downloads"),
		UploadDir:      filepath.Join(dir, "uploads"),
		MaxUploadBytes: 1 << 20,
		FFmpegCheck:    func() (string, error) { return "/usr/bin/ffmpeg", nil },
	}
	if adjust != nil {
		adjust(&deps)
	}
	return &testServer{
		handler:  NewServer(deps).Routes(),
		registry: reg,
		worker:   worker,
		engine:   eng,
		deps:     deps,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func postJSON(path string, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, contents string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadField, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write([]byte(contents))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/convert-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeConvert(t *testing.T, rec *httptest.ResponseRecorder) models.ConvertResponse {
	t.Helper()
	var resp models.ConvertResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Error
}

const mediaPlaylist = "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXTINF:10,\nseg1.ts\n#EXT-X-ENDLIST\n"

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
https://cdn.example.com/low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
https://cdn.example.com/high.m3u8
`

func TestConvertAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(postJSON("/convert", `{"m3u8Url":"https://cdn.example.com/live/index.m3u8"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeConvert(t, rec)
	if resp.ConversionID == "" {
		t.Fatalf("Expected a conversion id")
	}
	ts.worker.Wait()

	req := ts.engine.last(t)
	if req.Kind != engine.SourceRemote || req.Source != "https://cdn.example.com/live/index.m3u8" {
		t.Errorf("Expected remote source to be passed through, got %+v", req)
	}

	got, err := ts.registry.Get(resp.ConversionID)
	if err != nil {
		t.Fatalf("Expected job to exist: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
}

func TestConvertRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{}`, "Invalid or missing m3u8Url"},
		{"relative url", `{"m3u8Url":"index.m3u8"}`, "Invalid or missing m3u8Url"},
		{"ftp url", `{"m3u8Url":"ftp://host/index.m3u8"}`, "Invalid or missing m3u8Url"},
		{"malformed json", `{"m3u8Url":`, "Invalid request body"},
		{"bad callback", `{"m3u8Url":"https://a.example/x.m3u8","callbackUrl":"not a url"}`, "callbackUrl must be an absolute http(s) URL"},
		{"publishing disabled", `{"m3u8Url":"https://a.example/x.m3u8","publishKeys":["abc"]}`, "publishing is not enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(postJSON("/convert", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if got := decodeError(t, rec); got != tt.want {
				t.Errorf("Expected error %q, got %q", tt.want, got)
			}
		})
	}

	if len(ts.registry.List()) != 0 {
		t.Errorf("Expected no jobs to be created for rejected requests")
	}
}

func TestConvertUnknownPublishKey(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.LookupPublishKey = func(key string) (map[string]string, error) {
			if key == "known" {
				return map[string]string{"type": "directServe"}, nil
			}
			return nil, errors.New("unknown publish key")
		}
	})

	rec := ts.do(postJSON("/convert", `{"m3u8Url":"https://a.example/x.m3u8","publishKeys":["known","missing"]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != `unknown publish key "missing"` {
		t.Errorf("Unexpected error message: %q", got)
	}

	rec = ts.do(postJSON("/convert", `{"m3u8Url":"https://a.example/x.m3u8","publishKeys":["known"]}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	ts.worker.Wait()
}

func TestConvertMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/convert", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestConvertFileMediaPlaylist(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(uploadRequest(t, "stream.m3u8", mediaPlaylist, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeConvert(t, rec)
	if resp.Playlist == nil || resp.Playlist.Kind != "media" {
		t.Errorf("Expected media playlist summary, got %+v", resp.Playlist)
	}
	ts.worker.Wait()

	req := ts.engine.last(t)
	if req.Kind != engine.SourceLocalFile {
		t.Errorf("Expected local-file source, got %s", req.Kind)
	}
	if filepath.Dir(req.Source) != ts.deps.UploadDir {
		t.Errorf("Expected upload to be saved in %s, got %s", ts.deps.UploadDir, req.Source)
	}
	if _, err := os.Stat(req.Source); !os.IsNotExist(err) {
		t.Errorf("Expected uploaded playlist to be removed after completion")
	}
}

func TestConvertFileRebasesMediaPlaylist(t *testing.T) {
	ts := newTestServer(t, nil)

	var saved string
	ts.engine.onRemux = func(req engine.Request) {
		data, _ := os.ReadFile(req.Source)
		saved = string(data)
	}

	rec := ts.do(uploadRequest(t, "stream.m3u8", mediaPlaylist, map[string]string{"baseUrl": "https://cdn.example.com/vod/"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	ts.worker.Wait()

	if !strings.Contains(saved, "https://cdn.example.com/vod/seg0.ts") {
		t.Errorf("Expected segment URIs to be rebased, got:\n%s", saved)
	}
}

func TestConvertFileMasterSelectsHighestBandwidth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(uploadRequest(t, "master.m3u8", masterPlaylist, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeConvert(t, rec)
	if resp.Playlist == nil || resp.Playlist.Kind != "master" {
		t.Fatalf("Expected master playlist summary, got %+v", resp.Playlist)
	}
	if resp.Playlist.Selected != "https://cdn.example.com/high.m3u8" || resp.Playlist.Bandwidth != 2500000 {
		t.Errorf("Expected highest bandwidth rendition, got %+v", resp.Playlist)
	}
	ts.worker.Wait()

	req := ts.engine.last(t)
	if req.Kind != engine.SourceRemote || req.Source != "https://cdn.example.com/high.m3u8" {
		t.Errorf("Expected remote high rendition, got %+v", req)
	}

	entries, _ := os.ReadDir(ts.deps.UploadDir)
	if len(entries) != 0 {
		t.Errorf("Expected uploaded master playlist to be cleaned up, found %d files", len(entries))
	}
}

func TestSelectRendition(t *testing.T) {
	src, err := selectRendition("720p/index.m3u8", "https://cdn.example.com/show/master.m3u8", "/tmp/uploads")
	if err != nil || src.Kind != engine.SourceRemote || src.Locator != "https://cdn.example.com/show/720p/index.m3u8" {
		t.Errorf("Expected rendition resolved against baseUrl, got %+v, %v", src, err)
	}

	src, err = selectRendition("720p/index.m3u8", "", "/tmp/uploads")
	if err != nil || src.Kind != engine.SourceLocalFile || src.Locator != filepath.Join("/tmp/uploads", "720p/index.m3u8") {
		t.Errorf("Expected rendition resolved against the upload dir, got %+v, %v", src, err)
	}

	src, err = selectRendition("sub/../720p.m3u8", "", "/tmp/uploads")
	if err != nil || src.Locator != filepath.Join("/tmp/uploads", "720p.m3u8") {
		t.Errorf("Expected a locator that stays inside the upload dir to be accepted, got %+v, %v", src, err)
	}

	for _, locator := range []string{"/etc/passwd", "../../../etc/hosts", "..", "a/../../outside.m3u8"} {
		if src, err := selectRendition(locator, "", "/var/m3u8conv/uploads"); err == nil {
			t.Errorf("Expected %q to be rejected, got %+v", locator, src)
		} else if !errors.Is(err, ErrValidation) {
			t.Errorf("Expected a validation error for %q, got %v", locator, err)
		}
	}
}

func TestConvertFileRejections(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.MaxUploadBytes = 64 })

	tests := []struct {
		name     string
		filename string
		contents string
		code     int
	}{
		{"not a playlist", "stream.m3u8", "hello world", http.StatusBadRequest},
		{"no segments", "stream.m3u8", "#EXTM3U\n#EXT-X-ENDLIST\n", http.StatusBadRequest},
		{"wrong extension", "notes.txt", "#EXTM3U\n#EXTINF:1,\na.ts\n", http.StatusBadRequest},
		{"too large", "stream.m3u8", mediaPlaylist + strings.Repeat("#", 64), http.StatusRequestEntityTooLarge},
		{"absolute rendition", "master.m3u8", "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n/etc/passwd\n", http.StatusBadRequest},
		{"escaping rendition", "master.m3u8", "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n../../etc/hosts\n", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(uploadRequest(t, tt.filename, tt.contents, nil))
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}

	if len(ts.registry.List()) != 0 {
		t.Errorf("Expected no jobs to be created for rejected uploads")
	}
	if entries, _ := os.ReadDir(ts.deps.UploadDir); len(entries) != 0 {
		t.Errorf("Expected rejected uploads to be removed, found %d files", len(entries))
	}
}

func TestConvertFileMissingFile(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("baseUrl", "https://cdn.example.com/")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/convert-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := ts.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != "No playlist file uploaded" {
		t.Errorf("Unexpected error message: %q", got)
	}
}

func TestIsPlaylistUpload(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"a.m3u8", "application/octet-stream", true},
		{"A.M3U8", "", true},
		{"a.m3u", "", true},
		{"playlist", "application/vnd.apple.mpegurl", true},
		{"playlist", "audio/x-mpegurl; charset=utf-8", true},
		{"a.txt", "text/plain", false},
		{"a.mp4", "", false},
	}
	for _, tt := range tests {
		if got := isPlaylistUpload(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("isPlaylistUpload(%q, %q): expected %v, got %v", tt.filename, tt.contentType, tt.want, got)
		}
	}
}

func TestSplitKeys(t *testing.T) {
	got := splitKeys(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if got := splitKeys(""); got != nil {
		t.Errorf("Expected nil for empty input, got %v", got)
	}
}

func TestProgress(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/progress/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != "Conversion not found" {
		t.Errorf("Unexpected error message: %q", got)
	}

	resp := decodeConvert(t, ts.do(postJSON("/convert", `{"m3u8Url":"https://cdn.example.com/a.m3u8"}`)))
	ts.worker.Wait()

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/progress/"+resp.ConversionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Expected Cache-Control no-store, got %q", cc)
	}

	var p job.Progress
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("Failed to decode progress: %v", err)
	}
	if p.Status != job.StatusCompleted || p.Progress != 100 {
		t.Errorf("Expected completed at 100, got %s at %d", p.Status, p.Progress)
	}
	if !strings.HasPrefix(p.ViewURL, "http://localhost:4000/downloads/converted_") {
		t.Errorf("Unexpected view URL: %s", p.ViewURL)
	}
	if p.DownloadURL != p.ViewURL+"?download=1" {
		t.Errorf("Expected download URL to add download=1, got %s", p.DownloadURL)
	}
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := os.MkdirAll(ts.deps.OutputDir, 0o755); err != nil {
		t.Fatalf("Failed to create output dir: %v", err)
	}
	name := "converted_1_abcdef12.mp4"
	if err := os.WriteFile(filepath.Join(ts.deps.OutputDir, name), []byte("fake mp4 data"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/downloads/"+name, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Expected video/mp4, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Errorf("Expected inline disposition, got %q", cd)
	}
	if rec.Body.String() != "fake mp4 data" {
		t.Errorf("Unexpected body: %q", rec.Body.String())
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/downloads/"+name+"?download=1", nil))
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/downloads/missing.mp4", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing file, got %d", rec.Code)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/downloads/.hidden", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for hidden file, got %d", rec.Code)
	}
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]bool{
		"converted_1_abc.mp4": true,
		"":                    false,
		"..":                  false,
		"../etc/passwd":       false,
		`..\secret.mp4`:       false,
		".hidden":             false,
		"dir/file.mp4":        false,
	}
	for name, want := range tests {
		if got := safeFilename(name); got != want {
			t.Errorf("safeFilename(%q): expected %v, got %v", name, want, got)
		}
	}
}

type countingSink struct {
	mu       sync.Mutex
	rejected map[string]int
}

func (c *countingSink) Submitted(string) {}
func (c *countingSink) Rejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = make(map[string]int)
	}
	c.rejected[reason]++
}

func TestSubmitRateLimit(t *testing.T) {
	sink := &countingSink{}
	ts := newTestServer(t, func(d *Deps) {
		d.SubmitRPS = 0.001
		d.SubmitBurst = 1
		d.Metrics = sink
	})

	first := ts.do(postJSON("/convert", `{}`))
	if first.Code != http.StatusBadRequest {
		t.Fatalf("Expected first request to reach the handler, got %d", first.Code)
	}

	second := ts.do(postJSON("/convert", `{}`))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Errorf("Expected Retry-After header")
	}

	// progress polling is not limited
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/progress/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected progress to bypass the limiter, got %d", rec.Code)
	}

	if sink.rejected["rate_limited"] != 1 {
		t.Errorf("Expected 1 rate_limited rejection, got %d", sink.rejected["rate_limited"])
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "OK" || !health.FFmpeg.Available {
		t.Errorf("Expected healthy with ffmpeg available, got %+v", health)
	}

	degraded := newTestServer(t, func(d *Deps) {
		d.FFmpegCheck = func() (string, error) { return "", errors.New("exec: not found") }
	})
	rec = degraded.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 even when degraded, got %d", rec.Code)
	}
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "DEGRADED" || health.FFmpeg.Available {
		t.Errorf("Expected degraded without ffmpeg, got %+v", health)
	}
}

func TestFormatUptime(t *testing.T) {
	got := formatUptime(26*time.Hour + 3*time.Minute + 4*time.Second)
	if got != "1d 2h 3m 4s" {
		t.Errorf("Expected 1d 2h 3m 4s, got %s", got)
	}
}

func TestVersion(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var v VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode version: %v", err)
	}
	if v.Version == "" || v.GoVersion == "" {
		t.Errorf("Expected version fields to be set, got %+v", v)
	}
}
