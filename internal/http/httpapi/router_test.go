package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"maestro/internal/adapter/memory"
	"maestro/internal/domain"
	"maestro/internal/http/handlers"
	"maestro/internal/infra"
	"maestro/internal/jobs"
	"maestro/internal/middleware"
	"maestro/internal/providers"
	"maestro/internal/providers/mock"
	"maestro/internal/storage"
)

const secret = "router-secret"

type fixture struct {
	store   *memory.Store
	media   *memory.MediaStore
	files   *storage.FileStore
	handler http.Handler
}

func newFixture(t *testing.T, origins ...string) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	store := memory.New()
	manager := jobs.NewManager(jobs.ManagerOptions{Jobs: store, Metrics: infra.NewMetrics(reg), AutoTagging: true, AutoSEO: true})

	registry := providers.NewRegistry()
	if err := registry.Register(mock.New(mock.Options{Delay: -1})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_ = registry.SetDefault("mock")

	media := memory.NewMediaStore()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	app := &handlers.App{
		Jobs:          manager,
		Providers:     registry,
		Media:         jobs.MediaPaths{Media: media, Store: files},
		WatchInterval: 10 * time.Millisecond,
	}
	h := NewRouter(app, Options{
		JWTSecret:    secret,
		CORSOrigins:  origins,
		JobRateLimit: 100,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       infra.NopLogger(),
	})
	return &fixture{store: store, media: media, files: files, handler: h}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := middleware.SignJWT(secret, middleware.TokenClaims{Sub: sub, Role: role, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			rdr = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetJob(t *testing.T) {
	f := newFixture(t)
	tok := token(t, "7", "editor")

	rec := f.do(t, http.MethodPost, "/v1/jobs", tok, map[string]any{
		"source_id": 42,
		"operation": "remove_background",
		"params":    map[string]any{"prompt": "studio light"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == 0 || created.Status != "pending" {
		t.Fatalf("unexpected create response %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/v1/jobs/"+jsonInt(created.ID), tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view domain.JobView
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Status != domain.JobStatusPending || view.SourceID != 42 || view.Params.String("prompt") != "studio light" || view.CreatedBy != 7 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Result == nil {
		t.Fatal("result must encode as an empty list")
	}
}

func TestCreateJobErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		tok  string
		body any
		want int
	}{
		{name: "no token", body: map[string]any{"source_id": 1, "operation": "erase"}, want: http.StatusUnauthorized},
		{name: "subscriber", tok: token(t, "8", "subscriber"), body: map[string]any{"source_id": 1, "operation": "erase"}, want: http.StatusForbidden},
		{name: "bad json", tok: token(t, "7", "admin"), body: "{", want: http.StatusBadRequest},
		{name: "missing source", tok: token(t, "7", "admin"), body: map[string]any{"operation": "erase"}, want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, "/v1/jobs", tc.tok, tc.body); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
	if ids, _ := f.store.ListPending(context.Background(), 10); len(ids) != 0 {
		t.Fatalf("no job may be stored, got %v", ids)
	}
}

func TestGetJobErrors(t *testing.T) {
	f := newFixture(t)
	tok := token(t, "7", "author")
	if rec := f.do(t, http.MethodGet, "/v1/jobs/999", tok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/jobs/abc", tok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestHealthProvidersAndMetrics(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/v1/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	tok := token(t, "1", "admin")
	rec := f.do(t, http.MethodGet, "/v1/providers", tok, nil)
	var infos []providers.Info
	_ = json.Unmarshal(rec.Body.Bytes(), &infos)
	if len(infos) != 1 || infos[0].ID != "mock" || !infos[0].Default {
		t.Fatalf("unexpected providers %s", rec.Body.String())
	}

	f.do(t, http.MethodPost, "/v1/jobs", tok, map[string]any{"source_id": 3, "operation": "regenerate"})
	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `maestro_jobs_created_total{operation="regenerate"} 1`) {
		t.Fatalf("metrics missing job counter:\n%s", rec.Body.String())
	}
}

func TestWatchJobStreamsUntilTerminal(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	tok := token(t, "7", "editor")
	ctx := context.Background()
	job := &domain.Job{SourceID: 42, Operation: "regenerate", CreatedBy: 7}
	if err := f.store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + jsonInt(job.ID) + "/watch?access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first domain.JobView
	if err := conn.ReadJSON(&first); err != nil || first.Status != domain.JobStatusPending {
		t.Fatalf("unexpected first frame %+v %v", first, err)
	}

	time.Sleep(5 * time.Millisecond)
	_, _ = f.store.Claim(ctx, job.ID)
	_ = f.store.Complete(ctx, job.ID, []int64{43})

	var last domain.JobView
	for last.Status != domain.JobStatusCompleted {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
	}
	if len(last.Result) != 1 || last.Result[0] != 43 {
		t.Fatalf("unexpected final frame %+v", last)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestWatchChecksOrigin(t *testing.T) {
	f := newFixture(t, "https://app.example.com")
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	job := &domain.Job{SourceID: 42, Operation: "regenerate", CreatedBy: 7}
	_ = f.store.Create(context.Background(), job)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + jsonInt(job.ID) + "/watch?access_token=" + token(t, "7", "editor")

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://app.example.com"}})
	if err != nil {
		t.Fatalf("listed origin rejected: %v", err)
	}
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	if err == nil {
		t.Fatal("unlisted origin must be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected handshake response %v", resp)
	}
}

func TestHealthReportsReadiness(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/healthz", "", nil)
	var body struct {
		Status          string `json:"status"`
		Database        string `json:"database"`
		Providers       int    `json:"providers"`
		DefaultProvider string `json:"default_provider"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body.Status != "ok" || body.Database != "disabled" || body.Providers != 1 || body.DefaultProvider != "mock" {
		t.Fatalf("unexpected health %d %s", rec.Code, rec.Body.String())
	}

	app := &handlers.App{Ping: func(ctx context.Context) error { return errors.New("connection refused") }}
	down := NewRouter(app, Options{JWTSecret: secret, Logger: infra.NopLogger()})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"database":"error"`) {
		t.Fatalf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
}

func TestWatchUnknownJob(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/jobs/77/watch", token(t, "7", "editor"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDownloadOutputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := token(t, "7", "editor")

	if _, err := f.files.Write(ctx, "out/photo-regenerate-1.png", []byte("png-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := &domain.Media{Filename: "photo-regenerate-1.png", StorageKey: "out/photo-regenerate-1.png"}
	_ = f.media.Create(ctx, out)

	job := &domain.Job{SourceID: 42, Operation: "regenerate", CreatedBy: 7}
	_ = f.store.Create(ctx, job)
	path := "/v1/jobs/" + jsonInt(job.ID) + "/outputs.zip"

	if rec := f.do(t, http.MethodGet, path, tok, nil); rec.Code != http.StatusConflict {
		t.Fatalf("pending job download status = %d", rec.Code)
	}

	_, _ = f.store.Claim(ctx, job.ID)
	_ = f.store.Complete(ctx, job.ID, []int64{out.ID})
	rec := f.do(t, http.MethodGet, path, tok, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("download status = %d %v", rec.Code, rec.Header())
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil || len(zr.File) != 1 || zr.File[0].Name != "photo-regenerate-1.png" {
		t.Fatalf("unexpected archive %v", err)
	}
}

func TestAutoProcessMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.files.Write(ctx, "uploads/new.png", []byte("png-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	upload := &domain.Media{Filename: "new.png", StorageKey: "uploads/new.png"}
	_ = f.media.Create(ctx, upload)
	path := "/v1/media/" + jsonInt(upload.ID) + "/auto-process"

	rec := f.do(t, http.MethodPost, path, token(t, "7", "author"), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		MediaID int64   `json:"media_id"`
		Jobs    []int64 `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp.Jobs) != 2 {
		t.Fatalf("unexpected response %s (%v)", rec.Body.String(), err)
	}
	ops := map[string]bool{}
	for _, id := range resp.Jobs {
		job, err := f.store.Get(ctx, id)
		if err != nil || job.SourceID != upload.ID || job.Status != domain.JobStatusPending {
			t.Fatalf("unexpected job %+v (%v)", job, err)
		}
		ops[job.Operation] = true
	}
	if !ops["auto_tag_image"] || !ops["auto_seo_image"] {
		t.Fatalf("unexpected operations %v", ops)
	}

	cases := []struct {
		name string
		path string
		tok  string
		want int
	}{
		{"subscriber", path, token(t, "8", "subscriber"), http.StatusForbidden},
		{"unknown media", "/v1/media/999/auto-process", token(t, "7", "editor"), http.StatusNotFound},
		{"bad id", "/v1/media/abc/auto-process", token(t, "7", "editor"), http.StatusBadRequest},
		{"no token", path, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, tc.path, tc.tok, nil); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func jsonInt(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
