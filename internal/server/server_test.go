package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"clip-drop/internal/abuse"
	"clip-drop/internal/metrics"
	"clip-drop/internal/pipeline"
	"clip-drop/internal/storage"
	"clip-drop/internal/submission"
)

// mp4Clip is a minimal ftyp box; content sniffing reports video/mp4.
var mp4Clip = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), bytes.Repeat([]byte{0x01}, 512)...)

type fakeNotifier struct {
	mu    sync.Mutex
	subs  []*submission.Submission
	refs  []storage.Reference
	links []string
	err   error
}

func (n *fakeNotifier) Submission(_ context.Context, sub *submission.Submission, ref storage.Reference) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.subs = append(n.subs, sub)
	n.refs = append(n.refs, ref)
	return nil
}

func (n *fakeNotifier) LinkSubmitted(_ context.Context, _ *submission.Submission, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.links = append(n.links, link)
	return nil
}

type testEnv struct {
	srv      *Server
	notifier *fakeNotifier
	tempDir  string
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, uploader storage.Uploader, maxBytes int64) *testEnv {
	t.Helper()
	return newTestEnvWithTimeout(t, uploader, maxBytes, 5*time.Second)
}

func newTestEnvWithTimeout(t *testing.T, uploader storage.Uploader, maxBytes int64, timeout time.Duration) *testEnv {
	t.Helper()

	env := &testEnv{notifier: &fakeNotifier{}, tempDir: t.TempDir(), metrics: metrics.New("test")}
	deps := pipeline.Deps{
		Validator: submission.NewValidator(maxBytes),
		Verifier:  abuse.Disabled{},
		Uploader:  uploader,
		Notifier:  env.notifier,
		Metrics:   env.metrics,
	}
	srvDeps := Deps{Storage: uploader, Metrics: env.metrics}
	if m, ok := uploader.(*storage.Manual); ok {
		deps.Links = m
		srvDeps.Pending = m
	}
	coord, err := pipeline.New(deps)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	srvDeps.Pipeline = coord

	env.srv, err = New(Config{
		Version:        "test",
		TempDir:        env.tempDir,
		MaxUploadBytes: maxBytes,
		RequestTimeout: timeout,
	}, srvDeps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func validFields() map[string]string {
	return map[string]string{
		"name":        "Alex",
		"email":       "alex@example.com",
		"clipType":    "bug",
		"description": "fell through the map",
		"bugSpecific": "near the bridge",
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, fields, fileName, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d spooled files", len(entries))
	}
}

func TestUploadSuccess(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(uploadRequest(t, validFields(), "clip.mp4", mp4Clip))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[uploadResp](t, rec)
	if !resp.Success || resp.Message != "Clip submitted successfully" {
		t.Errorf("response = %+v", resp)
	}
	if !submission.ValidID(resp.SubmissionID) {
		t.Errorf("submission id %q is not well formed", resp.SubmissionID)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}

	if len(env.notifier.refs) != 1 {
		t.Fatalf("notifier called %d times", len(env.notifier.refs))
	}
	att := env.notifier.refs[0].Attachment
	if att == nil || att.ContentType != "video/mp4" || att.Size != int64(len(mp4Clip)) {
		t.Errorf("attachment = %+v", att)
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestUploadValidationErrors(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	fields := validFields()
	delete(fields, "name")
	fields["email"] = "not-an-email"

	rec := env.do(uploadRequest(t, fields, "clip.mp4", mp4Clip))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[errorResp](t, rec)
	got := map[string]bool{}
	for _, fe := range resp.Errors {
		got[fe.Field] = true
	}
	if !got["name"] || !got["email"] {
		t.Errorf("field errors = %+v", resp.Errors)
	}
	if resp.SubmissionID == "" {
		t.Error("rejections should still carry the submission id")
	}
	if len(env.notifier.refs) != 0 {
		t.Error("rejected submission must not notify")
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestUploadRejectsNonVideo(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(uploadRequest(t, validFields(), "clip.mp4", []byte("just some text, not a video")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "File type not allowed") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUploadOversize(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, 256)

	rec := env.do(uploadRequest(t, validFields(), "clip.mp4", mp4Clip))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[errorResp](t, rec)
	if len(resp.Errors) != 1 || !strings.HasPrefix(resp.Errors[0].Message, "File too large") {
		t.Errorf("errors = %+v", resp.Errors)
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestUploadAcceptsASFContainer(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)
	asf := append([]byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11, 0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C},
		bytes.Repeat([]byte{0x00}, 512)...)

	rec := env.do(uploadRequest(t, validFields(), "clip.wmv", asf))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(env.notifier.subs) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.notifier.subs))
	}
	if got := env.notifier.subs[0].File.EffectiveType(); got != "video/x-ms-wmv" {
		t.Fatalf("effective type = %q, want video/x-ms-wmv", got)
	}
}

func TestUploadStalledBodyTimesOut(t *testing.T) {
	env := newTestEnvWithTimeout(t, &storage.EmailAttach{}, storage.MiB, 200*time.Millisecond)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	body, ct := multipartBody(t, validFields(), "clip.mp4", mp4Clip)
	partial := body.Bytes()[:body.Len()-200]

	conn, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "POST /upload HTTP/1.1\r\nHost: %s\r\nContent-Type: %s\r\nContent-Length: 100000\r\n\r\n",
		ts.Listener.Addr().String(), ct)
	if _, err := conn.Write(partial); err != nil {
		t.Fatal(err)
	}

	// The client never sends the rest; the server must answer on its own.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("no response from a stalled upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out errorResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Errors) != 1 || !strings.Contains(out.Errors[0].Message, "timed out") {
		t.Fatalf("unexpected error body %+v", out)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(env.tempDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("temp dir still holds %d spooled files after the timeout", len(entries))
		}
		time.Sleep(20 * time.Millisecond)
	}
	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	if got := len(env.notifier.refs); got != 0 {
		t.Fatalf("a timed-out upload must not notify, got %d", got)
	}
}

func TestUploadRequiresMultipart(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

type failingUploader struct{}

func (failingUploader) Name() string { return "failing" }

func (failingUploader) Upload(context.Context, *submission.Submission, string) (storage.Reference, error) {
	return storage.Reference{}, errors.New("bucket on fire")
}

func TestUploadStorageFailureIsOpaque(t *testing.T) {
	env := newTestEnv(t, failingUploader{}, storage.MiB)

	rec := env.do(uploadRequest(t, validFields(), "clip.mp4", mp4Clip))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "bucket on fire") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestUploadNotificationFailure(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)
	env.notifier.err = errors.New("smtp down")

	rec := env.do(uploadRequest(t, validFields(), "clip.mp4", mp4Clip))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func newManualEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, storage.NewManual(storage.ManualConfig{AllowedHosts: []string{"mega.nz"}}), storage.GiB)
}

func declaredUpload(t *testing.T) *http.Request {
	fields := validFields()
	fields["fileName"] = "big clip.mp4"
	fields["fileSize"] = "734003200"
	fields["fileType"] = "video/mp4"
	return uploadRequest(t, fields, "", nil)
}

func linkRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/submit-link", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDeferredTransfer(t *testing.T) {
	env := newManualEnv(t)

	rec := env.do(declaredUpload(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("phase 1 status = %d, body = %s", rec.Code, rec.Body.String())
	}
	phase1 := decode[uploadResp](t, rec)
	if phase1.TransferURL != "https://mega.nz" || !strings.Contains(phase1.Instructions, phase1.SubmissionID) {
		t.Errorf("phase 1 response = %+v", phase1)
	}
	if phase1.DownloadURL != "" {
		t.Error("deferred phase 1 has no download url")
	}

	link := "https://mega.nz/file/AbC#key"
	rec = env.do(linkRequest(t, linkReq{SubmissionID: phase1.SubmissionID, ExternalLink: link, Email: "ALEX@example.com"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("phase 2 status = %d, body = %s", rec.Code, rec.Body.String())
	}
	phase2 := decode[linkResp](t, rec)
	if !phase2.Success || phase2.Message != "Link received successfully" || phase2.DownloadURL != link {
		t.Errorf("phase 2 response = %+v", phase2)
	}
	if len(env.notifier.links) != 1 {
		t.Errorf("link notifications = %d", len(env.notifier.links))
	}

	// A second link for the same submission is refused.
	rec = env.do(linkRequest(t, linkReq{SubmissionID: phase1.SubmissionID, ExternalLink: link}))
	if rec.Code != http.StatusConflict {
		t.Errorf("replay status = %d, want 409", rec.Code)
	}
}

func TestSubmitLinkRejections(t *testing.T) {
	env := newManualEnv(t)
	rec := env.do(declaredUpload(t))
	id := decode[uploadResp](t, rec).SubmissionID

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown id", linkReq{SubmissionID: submission.NewID(), MegaLink: "https://mega.nz/file/x"}, http.StatusNotFound},
		{"malformed id", linkReq{SubmissionID: "nope", MegaLink: "https://mega.nz/file/x"}, http.StatusBadRequest},
		{"host not allowed", linkReq{SubmissionID: id, ExternalLink: "https://evil.example/file"}, http.StatusBadRequest},
		{"not http", linkReq{SubmissionID: id, ExternalLink: "javascript:alert(1)"}, http.StatusBadRequest},
		{"email mismatch", linkReq{SubmissionID: id, ExternalLink: "https://mega.nz/file/x", Email: "other@example.com"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/submit-link", strings.NewReader(s))
			} else {
				req = linkRequest(t, tt.body)
			}
			rec := env.do(req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	// None of the rejections consumed the pending entry.
	rec = env.do(linkRequest(t, linkReq{SubmissionID: id, MegaLink: "https://mega.nz/file/x"}))
	if rec.Code != http.StatusOK {
		t.Errorf("valid link after rejections: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestDeclaredFileNeedsManualBackend(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(declaredUpload(t))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitLinkWithoutManualBackend(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(linkRequest(t, linkReq{SubmissionID: submission.NewID(), ExternalLink: "https://mega.nz/file/x"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTestEndpoint(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/test", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["message"] != "API IS WORKING!" || body["success"] != true {
		t.Errorf("body = %v", body)
	}
	if _, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string)); err != nil {
		t.Errorf("timestamp: %v", err)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "https://clips.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}

	// Plain OPTIONS without an Origin is answered by the route.
	rec = env.do(httptest.NewRequest(http.MethodOptions, "/submit-link", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("plain OPTIONS: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://clips.example")
	rec = env.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("simple request Access-Control-Allow-Origin = %q", got)
	}
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound || decode[errorResp](t, rec).Error != "Not found" {
		t.Errorf("GET /nope: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /upload: %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/test", nil))
	for _, h := range []string{"X-Frame-Options", "X-Content-Type-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := env.do(req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("X-Request-Id = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", 200))
	rec = env.do(req)
	if got := rec.Header().Get("X-Request-Id"); len(got) != 36 {
		t.Errorf("oversized id should be replaced, got %q", got)
	}
}

type pingUploader struct {
	storage.EmailAttach
	err error
}

func (p *pingUploader) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, &pingUploader{}, storage.MiB)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		h := decode[Health](t, rec)
		if h.Status != HealthStatusHealthy || h.Version != "test" || h.Components["storage"].Status != ComponentStatusUp {
			t.Errorf("health = %+v", h)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		env := newTestEnv(t, &pingUploader{err: errors.New("no route")}, storage.MiB)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
		if h := decode[Health](t, rec); h.Status != HealthStatusUnhealthy {
			t.Errorf("status = %s", h.Status)
		}
	})

	t.Run("circuit open", func(t *testing.T) {
		guarded := storage.WithBreaker(failingUploader{}, 1, time.Hour)
		_, _ = guarded.Upload(t.Context(), &submission.Submission{}, "x")

		env := newTestEnv(t, guarded, storage.MiB)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if h := decode[Health](t, rec); h.Status != HealthStatusDegraded {
			t.Errorf("status = %s", h.Status)
		}
	})

	t.Run("pending transfers", func(t *testing.T) {
		env := newManualEnv(t)
		env.do(declaredUpload(t))
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		h := decode[map[string]any](t, rec)
		comps := h["components"].(map[string]any)
		pending := comps["pending_transfers"].(map[string]any)["details"].(map[string]any)
		if pending["count"] != float64(1) {
			t.Errorf("pending = %v", pending)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &storage.EmailAttach{}, storage.MiB)
	env.do(uploadRequest(t, validFields(), "clip.mp4", mp4Clip))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`clipdrop_submissions_total{flow="upload",state="completed"} 1`,
		`clipdrop_http_requests_total{code="200",method="POST",route="/upload"} 1`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := requestIDMiddleware(recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[errorResp](t, rec); got.Error != "Internal server error" {
		t.Errorf("body = %+v", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id lost on panic")
	}
}
