package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/service"
)

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ScorePath:      "/score",
		MaxBodyBytes:   1 << 20,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.ServerConfig, ready bool) http.Handler {
	t.Helper()
	svc := service.New(service.StaticLoader(service.NewMockModel(8)), service.Options{MaxBatchSize: 4})
	if ready {
		if err := svc.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { _ = svc.Close() })
	return NewServer(svc, cfg, nil).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestHandleScore(t *testing.T) {
	h := newTestServer(t, testConfig(), true)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		key    string
		kind   string
	}{
		{"single", "/score", `{"text":"hello"}`, http.StatusOK, "embedding", ""},
		{"batch", "/score", `{"texts":["a","b"]}`, http.StatusOK, "embeddings", ""},
		{"api alias", "/api/v1/embeddings", `{"text":"hello"}`, http.StatusOK, "embedding", ""},
		{"missing input", "/score", `{"foo":1}`, http.StatusBadRequest, "error", "validation"},
		{"empty batch", "/score", `{"texts":[]}`, http.StatusBadRequest, "error", "validation"},
		{"batch too large", "/score", `{"texts":["a","b","c","d","e"]}`, http.StatusBadRequest, "error", "validation"},
		{"malformed", "/score", `{"text":`, http.StatusBadRequest, "error", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := rec.Header().Get(ErrorKindHeader); got != tt.kind {
				t.Errorf("%s = %q, want %q", ErrorKindHeader, got, tt.kind)
			}
			body := decodeBody(t, rec)
			if len(body) != 1 {
				t.Errorf("expected exactly one key, got %v", body)
			}
			if _, ok := body[tt.key]; !ok {
				t.Errorf("missing key %q in %s", tt.key, rec.Body.String())
			}
		})
	}
}

func TestHandleScore_MissingInputMessage(t *testing.T) {
	h := newTestServer(t, testConfig(), true)
	rec := post(t, h, "/score", `{}`)
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != service.MissingInputMessage {
		t.Errorf("error = %q, want %q", body.Error, service.MissingInputMessage)
	}
}

func TestHandleScore_Uninitialized(t *testing.T) {
	h := newTestServer(t, testConfig(), false)
	rec := post(t, h, "/score", `{"text":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get(ErrorKindHeader); got != string(service.KindUninitialized) {
		t.Errorf("%s = %q", ErrorKindHeader, got)
	}
}

func TestHandleScore_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	h := newTestServer(t, cfg, true)
	rec := post(t, h, "/score", `{"text":"this body is longer than sixteen bytes"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestHandleScore_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, testConfig(), true)
	req := httptest.NewRequest(http.MethodGet, "/score", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, testConfig(), false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleReady(t *testing.T) {
	for _, ready := range []bool{false, true} {
		h := newTestServer(t, testConfig(), ready)
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		var info service.Info
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatal(err)
		}
		if ready {
			if rec.Code != http.StatusOK || info.State != service.StateReady || info.Dimensions != 8 {
				t.Errorf("ready: status=%d info=%+v", rec.Code, info)
			}
		} else if rec.Code != http.StatusServiceUnavailable || info.State != service.StateUninitialized {
			t.Errorf("not ready: status=%d info=%+v", rec.Code, info)
		}
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, testConfig(), true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("echoed request id = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("generated request id = %q, want a UUID", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := newTestServer(t, cfg, true)

	if rec := post(t, h, "/score", `{"text":"a"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := post(t, h, "/score", `{"text":"a"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	hrec := httptest.NewRecorder()
	h.ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", hrec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind service.ErrorKind
		want int
	}{
		{service.KindParse, http.StatusBadRequest},
		{service.KindValidation, http.StatusBadRequest},
		{service.KindUninitialized, http.StatusServiceUnavailable},
		{service.KindInference, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(service.Response{Error: "x", Kind: tt.kind}); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if got := statusFor(service.Response{Embedding: []float32{1}}); got != http.StatusOK {
		t.Errorf("statusFor(ok) = %d", got)
	}
}
