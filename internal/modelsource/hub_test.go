package modelsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newTestHub(t *testing.T, files map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHub_Fetch(t *testing.T) {
	srv, hits := newTestHub(t, map[string]string{
		"/org/mini/resolve/main/onnx/model.onnx": "graph",
		"/org/mini/resolve/main/vocab.txt":       "[PAD]\n[UNK]\n",
	})
	cacheDir := t.TempDir()
	hub := NewHub(srv.URL, "secret", "", cacheDir)

	dir, err := hub.Fetch(context.Background(), "org/mini")
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(cacheDir, "org", "mini") {
		t.Errorf("dir = %s", dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, "onnx", "model.onnx"))
	if err != nil || string(data) != "graph" {
		t.Fatalf("model file = %q, %v", data, err)
	}
	files, err := Locate(dir)
	if err != nil {
		t.Fatal(err)
	}
	if files.Vocab == "" {
		t.Error("expected vocab.txt to be downloaded")
	}

	before := hits.Load()
	if _, err := hub.Fetch(context.Background(), "org/mini"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != before {
		t.Error("second Fetch should reuse the cached download")
	}
}

func TestHub_FetchFallsBackToRootModel(t *testing.T) {
	srv, _ := newTestHub(t, map[string]string{
		"/org/flat/resolve/v2/model.onnx": "graph",
		"/org/flat/resolve/v2/vocab.txt":  "[PAD]\n",
	})
	hub := NewHub(srv.URL, "secret", "v2", t.TempDir())
	dir, err := hub.Fetch(context.Background(), "org/flat")
	if err != nil {
		t.Fatal(err)
	}
	files, err := Locate(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(files.Model) != "model.onnx" || files.Vocab == "" {
		t.Errorf("files = %+v", files)
	}
}

func TestHub_FetchRequiresVocab(t *testing.T) {
	srv, _ := newTestHub(t, map[string]string{
		"/org/novocab/resolve/main/model.onnx": "graph",
	})
	hub := NewHub(srv.URL, "secret", "", t.TempDir())
	if _, err := hub.Fetch(context.Background(), "org/novocab"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestHub_FetchRetriesAfterPartialDownload(t *testing.T) {
	var vocabRequests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/org/flaky/resolve/main/onnx/model.onnx":
			_, _ = w.Write([]byte("graph"))
		case "/org/flaky/resolve/main/vocab.txt":
			if vocabRequests.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("[PAD]\n[UNK]\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	hub := NewHub(srv.URL, "", "", t.TempDir())

	if _, err := hub.Fetch(context.Background(), "org/flaky"); err == nil {
		t.Fatal("expected the first Fetch to fail on the vocab download")
	}
	dir, err := hub.Fetch(context.Background(), "org/flaky")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	files, err := LocateComplete(dir)
	if err != nil {
		t.Fatalf("retry left an incomplete model: %v", err)
	}
	if files.Vocab != filepath.Join(dir, VocabFile) {
		t.Errorf("Vocab = %q", files.Vocab)
	}
	if vocabRequests.Load() != 2 {
		t.Errorf("vocab requested %d times, want 2", vocabRequests.Load())
	}
}

func TestHub_FetchIgnoresUnmarkedCache(t *testing.T) {
	srv, hits := newTestHub(t, map[string]string{
		"/org/mini/resolve/main/onnx/model.onnx": "graph",
		"/org/mini/resolve/main/vocab.txt":       "[PAD]\n",
	})
	cacheDir := t.TempDir()
	touch(t, filepath.Join(cacheDir, "org", "mini", "onnx", "model.onnx"))
	touch(t, filepath.Join(cacheDir, "org", "mini", VocabFile))

	hub := NewHub(srv.URL, "secret", "", cacheDir)
	if _, err := hub.Fetch(context.Background(), "org/mini"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() == 0 {
		t.Error("files without a completion marker should be downloaded again")
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "org", "mini", completeMarker)); err != nil {
		t.Errorf("completion marker missing: %v", err)
	}
}

func TestHub_FetchErrors(t *testing.T) {
	srv, _ := newTestHub(t, map[string]string{})
	hub := NewHub(srv.URL, "secret", "", t.TempDir())
	if _, err := hub.Fetch(context.Background(), "org/missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
	if _, err := hub.Fetch(context.Background(), "../etc"); err == nil {
		t.Error("expected error for path traversal name")
	}

	unauthorized := NewHub(srv.URL, "wrong", "", t.TempDir())
	_, err := unauthorized.Fetch(context.Background(), "org/mini")
	if err == nil || errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want hub status error", err)
	}
}
