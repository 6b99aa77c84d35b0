package modelsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// errNotOnHub marks a 404 so the caller can try the next candidate path.
var errNotOnHub = errors.New("file not found on hub")

// Hub downloads named models from a Hugging Face compatible hub.
type Hub struct {
	baseURL    string
	token      string
	revision   string
	cacheDir   string
	httpClient *http.Client
	logger     *zap.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HubOption {
	return func(h *Hub) { h.httpClient = c }
}

// WithLogger sets a logger for download progress.
func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a hub client. If token is empty, it falls back to HF_TOKEN.
func NewHub(baseURL, token, revision, cacheDir string, opts ...HubOption) *Hub {
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	if revision == "" {
		revision = "main"
	}
	h := &Hub{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		revision:   revision,
		cacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// completeMarker is written once every file of a model has been downloaded.
// A directory without it is a partial download and is fetched again.
const completeMarker = ".complete"

// modelCandidates are tried in order; exported sentence-transformer repos usually
// keep the graph under onnx/.
var modelCandidates = []string{"onnx/model.onnx", "model.onnx"}

// Fetch makes the named model (graph and vocabulary) available locally and
// returns its directory. A complete earlier download is reused without network
// access; an interrupted one is downloaded again.
func (h *Hub) Fetch(ctx context.Context, name string) (string, error) {
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	dir := filepath.Join(h.cacheDir, filepath.FromSlash(name))
	marker := filepath.Join(dir, completeMarker)
	if fileExists(marker) {
		if _, err := LocateComplete(dir); err == nil {
			h.logger.Debug("using cached model", zap.String("model", name), zap.String("dir", dir))
			return dir, nil
		}
		_ = os.Remove(marker)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model cache dir: %w", err)
	}

	var fetched bool
	for _, candidate := range modelCandidates {
		err := h.download(ctx, name, candidate, filepath.Join(dir, filepath.FromSlash(candidate)))
		if err == nil {
			fetched = true
			break
		}
		if !errors.Is(err, errNotOnHub) {
			return "", err
		}
	}
	if !fetched {
		return "", fmt.Errorf("%w for %s on %s", ErrModelNotFound, name, h.baseURL)
	}

	if err := h.download(ctx, name, VocabFile, filepath.Join(dir, VocabFile)); err != nil {
		if errors.Is(err, errNotOnHub) {
			return "", fmt.Errorf("%w: %s has no %s on %s", ErrModelNotFound, name, VocabFile, h.baseURL)
		}
		return "", err
	}

	if err := os.WriteFile(marker, nil, 0644); err != nil {
		return "", fmt.Errorf("failed to mark %s complete: %w", name, err)
	}
	return dir, nil
}

func (h *Hub) fileURL(name, file string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", h.baseURL, name, url.PathEscape(h.revision), file)
}

// download writes the file atomically: a temp file in the target directory is
// renamed into place only after the body was fully copied.
func (h *Hub) download(ctx context.Context, name, file, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.fileURL(name, file), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", errNotOnHub, file)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hub error %d for %s: %s", resp.StatusCode, file, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return fmt.Errorf("download %s: %w", file, copyErr)
		}
		return fmt.Errorf("download %s: %w", file, closeErr)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", file, err)
	}
	h.logger.Info("downloaded model file",
		zap.String("model", name),
		zap.String("file", file),
		zap.Int64("bytes", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
