// Package service implements the embedding service: a model handle initialized
// once per process and the request contract served on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/embedserve/internal/cache"
	"github.com/hyperjump/embedserve/internal/embedding"
	"github.com/hyperjump/embedserve/pkg/utils"
	"go.uber.org/zap"
)

// Model is a loaded tokenizer and encoder pair.
type Model struct {
	Tokenizer embedding.Tokenizer
	Encoder   embedding.Encoder
	// Name identifies the model in logs, readiness output and cache keys.
	Name string
	// Settings describes tokenizer options that change the output. It is part
	// of the cache key.
	Settings string
}

// Loader produces the Model during Initialize.
type Loader interface {
	Load(ctx context.Context) (*Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (*Model, error) { return f(ctx) }

// State is the service lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateClosed        State = "closed"
)

// Options tunes request handling.
type Options struct {
	MaxTokens        int
	MaxBatchSize     int
	InferenceTimeout time.Duration
	// Pooling defaults to embedding.PoolMasked.
	Pooling embedding.PoolingMode
	// Cache is optional; lookups and stores that fail are logged and ignored.
	Cache  cache.Cache
	Logger *zap.Logger
}

// Service owns the model handle. The handle is published atomically once both
// tokenizer and encoder are loaded and is read-only afterwards.
type Service struct {
	loader Loader
	opts   Options
	logger *zap.Logger

	initMu sync.Mutex
	closed atomic.Bool
	handle atomic.Pointer[Model]
}

// New creates an uninitialized service.
func New(loader Loader, opts Options) *Service {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = embedding.DefaultMaxTokens
	}
	if opts.Pooling == "" {
		opts.Pooling = embedding.PoolMasked
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{loader: loader, opts: opts, logger: opts.Logger}
}

// Initialize loads the model and moves the service to Ready. Concurrent callers
// are serialized; after a success further calls return ErrAlreadyInitialized.
// A failed load leaves the service Uninitialized so it can be retried.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.handle.Load() != nil {
		return ErrAlreadyInitialized
	}

	start := time.Now()
	m, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	if m == nil || m.Tokenizer == nil || m.Encoder == nil {
		if m != nil && m.Encoder != nil {
			_ = m.Encoder.Close()
		}
		return errors.New("loader returned an incomplete model")
	}
	s.handle.Store(m)
	s.logger.Info("model initialised",
		zap.String("model", m.Name),
		zap.Int("dimensions", m.Encoder.Dimensions()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// State reports the lifecycle state. It never waits for an in-flight Initialize.
func (s *Service) State() State {
	if s.handle.Load() != nil {
		return StateReady
	}
	if s.closed.Load() {
		return StateClosed
	}
	return StateUninitialized
}

// Ready reports whether requests can be served.
func (s *Service) Ready() bool {
	return s.handle.Load() != nil
}

// Info describes the loaded model.
type Info struct {
	State      State  `json:"status"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// Info returns the current state and, when Ready, the model name and dimensions.
func (s *Service) Info() Info {
	m := s.handle.Load()
	if m == nil {
		return Info{State: s.State()}
	}
	return Info{State: StateReady, Model: m.Name, Dimensions: m.Encoder.Dimensions()}
}

// Close releases the encoder. Requests afterwards fail as uninitialized.
func (s *Service) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.closed.Store(true)
	m := s.handle.Swap(nil)
	if m == nil {
		return nil
	}
	return m.Encoder.Close()
}

// Embed returns one unit-norm vector per text, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m := s.handle.Load()
	if m == nil {
		return nil, ErrUninitialized
	}
	if len(texts) == 0 {
		return nil, validationError("'texts' must contain at least one entry")
	}
	if s.opts.MaxBatchSize > 0 && len(texts) > s.opts.MaxBatchSize {
		return nil, validationError("batch of %d texts exceeds the limit of %d", len(texts), s.opts.MaxBatchSize)
	}

	scope := cache.Scope{
		Model:     m.Name,
		Tokenizer: m.Settings,
		MaxTokens: s.opts.MaxTokens,
		Pooling:   string(s.opts.Pooling),
	}
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if s.opts.Cache != nil {
			keys[i] = cache.Key(scope, text)
			vec, ok, err := s.opts.Cache.Get(ctx, keys[i])
			if err != nil {
				s.logger.Warn("cache lookup failed", zap.Error(err))
			} else if ok {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := s.compute(ctx, m, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if s.opts.Cache != nil {
			if err := s.opts.Cache.Set(ctx, keys[i], vecs[j]); err != nil {
				s.logger.Warn("cache store failed", zap.Error(err))
			}
		}
	}
	return out, nil
}

// compute runs tokenize, encode, pool and normalize for one batch. Panics in the
// collaborators are reported as inference errors.
func (s *Service) compute(ctx context.Context, m *Model, texts []string) (vecs [][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vecs = nil
			err = inferenceError("inference panicked", fmt.Errorf("%v", r))
		}
	}()

	if s.opts.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.InferenceTimeout)
		defer cancel()
	}

	batch, err := m.Tokenizer.TokenizeBatch(texts, s.opts.MaxTokens)
	if err != nil {
		return nil, inferenceError("tokenization failed", err)
	}
	hidden, err := m.Encoder.Encode(ctx, batch)
	if err != nil {
		return nil, inferenceError("encoding failed", err)
	}
	vecs, err = embedding.Pool(hidden, batch, s.opts.Pooling)
	if err != nil {
		return nil, inferenceError("pooling failed", err)
	}
	return vecs, nil
}

// Response is the JSON answer. Exactly one of the three fields is set.
type Response struct {
	Embedding  []float32   `json:"embedding,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty"`
	Kind       ErrorKind   `json:"-"`
}

// Failed reports whether r is an error result.
func (r *Response) Failed() bool {
	return r.Error != ""
}

// HandleRequest parses a raw payload and embeds it. It never returns a Go error:
// every failure becomes a Response with Error set.
func (s *Service) HandleRequest(ctx context.Context, raw []byte) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			resp = s.errorResponse(inferenceError("internal error", fmt.Errorf("%v", r)))
		}
	}()

	req, err := ParseRequest(raw)
	if err != nil {
		return s.errorResponse(err)
	}
	vecs, err := s.Embed(ctx, req.Inputs())
	if err != nil {
		return s.errorResponse(err)
	}

	s.logger.Debug("embedded request",
		zap.Int("texts", len(vecs)),
		zap.String("preview", utils.Truncate(req.Inputs()[0], 40)),
		zap.Duration("took", time.Since(start)),
	)
	if req.Kind == Single {
		return Response{Embedding: vecs[0]}
	}
	return Response{Embeddings: vecs}
}

func (s *Service) errorResponse(err error) Response {
	kind := KindOf(err)
	if kind == KindInference {
		s.logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}
	return Response{Error: err.Error(), Kind: kind}
}
