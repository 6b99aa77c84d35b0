package service

import (
	"context"
	"fmt"

	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/embedding"
	"github.com/hyperjump/embedserve/internal/modelsource"
	"go.uber.org/zap"
)

// ModelLoader resolves the configured model source and loads a WordPiece
// tokenizer and an ONNX encoder from it.
type ModelLoader struct {
	model     config.ModelConfig
	embedding config.EmbeddingConfig
	logger    *zap.Logger
}

// NewModelLoader creates the production loader.
func NewModelLoader(cfg *config.Config, logger *zap.Logger) *ModelLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelLoader{model: cfg.Model, embedding: cfg.Embedding, logger: logger}
}

// Load implements Loader.
func (l *ModelLoader) Load(ctx context.Context) (*Model, error) {
	src, err := modelsource.Resolve(l.model.Dir, l.model.Name)
	if err != nil {
		return nil, err
	}
	l.logger.Info("resolving model", zap.String("kind", string(src.Kind)), zap.String("source", src.String()))

	var files modelsource.Files
	switch src.Kind {
	case modelsource.KindLocal:
		files, err = modelsource.WaitForModel(ctx, src.Path, l.model.WaitTimeout, l.logger)
		if err != nil {
			return nil, err
		}
	case modelsource.KindRemote:
		hub := modelsource.NewHub(l.model.HubURL, l.model.HubToken, l.model.Revision, l.model.CacheDir,
			modelsource.WithLogger(l.logger))
		src.Path, err = hub.Fetch(ctx, src.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", src.Name, err)
		}
		files, err = modelsource.LocateComplete(src.Path)
		if err != nil {
			return nil, err
		}
	}
	if files.Vocab == "" {
		return nil, fmt.Errorf("%w: no %s next to %s", modelsource.ErrModelNotFound, modelsource.VocabFile, files.Model)
	}

	lowercase := l.embedding.LowercaseOrDefault()
	tokenizer, err := embedding.LoadWordPieceTokenizer(files.Vocab, lowercase)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded vocabulary", zap.String("path", files.Vocab), zap.Int("tokens", tokenizer.VocabSize()))

	encoder, err := embedding.NewONNXEncoder(files.Model, embedding.ONNXOptions{
		LibraryPath:    l.model.ONNXLibraryPath,
		Dimensions:     l.embedding.Dimensions,
		IntraOpThreads: l.embedding.IntraOpThreads,
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Tokenizer: tokenizer,
		Encoder:   encoder,
		Name:      src.String(),
		Settings:  fmt.Sprintf("wordpiece lowercase=%t", lowercase),
	}, nil
}

// NewMockModel returns a model backed by the hash tokenizer and a deterministic
// encoder. It needs no model files and is used by tests and `embed -mock`. It is
// the only place the hash tokenizer is paired with an encoder.
func NewMockModel(dimensions int) *Model {
	return &Model{
		Tokenizer: &embedding.SimpleTokenizer{},
		Encoder:   embedding.NewMockEncoder(dimensions),
		Name:      "mock",
		Settings:  "hash",
	}
}

// StaticLoader returns a Loader that always yields m.
func StaticLoader(m *Model) Loader {
	return LoaderFunc(func(context.Context) (*Model, error) { return m, nil })
}
