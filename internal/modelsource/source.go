// Package modelsource resolves where the tokenizer and encoder are loaded from:
// a locally mounted directory when one is configured, otherwise a named model
// fetched from the hub into a local cache.
package modelsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Kind says how a Source was resolved.
type Kind string

const (
	// KindLocal is a mounted directory (AZUREML_MODEL_DIR).
	KindLocal Kind = "local"
	// KindRemote is a hub model identifier (MODEL_NAME).
	KindRemote Kind = "remote"
)

// VocabFile is the WordPiece vocabulary file name.
const VocabFile = "vocab.txt"

// ErrModelNotFound is returned when a directory holds no ONNX graph, or a graph
// without its vocabulary.
var ErrModelNotFound = errors.New("no ONNX model found")

// Source identifies the model to load.
type Source struct {
	Kind Kind
	// Path is the local directory; for KindRemote it is set once the model is fetched.
	Path string
	Name string
}

// String returns a human-readable description used in logs and readiness output.
func (s Source) String() string {
	if s.Kind == KindLocal {
		return s.Path
	}
	return s.Name
}

// Resolve picks the model source. A non-empty dir always wins over name.
func Resolve(dir, name string) (Source, error) {
	if dir != "" {
		return Source{Kind: KindLocal, Path: dir, Name: filepath.Base(dir)}, nil
	}
	if name == "" {
		return Source{}, errors.New("neither a model directory nor a model name is configured")
	}
	return Source{Kind: KindRemote, Name: name}, nil
}

// Files are the resolved on-disk artifacts of a model.
type Files struct {
	Model string
	// Vocab is empty when the model has no vocab.txt.
	Vocab string
}

// Locate finds the ONNX graph and vocabulary inside dir. Azure mounts a registered
// model one level below AZUREML_MODEL_DIR, so a single subdirectory is searched too.
func Locate(dir string) (Files, error) {
	if files, err := locateIn(dir); err == nil {
		return files, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Files{}, fmt.Errorf("failed to read model dir: %w", err)
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "onnx" {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		}
	}
	if len(subdirs) == 1 {
		if files, err := locateIn(subdirs[0]); err == nil {
			return files, nil
		}
	}
	return Files{}, fmt.Errorf("%w in %s", ErrModelNotFound, dir)
}

// LocateComplete is Locate, but it also requires the vocabulary the graph was
// trained with. A graph without one cannot be served.
func LocateComplete(dir string) (Files, error) {
	files, err := Locate(dir)
	if err != nil {
		return Files{}, err
	}
	if files.Vocab == "" {
		return Files{}, fmt.Errorf("%w: no %s next to %s", ErrModelNotFound, VocabFile, files.Model)
	}
	return files, nil
}

func locateIn(dir string) (Files, error) {
	model, err := FindModelFile(dir)
	if err != nil {
		return Files{}, err
	}
	files := Files{Model: model}
	for _, candidate := range []string{filepath.Join(dir, VocabFile), filepath.Join(filepath.Dir(model), VocabFile)} {
		if fileExists(candidate) {
			files.Vocab = candidate
			break
		}
	}
	return files, nil
}

// FindModelFile returns model.onnx, onnx/model.onnx, or the only *.onnx file in dir.
func FindModelFile(dir string) (string, error) {
	for _, candidate := range []string{
		filepath.Join(dir, "model.onnx"),
		filepath.Join(dir, "onnx", "model.onnx"),
	} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if err != nil {
		return "", err
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous model: %d .onnx files in %s", len(matches), dir)
	}
	return "", fmt.Errorf("%w in %s", ErrModelNotFound, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
