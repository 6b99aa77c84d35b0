package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/modelsource"
)

func TestModelLoader_MissingLocalModel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Model.Dir = t.TempDir()
	config.ApplyDefaults(cfg)

	_, err := NewModelLoader(cfg, nil).Load(context.Background())
	if !errors.Is(err, modelsource.ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestModelLoader_MissingVocab(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("graph"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	cfg.Model.Dir = dir
	config.ApplyDefaults(cfg)

	_, err := NewModelLoader(cfg, nil).Load(context.Background())
	if !errors.Is(err, modelsource.ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
	if !strings.Contains(err.Error(), modelsource.VocabFile) {
		t.Errorf("err = %v, want it to name %s", err, modelsource.VocabFile)
	}
}

func TestModelLoader_InitializeFailureLeavesServiceUninitialized(t *testing.T) {
	cfg := &config.Config{}
	cfg.Model.Dir = t.TempDir()
	config.ApplyDefaults(cfg)

	svc := New(NewModelLoader(cfg, nil), Options{})
	if err := svc.Initialize(context.Background()); err == nil {
		t.Fatal("expected Initialize to fail without a model")
	}
	resp := svc.HandleRequest(context.Background(), []byte(`{"text": "hello"}`))
	if resp.Kind != KindUninitialized {
		t.Errorf("Kind = %s, want uninitialized", resp.Kind)
	}
}

func TestStaticLoader(t *testing.T) {
	m := NewMockModel(8)
	got, err := StaticLoader(m).Load(context.Background())
	if err != nil || got != m {
		t.Errorf("StaticLoader returned %v, %v", got, err)
	}
}
