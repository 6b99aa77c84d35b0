package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/embedserve/internal/cache"
	"github.com/hyperjump/embedserve/internal/embedding"
)

const testVocab = "[PAD]\n[UNK]\n[CLS]\n[SEP]\nthe\nquick\nbrown\nfox\njump\n##s\nover\nlazy\ndog\n.\n"

func writeVocab(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vocab.txt")
	if err := os.WriteFile(path, []byte(testVocab), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Vectors written to the SQLite cache by one service are served to a fresh
// service without touching its encoder.
func TestIntegration_WordPieceWithSQLiteCache(t *testing.T) {
	dir := t.TempDir()
	tok, err := embedding.LoadWordPieceTokenizer(writeVocab(t, dir), true)
	if err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "vectors.db")
	ctx := context.Background()
	texts := []string{"The quick brown fox jumps.", "over the LAZY dog"}

	store, err := cache.NewSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	model := &Model{Tokenizer: tok, Encoder: embedding.NewMockEncoder(testDims), Name: "wordpiece-mock"}
	first := New(StaticLoader(model), Options{Cache: store})
	if err := first.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	want, err := first.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := store.Count(ctx); err != nil || n != 2 {
		t.Fatalf("cached rows = %d, %v; want 2", n, err)
	}
	_ = first.Close()
	_ = store.Close()

	store, err = cache.NewSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	broken := embedding.NewMockEncoder(testDims)
	broken.Err = errors.New("encoder must not be called")
	second := New(StaticLoader(&Model{Tokenizer: tok, Encoder: broken, Name: "wordpiece-mock"}), Options{Cache: store})
	if err := second.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	got, err := second.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("expected cache hits, got %v", err)
	}
	for i := range want {
		for d := range want[i] {
			if got[i][d] != want[i][d] {
				t.Fatalf("text %d dim %d: cached %v, computed %v", i, d, got[i][d], want[i][d])
			}
		}
	}

	// A new text misses the cache and reaches the failing encoder.
	resp := second.HandleRequest(ctx, []byte(`{"text":"brown dog"}`))
	if resp.Kind != KindInference || !strings.Contains(resp.Error, "encoding failed") {
		t.Errorf("got kind=%q error=%q", resp.Kind, resp.Error)
	}
}

func TestIntegration_UnknownWordsStillEmbed(t *testing.T) {
	tok, err := embedding.LoadWordPieceTokenizer(writeVocab(t, t.TempDir()), true)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(StaticLoader(&Model{Tokenizer: tok, Encoder: embedding.NewMockEncoder(testDims), Name: "m"}), Options{})
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	vecs, err := svc.Embed(context.Background(), []string{"zzz qqq", ""})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		if n := norm(v); n < 0.999 || n > 1.001 {
			t.Errorf("vector %d norm = %f", i, n)
		}
	}
}
