package cache

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLite_GetSet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	c, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v; want miss", ok, err)
	}
	if err := c.Set(ctx, "k", []float32{0.5, -0.5}); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []float32{0.6, 0.8}); err != nil {
		t.Fatal(err)
	}
	vec, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get(k) = %v, %v", ok, err)
	}
	if len(vec) != 2 || vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("Get(k) = %v, want [0.6 0.8]", vec)
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []float32{1}); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, ok, err := reopened.Get(ctx, "k"); err != nil || !ok {
		t.Errorf("expected k after reopen, got ok=%v err=%v", ok, err)
	}
}
