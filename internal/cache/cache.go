// Package cache stores computed embedding vectors keyed by model and text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Cache is a vector store keyed by Key(scope, text). A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

// Scope is every setting besides the text that changes the vector. Services
// that share a backend but differ in any field never see each other's entries.
type Scope struct {
	Model string
	// Tokenizer describes the tokenizer and its options, e.g. lowercasing.
	Tokenizer string
	MaxTokens int
	Pooling   string
}

// Key returns the content-addressed cache key for text embedded under scope.
func Key(scope Scope, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00", scope.Model, scope.Tokenizer, scope.MaxTokens, scope.Pooling)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// encodeVector packs vec as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
