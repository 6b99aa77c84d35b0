//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXOptions mirrors the cgo build so callers compile either way.
type ONNXOptions struct {
	LibraryPath    string
	Dimensions     int
	IntraOpThreads int
	OutputName     string
}

// ONNXEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder returns an error when built without CGO (ONNX not available).
func NewONNXEncoder(_ string, _ ONNXOptions) (*ONNXEncoder, error) {
	return nil, errNoCGO
}

// Encode always fails without CGO.
func (e *ONNXEncoder) Encode(context.Context, *TokenBatch) (*HiddenStates, error) {
	return nil, errNoCGO
}

// Dimensions returns 0 without CGO.
func (e *ONNXEncoder) Dimensions() int { return 0 }

// Close is a no-op without CGO.
func (e *ONNXEncoder) Close() error { return nil }
