package embedding

import (
	"context"
	"math"
)

// MockEncoder is a deterministic encoder for tests. Each token's hidden vector is
// derived from its id, so the same text always gets the same embedding regardless
// of what else is in the batch.
type MockEncoder struct {
	dimensions int
	// Err, when set, is returned by every Encode call.
	Err error
}

// NewMockEncoder returns an encoder producing hidden states of the given size.
func NewMockEncoder(dimensions int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEncoder{dimensions: dimensions}
}

// Encode fills [batch, seq, hidden] with values derived from each token id.
func (e *MockEncoder) Encode(ctx context.Context, batch *TokenBatch) (*HiddenStates, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := make([]float32, batch.Batch*batch.SeqLen*e.dimensions)
	for pos, id := range batch.InputIDs {
		row := data[pos*e.dimensions : (pos+1)*e.dimensions]
		for d := range row {
			row[d] = float32(math.Sin(float64(id)*float64(d+1))*0.1 + 0.01)
		}
	}
	return &HiddenStates{Data: data, Batch: batch.Batch, SeqLen: batch.SeqLen, Hidden: e.dimensions}, nil
}

// Dimensions returns the hidden size.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}
