package embedding

import (
	"errors"
	"fmt"
	"math"
)

// MinNorm is the smallest pooled-vector norm that is still normalized. Anything
// below it is reported as ErrDegenerateVector instead of being divided.
const MinNorm = 1e-12

// ErrDegenerateVector is returned when a vector cannot be normalized.
var ErrDegenerateVector = errors.New("degenerate embedding: norm too small or non-finite")

// PoolingMode selects which token positions are averaged.
type PoolingMode string

const (
	// PoolMasked averages only the positions the attention mask marks as real
	// tokens. Vectors do not depend on what else was in the batch.
	PoolMasked PoolingMode = "masked"
	// PoolAll averages every position including padding, matching exports that
	// were validated against unmasked pooling. Vectors of padded items depend on
	// the longest item in their batch.
	PoolAll PoolingMode = "all"
)

// ParsePoolingMode validates a configured mode. Empty selects PoolMasked.
func ParsePoolingMode(s string) (PoolingMode, error) {
	switch PoolingMode(s) {
	case "", PoolMasked:
		return PoolMasked, nil
	case PoolAll:
		return PoolAll, nil
	}
	return "", fmt.Errorf("unknown pooling mode %q (want %q or %q)", s, PoolMasked, PoolAll)
}

// MeanPool averages the token vectors of one item over the positions where mask
// is 1. tokens is [len(mask)*hidden].
func MeanPool(tokens []float32, mask []int64, hidden int) ([]float32, error) {
	if hidden <= 0 || len(tokens) != len(mask)*hidden {
		return nil, fmt.Errorf("mean pool: %d values do not match %d tokens of size %d", len(tokens), len(mask), hidden)
	}
	sum := make([]float64, hidden)
	count := 0
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		row := tokens[pos*hidden : (pos+1)*hidden]
		for i, v := range row {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil, errors.New("mean pool: no attended tokens")
	}
	out := make([]float32, hidden)
	for i, v := range sum {
		out[i] = float32(v / float64(count))
	}
	return out, nil
}

// NormalizeL2 scales x in place to unit Euclidean norm.
func NormalizeL2(x []float32) error {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm < MinNorm {
		return ErrDegenerateVector
	}
	inv := 1 / norm
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
	return nil
}

// Pool mean-pools and normalizes every item of a batch.
func Pool(hidden *HiddenStates, batch *TokenBatch, mode PoolingMode) ([][]float32, error) {
	if hidden.Batch != batch.Batch || hidden.SeqLen != batch.SeqLen {
		return nil, fmt.Errorf("encoder output shape [%d,%d,%d] does not match batch [%d,%d]",
			hidden.Batch, hidden.SeqLen, hidden.Hidden, batch.Batch, batch.SeqLen)
	}
	var all []int64
	if mode == PoolAll {
		all = make([]int64, batch.SeqLen)
		for i := range all {
			all[i] = 1
		}
	}
	out := make([][]float32, batch.Batch)
	for i := 0; i < batch.Batch; i++ {
		mask := batch.Mask(i)
		if all != nil {
			mask = all
		}
		vec, err := MeanPool(hidden.Row(i), mask, hidden.Hidden)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if err := NormalizeL2(vec); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
