// Package embedding provides the tokenizer and encoder collaborators behind the
// embedding service, plus mean pooling and L2 normalization of encoder output.
package embedding

import "context"

// DefaultMaxTokens is the truncation length applied to every tokenized sequence.
const DefaultMaxTokens = 8192

// TokenBatch is a padded batch of tokenized texts. All slices are row-major
// [Batch*SeqLen]; padded positions have attention mask 0.
type TokenBatch struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Batch         int
	SeqLen        int
}

// Mask returns the attention mask row for item i.
func (b *TokenBatch) Mask(i int) []int64 {
	return b.AttentionMask[i*b.SeqLen : (i+1)*b.SeqLen]
}

// HiddenStates holds per-token encoder output, row-major [Batch*SeqLen*Hidden].
type HiddenStates struct {
	Data   []float32
	Batch  int
	SeqLen int
	Hidden int
}

// Row returns the [SeqLen*Hidden] token vectors for item i.
func (h *HiddenStates) Row(i int) []float32 {
	n := h.SeqLen * h.Hidden
	return h.Data[i*n : (i+1)*n]
}

// Tokenizer converts texts into a padded, truncated token batch.
type Tokenizer interface {
	TokenizeBatch(texts []string, maxTokens int) (*TokenBatch, error)
}

// Encoder runs the model over a token batch and returns per-token hidden states.
type Encoder interface {
	Encode(ctx context.Context, batch *TokenBatch) (*HiddenStates, error)
	// Dimensions returns the hidden size, or 0 if it is only known after the first run.
	Dimensions() int
	Close() error
}
