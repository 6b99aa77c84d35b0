package embedding

import (
	"errors"
	"strings"
)

// Special token ids shared by BERT-style vocabularies.
const (
	padTokenID int64 = 0
	unkTokenID int64 = 100
	clsTokenID int64 = 101
	sepTokenID int64 = 102
)

var errEmptyBatch = errors.New("tokenize: empty batch")

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs. Its ids
// match no real vocabulary, so it only pairs with MockEncoder.
type SimpleTokenizer struct{}

// TokenizeBatch splits each text into words and pads all rows to the longest one.
func (t *SimpleTokenizer) TokenizeBatch(texts []string, maxTokens int) (*TokenBatch, error) {
	rows := make([][]int64, len(texts))
	for i, text := range texts {
		words := SplitWords(text)
		ids := make([]int64, len(words))
		for j, word := range words {
			ids[j] = int64(HashString(word)%29000) + 1000
		}
		rows[i] = ids
	}
	return packBatch(rows, maxTokens)
}

// packBatch wraps each row in [CLS] ... [SEP], truncates it to maxTokens and pads
// every row to the longest resulting length.
func packBatch(rows [][]int64, maxTokens int) (*TokenBatch, error) {
	if len(rows) == 0 {
		return nil, errEmptyBatch
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxTokens < 2 {
		maxTokens = 2
	}
	seqLen := 0
	for i, ids := range rows {
		if len(ids) > maxTokens-2 {
			rows[i] = ids[:maxTokens-2]
		}
		if n := len(rows[i]) + 2; n > seqLen {
			seqLen = n
		}
	}

	b := &TokenBatch{
		InputIDs:      make([]int64, len(rows)*seqLen),
		AttentionMask: make([]int64, len(rows)*seqLen),
		TokenTypeIDs:  make([]int64, len(rows)*seqLen),
		Batch:         len(rows),
		SeqLen:        seqLen,
	}
	for i, ids := range rows {
		off := i * seqLen
		b.InputIDs[off] = clsTokenID
		b.AttentionMask[off] = 1
		pos := 1
		for _, id := range ids {
			b.InputIDs[off+pos] = id
			b.AttentionMask[off+pos] = 1
			pos++
		}
		b.InputIDs[off+pos] = sepTokenID
		b.AttentionMask[off+pos] = 1
		for pos++; pos < seqLen; pos++ {
			b.InputIDs[off+pos] = padTokenID
		}
	}
	return b, nil
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		// -MinInt overflows back to MinInt
		h = 0
	}
	return h
}
