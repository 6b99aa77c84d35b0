package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxWordChars = 100

// WordPieceTokenizer implements BERT basic tokenization followed by greedy
// longest-match-first WordPiece against a vocab.txt.
type WordPieceTokenizer struct {
	vocab     map[string]int64
	lowercase bool
	unkID     int64
	clsID     int64
	sepID     int64
}

// LoadWordPieceTokenizer reads a one-token-per-line vocab file.
func LoadWordPieceTokenizer(vocabPath string, lowercase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if _, dup := vocab[token]; !dup {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	return NewWordPieceTokenizer(vocab, lowercase)
}

// NewWordPieceTokenizer builds a tokenizer from an in-memory vocabulary. The
// vocabulary must contain [UNK], [CLS] and [SEP].
func NewWordPieceTokenizer(vocab map[string]int64, lowercase bool) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{vocab: vocab, lowercase: lowercase}
	for _, sp := range []struct {
		token string
		dst   *int64
	}{{"[UNK]", &t.unkID}, {"[CLS]", &t.clsID}, {"[SEP]", &t.sepID}} {
		id, ok := vocab[sp.token]
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", sp.token)
		}
		*sp.dst = id
	}
	return t, nil
}

// VocabSize returns the number of distinct tokens.
func (t *WordPieceTokenizer) VocabSize() int {
	return len(t.vocab)
}

// TokenizeBatch tokenizes every text and pads the batch to its longest row.
func (t *WordPieceTokenizer) TokenizeBatch(texts []string, maxTokens int) (*TokenBatch, error) {
	rows := make([][]int64, len(texts))
	for i, text := range texts {
		rows[i] = t.encode(text)
	}
	b, err := packBatch(rows, maxTokens)
	if err != nil {
		return nil, err
	}
	if t.clsID != clsTokenID || t.sepID != sepTokenID {
		for i := 0; i < b.Batch; i++ {
			off := i * b.SeqLen
			b.InputIDs[off] = t.clsID
			for j := b.SeqLen - 1; j > 0; j-- {
				if b.AttentionMask[off+j] == 1 {
					b.InputIDs[off+j] = t.sepID
					break
				}
			}
		}
	}
	return b, nil
}

// Tokens returns the WordPiece tokens for text, without special tokens.
func (t *WordPieceTokenizer) Tokens(text string) []string {
	var out []string
	for _, word := range t.basicTokens(text) {
		out = append(out, t.wordPieces(word)...)
	}
	return out
}

func (t *WordPieceTokenizer) encode(text string) []int64 {
	tokens := t.Tokens(text)
	ids := make([]int64, len(tokens))
	for i, tok := range tokens {
		if id, ok := t.vocab[tok]; ok {
			ids[i] = id
		} else {
			ids[i] = t.unkID
		}
	}
	return ids
}

// basicTokens cleans text, optionally lowercases and strips accents, and splits
// on whitespace, punctuation and CJK characters.
func (t *WordPieceTokenizer) basicTokens(text string) []string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
			continue
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		case isCJK(r):
			sb.WriteRune(' ')
			sb.WriteRune(r)
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}

	var tokens []string
	for _, word := range strings.Fields(sb.String()) {
		if t.lowercase {
			word = stripAccents(strings.ToLower(word))
		}
		tokens = append(tokens, splitPunct(word)...)
	}
	return tokens
}

func (t *WordPieceTokenizer) wordPieces(word string) []string {
	chars := []rune(word)
	if len(chars) > maxWordChars {
		return []string{"[UNK]"}
	}
	var pieces []string
	start := 0
	for start < len(chars) {
		end := len(chars)
		found := ""
		for start < end {
			sub := string(chars[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				found = sub
				break
			}
			end--
		}
		if found == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

func splitPunct(word string) []string {
	var out []string
	var cur []rune
	for _, r := range word {
		if isPunct(r) {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			out = append(out, string(r))
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func stripAccents(s string) string {
	var sb strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}

// isPunct treats all non-alphanumeric ASCII as punctuation, as BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
