// Package cli formats embedding results for the embedserve command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/embedserve/internal/service"
	"github.com/hyperjump/embedserve/pkg/utils"
)

// OutputFormat is the format for embed and similarity output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one vector per line as comma-separated values.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is the raw response document, as the server would send it.
	OutputJSON OutputFormat = "json"
)

// previewValues is how many leading components the text format shows.
const previewValues = 6

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// Vectors returns the embeddings carried by resp, in order.
func Vectors(resp *service.Response) [][]float32 {
	if resp.Embedding != nil {
		return [][]float32{resp.Embedding}
	}
	return resp.Embeddings
}

// WriteEmbedResult writes resp to w. inputs label the vectors in text format
// and may be shorter than the result.
func WriteEmbedResult(w io.Writer, inputs []string, resp *service.Response, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return json.NewEncoder(w).Encode(resp)
	case OutputCompact:
		if resp.Failed() {
			_, err := fmt.Fprintf(w, "error: %s\n", resp.Error)
			return err
		}
		for _, vec := range Vectors(resp) {
			if _, err := fmt.Fprintln(w, joinFloats(vec, ",")); err != nil {
				return err
			}
		}
		return nil
	default:
		writeEmbedText(w, inputs, resp)
		return nil
	}
}

func writeEmbedText(w io.Writer, inputs []string, resp *service.Response) {
	if resp.Failed() {
		if resp.Kind != "" {
			fmt.Fprintf(w, "Error (%s): %s\n", resp.Kind, resp.Error)
		} else {
			fmt.Fprintf(w, "Error: %s\n", resp.Error)
		}
		return
	}
	vecs := Vectors(resp)
	fmt.Fprintf(w, "\n%d embedding(s)\n\n", len(vecs))
	for i, vec := range vecs {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] dims: %d | norm: %.4f\n", i, len(vec), utils.L2Norm(vec))
		if i < len(inputs) {
			fmt.Fprintf(w, "Text: %s\n", utils.Truncate(inputs[i], 80))
		}
		head := vec
		suffix := ""
		if len(head) > previewValues {
			head = head[:previewValues]
			suffix = ", ..."
		}
		fmt.Fprintf(w, "[%s%s]\n", joinFloats(head, ", "), suffix)
		fmt.Fprintln(w)
	}
}

// Similarity is the result of comparing two texts.
type Similarity struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Cosine float64 `json:"cosine"`
}

// WriteSimilarity writes s to w in the given format.
func WriteSimilarity(w io.Writer, s Similarity, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return json.NewEncoder(w).Encode(s)
	case OutputCompact:
		_, err := fmt.Fprintf(w, "%.6f\n", s.Cosine)
		return err
	default:
		_, err := fmt.Fprintf(w, "cosine: %.4f\n  a: %s\n  b: %s\n",
			s.Cosine, utils.Truncate(s.A, 60), utils.Truncate(s.B, 60))
		return err
	}
}

func joinFloats(vec []float32, sep string) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(parts, sep)
}
