package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// RequestKind tags the Request union.
type RequestKind int

const (
	// Single embeds one text and answers {"embedding": [...]}.
	Single RequestKind = iota + 1
	// Batch embeds an ordered list and answers {"embeddings": [[...], ...]}.
	Batch
)

// Request is a parsed payload: {"text": "..."} or {"texts": [...]}.
type Request struct {
	Kind  RequestKind
	Text  string
	Texts []string
}

// Inputs returns the texts to embed, in order.
func (r *Request) Inputs() []string {
	if r.Kind == Single {
		return []string{r.Text}
	}
	return r.Texts
}

// ParseRequest decodes a raw JSON payload. "text" takes precedence over "texts".
// Non-string elements of "texts" are stringified rather than rejected.
func ParseRequest(raw []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, parseError(err)
	}
	if fields == nil {
		return nil, parseError(errors.New("payload must be a JSON object"))
	}

	if rawText, ok := fields["text"]; ok {
		var text string
		if err := json.Unmarshal(rawText, &text); err != nil || isNull(rawText) {
			return nil, validationError("'text' must be a string")
		}
		return &Request{Kind: Single, Text: text}, nil
	}

	if rawTexts, ok := fields["texts"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawTexts, &items); err != nil || isNull(rawTexts) {
			return nil, validationError("'texts' must be an array")
		}
		texts := make([]string, len(items))
		for i, item := range items {
			texts[i] = stringify(item)
		}
		return &Request{Kind: Batch, Texts: texts}, nil
	}

	return nil, ErrMissingInput
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// stringify renders a JSON value as text: strings as-is, numbers by their
// literal, booleans and null in Python spelling, containers as compact JSON.
func stringify(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case 't':
		return "True"
	case 'f':
		return "False"
	case 'n':
		return "None"
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	return strings.TrimSpace(string(trimmed))
}
