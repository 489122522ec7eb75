package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MarkdownCapability renders Markdown to an HTML fragment and exposes it as a
// CommonJS string module.
type MarkdownCapability struct {
	md goldmark.Markdown
}

// NewMarkdownCapability creates a GFM-enabled renderer.
func NewMarkdownCapability() *MarkdownCapability {
	return &MarkdownCapability{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (m *MarkdownCapability) Transform(_ context.Context, in Input) (Output, error) {
	var buf bytes.Buffer
	if err := m.md.Convert(in.Content, &buf); err != nil {
		return Output{}, fmt.Errorf("render markdown: %w", err)
	}
	lit, err := json.Marshal(buf.String())
	if err != nil {
		return Output{}, err
	}
	code := append([]byte("module.exports = "), lit...)
	code = append(code, ";\n"...)
	return Output{Kind: KindScript, Content: code}, nil
}
