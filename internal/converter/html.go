package converter

import (
	"context"
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
)

// htmlEngine converts HTML to markdown in two stages: sanitize first to
// strip scripts, event handlers and javascript: URLs, then translate the
// remaining elements to markdown syntax.
type htmlEngine struct {
	policy    *bluemonday.Policy
	converter *md.Converter
}

// NewHTMLEngine creates an HTML-to-markdown engine. Input is sanitized
// with a UGC policy before conversion, so hostile markup never reaches
// the stored markdown.
func NewHTMLEngine() Engine {
	policy := bluemonday.UGCPolicy()
	policy.AllowDataURIImages()

	return &htmlEngine{
		policy:    policy,
		converter: md.NewConverter("", true, nil),
	}
}

func (e *htmlEngine) Name() string { return "html" }

func (e *htmlEngine) SupportedExtensions() []string {
	return []string{".html", ".htm"}
}

func (e *htmlEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	sanitized := e.policy.Sanitize(string(content))

	markdown, err := e.converter.ConvertString(sanitized)
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}
	return &Result{Markdown: markdown}, nil
}
