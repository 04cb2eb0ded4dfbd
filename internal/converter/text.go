package converter

import "context"

// markdownEngine passes markdown through unchanged.
type markdownEngine struct{}

// NewMarkdownEngine creates a passthrough engine for files that already
// are markdown.
func NewMarkdownEngine() Engine { return &markdownEngine{} }

func (e *markdownEngine) Name() string { return "markdown" }

func (e *markdownEngine) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

func (e *markdownEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	return &Result{Markdown: string(content)}, nil
}

// textEngine treats plain text as markdown. Valid markdown is a superset
// of plain text, so no escaping is applied.
type textEngine struct{}

// NewTextEngine creates a passthrough engine for plain-text files.
func NewTextEngine() Engine { return &textEngine{} }

func (e *textEngine) Name() string { return "text" }

func (e *textEngine) SupportedExtensions() []string {
	return []string{".txt", ".text"}
}

func (e *textEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	return &Result{Markdown: string(content)}, nil
}
