// Package converter turns stored documents into markdown. A registry
// routes by file extension: lightweight formats convert in-process,
// binary office formats shell out to the markitdown CLI, and the pro
// path calls the external document-AI service.
package converter

import "context"

// Result is a finished conversion.
type Result struct {
	Markdown string
	// Pages is the page count reported by the engine, when it knows one.
	// Zero means unknown; only the document-AI engine reports pages.
	Pages int
}

// Engine converts one family of file formats to markdown.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// SupportedExtensions lists the extensions this engine handles,
	// lowercase with leading dot.
	SupportedExtensions() []string

	// Convert transforms the document content to markdown. The filename
	// carries the extension some engines need to interpret the bytes.
	Convert(ctx context.Context, filename string, content []byte) (*Result, error)
}
