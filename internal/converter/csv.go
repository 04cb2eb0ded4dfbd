package converter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
)

// csvEngine renders CSV content as a markdown table. The first record is
// treated as the header row.
type csvEngine struct{}

// NewCSVEngine creates a CSV-to-markdown-table engine.
func NewCSVEngine() Engine { return &csvEngine{} }

func (e *csvEngine) Name() string { return "csv" }

func (e *csvEngine) SupportedExtensions() []string {
	return []string{".csv"}
}

func (e *csvEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1 // ragged rows render as-is rather than erroring

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return &Result{Markdown: ""}, nil
	}

	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}

	var b strings.Builder
	writeRow(&b, records[0], width)
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, rec := range records[1:] {
		writeRow(&b, rec, width)
	}

	return &Result{Markdown: b.String()}, nil
}

func writeRow(b *strings.Builder, rec []string, width int) {
	b.WriteString("|")
	for i := 0; i < width; i++ {
		cell := ""
		if i < len(rec) {
			cell = rec[i]
		}
		cell = strings.ReplaceAll(cell, "|", "\\|")
		cell = strings.ReplaceAll(cell, "\n", " ")
		b.WriteString(" ")
		b.WriteString(cell)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}
