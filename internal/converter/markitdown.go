package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMarkitdownTimeout bounds a single CLI conversion.
const DefaultMarkitdownTimeout = 2 * time.Minute

// ErrMarkitdownNotInstalled is returned when the markitdown binary is
// not on PATH.
var ErrMarkitdownNotInstalled = errors.New("markitdown binary not found")

// MarkitdownEngine shells out to the markitdown CLI for binary office
// formats. The CLI keys its parser off the file extension, so content is
// staged in a temp file that preserves the original extension.
type MarkitdownEngine struct {
	binary  string
	timeout time.Duration
	tempDir string
}

// MarkitdownOption configures the engine.
type MarkitdownOption func(*MarkitdownEngine)

// WithMarkitdownBinary overrides the binary name, for tests and
// non-standard installs.
func WithMarkitdownBinary(path string) MarkitdownOption {
	return func(e *MarkitdownEngine) { e.binary = path }
}

// WithMarkitdownTimeout overrides the per-conversion timeout.
func WithMarkitdownTimeout(d time.Duration) MarkitdownOption {
	return func(e *MarkitdownEngine) { e.timeout = d }
}

// NewMarkitdownEngine creates the CLI engine.
func NewMarkitdownEngine(opts ...MarkitdownOption) *MarkitdownEngine {
	e := &MarkitdownEngine{
		binary:  "markitdown",
		timeout: DefaultMarkitdownTimeout,
		tempDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *MarkitdownEngine) Name() string { return "markitdown" }

func (e *MarkitdownEngine) SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".doc", ".xlsx", ".xls", ".pptx", ".epub", ".rtf", ".xml", ".json"}
}

func (e *MarkitdownEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return nil, ErrMarkitdownNotInstalled
	}

	ext := strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp(e.tempDir, "convert-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("stage temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, tmp.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("markitdown timed out after %s", e.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("markitdown failed: %s", detail)
	}

	return &Result{Markdown: stdout.String()}, nil
}
