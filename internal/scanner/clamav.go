// Package scanner runs uploaded documents through ClamAV before
// conversion. The scan is advisory infrastructure: an absent scanner
// degrades to a logged skip, but a present scanner that errors or times
// out fails closed.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultScanTimeout bounds a single clamscan invocation.
const DefaultScanTimeout = 30 * time.Second

// Verdict is the outcome of a scan.
type Verdict int

const (
	// VerdictClean means the file passed, or the scanner is not
	// installed and the scan was skipped.
	VerdictClean Verdict = iota
	// VerdictInfected means ClamAV matched a signature. The artifact
	// must be deleted and the job failed.
	VerdictInfected
	// VerdictError means the scanner is installed but could not deliver
	// a verdict (crashed, timed out). Fails closed.
	VerdictError
)

// Scan is a scan result.
type Scan struct {
	Verdict Verdict
	// Signature is the matched signature name for infected files.
	Signature string
	// Detail carries the scanner error for VerdictError.
	Detail string
}

// Scanner shells out to clamscan.
type Scanner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the scanner.
type Option func(*Scanner)

// WithBinary overrides the clamscan binary, for tests.
func WithBinary(path string) Option {
	return func(s *Scanner) { s.binary = path }
}

// WithTimeout overrides the per-scan timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.timeout = d }
}

// New creates a ClamAV scanner.
func New(logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		binary:  "clamscan",
		timeout: DefaultScanTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanBytes stages the content in a temp file and scans it. A missing
// clamscan binary returns VerdictClean with a logged skip so deployments
// without ClamAV still convert.
func (s *Scanner) ScanBytes(ctx context.Context, content []byte, name string) Scan {
	if _, err := exec.LookPath(s.binary); err != nil {
		s.logger.Warn("ClamAV not available, scan skipped", "file", name)
		return Scan{Verdict: VerdictClean}
	}

	tmp, err := os.CreateTemp("", "scan-*")
	if err != nil {
		return Scan{Verdict: VerdictError, Detail: fmt.Sprintf("stage temp file: %v", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return Scan{Verdict: VerdictError, Detail: fmt.Sprintf("write temp file: %v", err)}
	}
	if err := tmp.Close(); err != nil {
		return Scan{Verdict: VerdictError, Detail: fmt.Sprintf("close temp file: %v", err)}
	}

	return s.scanPath(ctx, tmp.Name(), name)
}

func (s *Scanner) scanPath(ctx context.Context, path, name string) Scan {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, "--no-summary", "--infected", path)
	cmd.Stdout = &stdout

	err := cmd.Run()
	if err == nil {
		return Scan{Verdict: VerdictClean}
	}

	if ctx.Err() == context.DeadlineExceeded {
		s.logger.Error("virus scan timed out", "file", name, "timeout", s.timeout)
		return Scan{Verdict: VerdictError, Detail: "virus scan timed out"}
	}

	// clamscan exits 1 when a signature matched, anything else is a
	// scanner failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		sig := parseSignature(stdout.String())
		s.logger.Warn("infected upload rejected", "file", name, "signature", sig)
		return Scan{Verdict: VerdictInfected, Signature: sig}
	}

	s.logger.Error("virus scan failed", "file", name, "error", err)
	return Scan{Verdict: VerdictError, Detail: fmt.Sprintf("virus scan failed: %v", err)}
}

// parseSignature pulls the signature name out of clamscan's
// "<path>: <Signature> FOUND" line.
func parseSignature(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, " FOUND") {
			continue
		}
		line = strings.TrimSuffix(line, " FOUND")
		if i := strings.LastIndex(line, ": "); i >= 0 {
			return line[i+2:]
		}
		return line
	}
	return "unknown"
}
