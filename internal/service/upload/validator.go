// Package upload validates uploaded files before any storage write or
// queueing happens: rejection here is cheap, everything downstream costs
// money. Validation sniffs a bounded prefix of the stream and never
// consumes it.
package upload

import (
	"bytes"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

//go:embed signatures.yaml
var signatureFile embed.FS

// signaturePart is one byte run that must appear at a fixed offset.
type signaturePart struct {
	Hex    string `yaml:"hex"`
	Offset int    `yaml:"offset"`

	prefix []byte
}

type signature struct {
	Parts []signaturePart `yaml:"parts"`
}

type fileType struct {
	Extensions []string    `yaml:"extensions"`
	Signatures []signature `yaml:"signatures"`
	Text       bool        `yaml:"text"`
	JSON       bool        `yaml:"json"`
}

type signatureTable struct {
	SniffBytes int        `yaml:"sniff_bytes"`
	Types      []fileType `yaml:"types"`
}

// Result describes an accepted upload.
type Result struct {
	Extension string // normalized, with leading dot
	Text      bool   // content was checked as text, not by signature
}

// Validator checks an upload's claimed extension against its content
// signature. Safe for concurrent use; the table is immutable after load.
type Validator struct {
	sniffBytes int
	types      map[string]*fileType // key: extension with leading dot
}

// NewValidator loads the embedded signature table.
func NewValidator() (*Validator, error) {
	data, err := signatureFile.ReadFile("signatures.yaml")
	if err != nil {
		return nil, fmt.Errorf("read signature table: %w", err)
	}

	var table signatureTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("unmarshal signature table: %w", err)
	}
	if table.SniffBytes <= 0 {
		table.SniffBytes = 1024
	}

	v := &Validator{
		sniffBytes: table.SniffBytes,
		types:      make(map[string]*fileType),
	}

	for i := range table.Types {
		ft := &table.Types[i]
		for si := range ft.Signatures {
			for pi := range ft.Signatures[si].Parts {
				part := &ft.Signatures[si].Parts[pi]
				part.prefix, err = hex.DecodeString(part.Hex)
				if err != nil {
					return nil, fmt.Errorf("signature table: bad hex %q: %w", part.Hex, err)
				}
			}
		}
		for _, ext := range ft.Extensions {
			v.types[strings.ToLower(ext)] = ft
		}
	}

	return v, nil
}

// Standard and pro tiers accept different format sets: standard is what
// the local converters and the markitdown CLI handle, pro is what the
// document-AI service ingests.
var (
	standardExtensions = map[string]bool{
		".pdf": true, ".docx": true, ".doc": true, ".xlsx": true, ".xls": true,
		".pptx": true, ".txt": true, ".text": true, ".md": true, ".markdown": true,
		".html": true, ".htm": true, ".csv": true, ".json": true, ".xml": true,
		".epub": true, ".rtf": true,
	}
	proExtensions = map[string]bool{
		".pdf": true, ".gif": true, ".tiff": true, ".tif": true, ".jpg": true,
		".jpeg": true, ".png": true, ".bmp": true, ".webp": true, ".html": true,
		".htm": true,
	}
)

// AllowedForTier reports whether the extension is convertible on the
// given tier.
func AllowedForTier(ext string, tier models.Tier) bool {
	ext = strings.ToLower(ext)
	if tier == models.TierPro {
		return proExtensions[ext]
	}
	return standardExtensions[ext]
}

// Validate sniffs the stream's first bytes and checks them against the
// claimed extension. The reader is seeked back to the start on success
// so the caller can hand the same stream to storage. Every rejection is
// a domain.ValidationError with a specific reason.
func (v *Validator) Validate(r io.ReadSeeker, filename string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return nil, &domain.ValidationError{Message: "unsupported file type: filename has no extension"}
	}

	ft, ok := v.types[ext]
	if !ok {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unsupported file type: %s", ext)}
	}

	head := make([]byte, v.sniffBytes)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload prefix: %w", err)
	}
	head = head[:n]

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload stream: %w", err)
	}

	if ft.Text {
		if err := validateTextContent(head, ft.JSON, ext); err != nil {
			return nil, err
		}
		return &Result{Extension: ext, Text: true}, nil
	}

	if !matchesAny(head, ft.Signatures) {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("file signature does not match extension %s", ext),
		}
	}

	return &Result{Extension: ext}, nil
}

func matchesAny(head []byte, sigs []signature) bool {
	for _, sig := range sigs {
		if matchesAll(head, sig.Parts) {
			return true
		}
	}
	return false
}

func matchesAll(head []byte, parts []signaturePart) bool {
	for _, part := range parts {
		end := part.Offset + len(part.prefix)
		if end > len(head) || !bytes.Equal(head[part.Offset:end], part.prefix) {
			return false
		}
	}
	return true
}

// validateTextContent checks that a text-like upload actually decodes as
// text. Only the sniffed prefix is checked; a multi-byte rune cut off at
// the prefix boundary is tolerated.
func validateTextContent(head []byte, wantJSON bool, ext string) error {
	trimmed := head
	for len(trimmed) > 0 && !utf8.Valid(trimmed) {
		r, _ := utf8.DecodeLastRune(trimmed)
		if r != utf8.RuneError {
			break
		}
		// Possibly a rune split by the sniff boundary; drop the tail
		// byte and retry, but never more than one rune's worth.
		if len(head)-len(trimmed) >= utf8.UTFMax {
			break
		}
		trimmed = trimmed[:len(trimmed)-1]
	}
	if !utf8.Valid(trimmed) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("file appears to be binary, not valid UTF-8 text (%s)", ext),
		}
	}

	if wantJSON {
		// The prefix may truncate a large document; only complete
		// documents are parseable, so parse the full head and accept a
		// truncation-shaped failure only when the sniff window filled up.
		if !json.Valid(head) && len(head) < cap(head) {
			return &domain.ValidationError{Message: "invalid JSON format"}
		}
	}

	return nil
}
