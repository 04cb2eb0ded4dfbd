package upload

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jmobrien1/document-markdown-converter/internal/domain"
	"github.com/jmobrien1/document-markdown-converter/internal/domain/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

func TestValidate(t *testing.T) {
	pdfHeader := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\nrest of document")
	zipHeader := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 60)...)
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name       string
		filename   string
		content    []byte
		wantReason string // substring of the validation error; empty means accept
	}{
		{
			name:     "valid pdf",
			filename: "report.pdf",
			content:  pdfHeader,
		},
		{
			name:       "fake pdf",
			filename:   "fake.pdf",
			content:    []byte("NOTPDF but claims to be one"),
			wantReason: "signature does not match",
		},
		{
			name:     "valid docx",
			filename: "notes.docx",
			content:  zipHeader,
		},
		{
			name:     "valid png for pro tier formats",
			filename: "scan.png",
			content:  pngHeader,
		},
		{
			name:       "png bytes with docx extension",
			filename:   "scan.docx",
			content:    pngHeader,
			wantReason: "signature does not match",
		},
		{
			name:       "executable extension",
			filename:   "payload.exe",
			content:    []byte("MZ\x90\x00"),
			wantReason: "unsupported file type",
		},
		{
			name:       "no extension",
			filename:   "README",
			content:    []byte("plain text"),
			wantReason: "no extension",
		},
		{
			name:     "plain text",
			filename: "notes.txt",
			content:  []byte("hello, this is plain text\nwith two lines\n"),
		},
		{
			name:     "markdown",
			filename: "doc.md",
			content:  []byte("# Title\n\nSome *markdown* content.\n"),
		},
		{
			name:       "binary disguised as text",
			filename:   "blob.txt",
			content:    []byte{0x00, 0xff, 0xfe, 0x00, 0xde, 0xad, 0xbe, 0xef},
			wantReason: "not valid UTF-8",
		},
		{
			name:     "valid json",
			filename: "data.json",
			content:  []byte(`{"key": "value", "n": 42}`),
		},
		{
			name:       "malformed json",
			filename:   "data.json",
			content:    []byte(`{"key": "value"`),
			wantReason: "invalid JSON",
		},
		{
			name:     "large json only sniffed",
			filename: "big.json",
			content:  append([]byte(`{"items": ["`), bytes.Repeat([]byte("x"), 2048)...),
		},
		{
			name:     "ole legacy doc",
			filename: "legacy.doc",
			content:  append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, bytes.Repeat([]byte{0}, 32)...),
		},
		{
			name:     "webp riff container",
			filename: "pic.webp",
			content:  []byte("RIFF\x24\x00\x00\x00WEBPVP8 "),
		},
		{
			name:       "riff but not webp",
			filename:   "pic.webp",
			content:    []byte("RIFF\x24\x00\x00\x00WAVEfmt "),
			wantReason: "signature does not match",
		},
	}

	v := newTestValidator(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.content)
			res, err := v.Validate(r, tt.filename)

			if tt.wantReason != "" {
				if err == nil {
					t.Fatalf("Validate(%q) = accept, want error containing %q", tt.filename, tt.wantReason)
				}
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("error %v is not a validation error", err)
				}
				if !strings.Contains(err.Error(), tt.wantReason) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantReason)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate(%q) error = %v", tt.filename, err)
			}
			if res == nil {
				t.Fatal("Validate returned nil result without error")
			}

			// The stream must be rewound for the storage write.
			rest, _ := io.ReadAll(r)
			if !bytes.Equal(rest, tt.content) {
				t.Errorf("stream not rewound: got %d bytes, want %d", len(rest), len(tt.content))
			}
		})
	}
}

func TestValidateCaseInsensitiveExtension(t *testing.T) {
	v := newTestValidator(t)

	r := bytes.NewReader([]byte("%PDF-1.4\n"))
	if _, err := v.Validate(r, "REPORT.PDF"); err != nil {
		t.Fatalf("Validate uppercase extension error = %v", err)
	}
}

func TestAllowedForTier(t *testing.T) {
	tests := []struct {
		ext  string
		tier models.Tier
		want bool
	}{
		{".docx", models.TierStandard, true},
		{".md", models.TierStandard, true},
		{".png", models.TierStandard, false},
		{".png", models.TierPro, true},
		{".pdf", models.TierPro, true},
		{".docx", models.TierPro, false},
		{".PDF", models.TierStandard, true},
	}

	for _, tt := range tests {
		if got := AllowedForTier(tt.ext, tt.tier); got != tt.want {
			t.Errorf("AllowedForTier(%q, %q) = %v, want %v", tt.ext, tt.tier, got, tt.want)
		}
	}
}
