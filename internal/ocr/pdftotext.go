package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/config"
)

// defaultPdfToTextTimeout bounds a single conversion. Intake PDFs are small;
// a hung poppler process must not stall the worker loop.
const defaultPdfToTextTimeout = 2 * time.Minute

// PdfToText shells out to poppler's pdftotext. It is the offline provider
// for intake documents that never leave the host.
type PdfToText struct {
	binPath string
	timeout time.Duration
}

// NewPdfToText builds the local extractor from OCR config. An empty path
// falls back to pdftotext on PATH.
func NewPdfToText(cfg config.OCRConfig) *PdfToText {
	bin := cfg.PdfToTextPath
	if bin == "" {
		bin = "pdftotext"
	}
	timeout := cfg.PdfToTextTimeout
	if timeout <= 0 {
		timeout = defaultPdfToTextTimeout
	}
	return &PdfToText{binPath: bin, timeout: timeout}
}

// ExtractText runs pdftotext -layout and returns stdout. Form feeds between
// pages are normalized to blank lines so that the line-oriented extractors
// downstream see page breaks as paragraph breaks.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return strings.ReplaceAll(stdout.String(), "\f", "\n\n"), nil
}
