package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/docsource"
	"github.com/lakeside-credit/spread-cli/internal/ocr"
)

// prepareDocument turns one local document into extraction job metadata.
// PDFs go through OCR, xlsx workbooks become structured fields, and plain
// text is passed through.
func prepareDocument(ctx context.Context, ocrx ocr.Extractor, path, hint string) (map[string]any, error) {
	meta := map[string]any{}
	if hint == "" {
		hint = hintFromName(path)
	}
	meta["doc_type_hint"] = hint

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := ocrx.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}
		meta["ocr_text"] = text
	case ".xlsx":
		fields, err := docsource.StructuredFields(path, hint)
		if err != nil {
			return nil, err
		}
		meta["structured_fields"] = fields
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		meta["ocr_text"] = string(data)
	default:
		return nil, eris.Errorf("unsupported document type: %s", path)
	}
	return meta, nil
}

// hintFromName guesses a doc type from the file name when none was given,
// e.g. "2023_balance_sheet.pdf" -> "balance_sheet".
func hintFromName(path string) string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, hint := range []string{
		"balance_sheet", "income_statement", "profit_and_loss", "tax_return",
		"rent_roll", "debt_schedule", "personal_financial_statement", "pfs",
	} {
		if strings.Contains(name, hint) {
			return hint
		}
	}
	return ""
}
