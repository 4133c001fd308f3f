// Package extract turns OCR text and structured document fields into
// normalized financial facts. Each document type has a dedicated extractor
// with a closed fact-key vocabulary; anything a parser produces outside that
// vocabulary is dropped before it can reach the store.
package extract

import (
	"context"
	"time"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// PathStrategy selects which extraction path a single call uses. The two
// paths are never mixed within one call.
type PathStrategy string

const (
	// PathDeterministic matches structured fields first, then labeled
	// amounts in raw OCR text at reduced confidence.
	PathDeterministic PathStrategy = "deterministic"
	// PathLegacy delegates to the external text-to-structured-JSON service
	// and parses its response under a strict schema.
	PathLegacy PathStrategy = "legacy"
)

// Confidence levels by extraction path.
const (
	confidenceStructured = 0.95
	confidenceTextMatch  = 0.70
)

// substantialOCRText is the text length above which a zero-fact extraction is
// suspicious enough to warn about.
const substantialOCRText = 200

// Input is one extraction request for a single source document.
type Input struct {
	TenantID         string
	CaseID           string
	DocumentID       string
	OCRText          string
	StructuredFields map[string]any // opaque blob from a document-understanding service
	DocTypeHint      string         // used when classification is absent
	PeriodStart      *time.Time     // caller-known reporting period, if any
	PeriodEnd        *time.Time
}

// Result reports what one extraction call produced.
type Result struct {
	FactsWritten int
	DocType      model.FactType
	Path         PathStrategy
}

// Extractor parses one document type into line items.
type Extractor interface {
	// DocType is the fact type this extractor produces.
	DocType() model.FactType
	// Vocabulary is the closed set of fact keys this extractor may emit.
	Vocabulary() map[string]bool
	// Parse produces line items from the input. Items with out-of-vocabulary
	// keys are discarded by the router, not by the extractor.
	Parse(ctx context.Context, in Input) ([]model.ExtractedLineItem, error)
	// MultiRow reports whether this document type produces row sets that
	// require cleanup of prior facts before re-extraction (e.g. rent rolls).
	MultiRow() bool
}
