package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// Router classifies documents, dispatches to the matching extractor, filters
// output against the extractor's vocabulary, and persists the surviving facts.
type Router struct {
	store      store.Store
	extractors map[model.FactType]Extractor
	legacy     *LegacyExtractor // nil unless the legacy path is configured
	path       PathStrategy
	now        func() time.Time
}

// NewRouter builds a router over the standard extractor set.
func NewRouter(st store.Store, path PathStrategy, legacy *LegacyExtractor) *Router {
	r := &Router{
		store:      st,
		extractors: make(map[model.FactType]Extractor),
		legacy:     legacy,
		path:       path,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, e := range []Extractor{
		NewBalanceSheetExtractor(),
		NewIncomeStatementExtractor(),
		NewTaxReturnExtractor(),
		NewRentRollExtractor(),
		NewDebtScheduleExtractor(),
		NewPersonalFinancialStatementExtractor(),
	} {
		r.extractors[e.DocType()] = e
	}
	return r
}

// docTypeHints maps classifier labels to fact types. Unknown labels make the
// whole extraction a recorded no-op, not an error.
var docTypeHints = map[string]model.FactType{
	"balance_sheet":                model.FactTypeBalanceSheet,
	"income_statement":             model.FactTypeIncomeStatement,
	"profit_and_loss":              model.FactTypeIncomeStatement,
	"tax_return":                   model.FactTypeTaxReturn,
	"rent_roll":                    model.FactTypeRentRoll,
	"debt_schedule":                model.FactTypeDebtSchedule,
	"personal_financial_statement": model.FactTypePersonalFinancial,
	"pfs":                          model.FactTypePersonalFinancial,
}

// Route runs one extraction end to end. Parser failures are caught and
// degrade to zero facts written; they never abort the pipeline job. The
// heartbeat records the attempt either way.
func (r *Router) Route(ctx context.Context, in Input) (*Result, error) {
	docType, ok := docTypeHints[strings.ToLower(strings.TrimSpace(in.DocTypeHint))]
	if !ok {
		zap.L().Info("extract: unmapped document type, skipping",
			zap.String("doc_type_hint", in.DocTypeHint),
			zap.String("document_id", in.DocumentID))
		r.writeHeartbeat(in, "", 0, "unmapped_type")
		return &Result{Path: r.path}, nil
	}

	extractor := r.extractors[docType]
	items, err := r.parse(ctx, extractor, in)
	if err != nil {
		zap.L().Error("extract: parser failed, zero facts written",
			zap.String("doc_type", string(docType)),
			zap.String("document_id", in.DocumentID),
			zap.Error(err))
		r.writeHeartbeat(in, docType, 0, "parse_error")
		return &Result{DocType: docType, Path: r.path}, nil
	}

	facts := r.toFacts(docType, in, r.filterVocabulary(extractor, items, in))

	if extractor.MultiRow() && len(facts) > 0 {
		deleted, delErr := r.store.DeleteFactsForDocument(ctx, in.TenantID, in.CaseID, in.DocumentID, docType)
		if delErr != nil {
			return &Result{DocType: docType, Path: r.path}, eris.Wrapf(delErr, "extract: clear prior rows for document %s", in.DocumentID)
		}
		if deleted > 0 {
			zap.L().Debug("extract: replaced prior row set",
				zap.String("document_id", in.DocumentID),
				zap.Int("deleted", deleted))
		}
	}

	written := 0
	if len(facts) > 0 {
		results, upErr := r.store.UpsertFacts(ctx, facts)
		if upErr != nil {
			r.writeHeartbeat(in, docType, 0, "store_error")
			return &Result{DocType: docType, Path: r.path}, eris.Wrapf(upErr, "extract: persist facts for document %s", in.DocumentID)
		}
		written = len(results)
	}

	// A zero-fact extraction over substantial OCR text means the parser is
	// likely missing the document's layout. Operational warning, not failure.
	if written == 0 {
		log := zap.L().Info
		if len(in.OCRText) >= substantialOCRText {
			log = zap.L().Warn
		}
		log("extract: document produced no facts",
			zap.String("doc_type", string(docType)),
			zap.String("document_id", in.DocumentID),
			zap.Int("ocr_text_len", len(in.OCRText)),
			zap.String("path", string(r.path)))
	}

	r.writeHeartbeat(in, docType, written, "ok")
	return &Result{FactsWritten: written, DocType: docType, Path: r.path}, nil
}

// parse dispatches to the configured path. Paths are never mixed per call.
func (r *Router) parse(ctx context.Context, extractor Extractor, in Input) ([]model.ExtractedLineItem, error) {
	if r.path == PathLegacy {
		if r.legacy == nil {
			return nil, eris.New("extract: legacy path selected but not configured")
		}
		return r.legacy.Parse(ctx, extractor, in)
	}
	return extractor.Parse(ctx, in)
}

// filterVocabulary drops out-of-vocabulary items. Per-unit keys carry a
// ":<unit>" suffix; only the base key is checked.
func (r *Router) filterVocabulary(extractor Extractor, items []model.ExtractedLineItem, in Input) []model.ExtractedLineItem {
	vocab := extractor.Vocabulary()
	kept := items[:0]
	for _, item := range items {
		base, _, _ := strings.Cut(item.FactKey, ":")
		if !vocab[base] {
			zap.L().Warn("extract: dropped out-of-vocabulary fact key",
				zap.String("fact_key", item.FactKey),
				zap.String("document_id", in.DocumentID))
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (r *Router) toFacts(docType model.FactType, in Input, items []model.ExtractedLineItem) []model.Fact {
	facts := make([]model.Fact, 0, len(items))
	for _, item := range items {
		facts = append(facts, model.Fact{
			TenantID:         in.TenantID,
			CaseID:           in.CaseID,
			SourceDocumentID: in.DocumentID,
			FactType:         docType,
			FactKey:          item.FactKey,
			PeriodStart:      item.PeriodStart,
			PeriodEnd:        item.PeriodEnd,
			ValueNum:         item.ValueNum,
			ValueText:        item.ValueText,
			Currency:         "USD",
			Confidence:       item.Confidence,
			Provenance:       item.Provenance,
		})
	}
	return facts
}

// writeHeartbeat records the extraction attempt as a detached fact. Failures
// are logged, never returned: a heartbeat must not fail the extraction, and
// the extraction outcome must not depend on the heartbeat.
func (r *Router) writeHeartbeat(in Input, docType model.FactType, written int, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := r.now()
	_, err := r.store.UpsertFacts(ctx, []model.Fact{{
		TenantID:         in.TenantID,
		CaseID:           in.CaseID,
		SourceDocumentID: in.DocumentID,
		FactType:         model.FactTypeHeartbeat,
		FactKey:          "LAST_EXTRACTION",
		PeriodEnd:        &now,
		ValueNum:         model.Num(float64(written)),
		ValueText:        outcome,
		Confidence:       1.0,
		Provenance: model.Provenance{
			SourceKind: "computed",
			SourceRef:  in.DocumentID,
			Extractor:  string(docType),
			Path:       string(r.path),
			Citations:  []string{fmt.Sprintf("ocr_text_len=%d", len(in.OCRText))},
		},
	}})
	if err != nil {
		zap.L().Warn("extract: heartbeat write failed",
			zap.String("document_id", in.DocumentID),
			zap.Error(err))
	}
}
