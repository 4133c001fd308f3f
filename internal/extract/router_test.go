package extract

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// fakeStore records fact writes. Unimplemented Store methods panic via the
// embedded nil interface, which is fine: router tests never reach them.
type fakeStore struct {
	store.Store
	facts      []model.Fact
	deleteN    int
	deleted    int
	upsertErr  error
	upsertHits int
}

func (f *fakeStore) UpsertFacts(_ context.Context, facts []model.Fact) ([]store.UpsertResult, error) {
	f.upsertHits++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.facts = append(f.facts, facts...)
	results := make([]store.UpsertResult, len(facts))
	for i, fact := range facts {
		results[i] = store.UpsertResult{FactKey: fact.FactKey, Inserted: true}
	}
	return results, nil
}

func (f *fakeStore) DeleteFactsForDocument(context.Context, string, string, string, model.FactType) (int, error) {
	f.deleted++
	return f.deleteN, nil
}

func (f *fakeStore) factsOfType(t model.FactType) []model.Fact {
	var out []model.Fact
	for _, fact := range f.facts {
		if fact.FactType == t {
			out = append(out, fact)
		}
	}
	return out
}

func TestRoute_BalanceSheetEndToEnd(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)

	res, err := r.Route(context.Background(), Input{
		TenantID:    "t1",
		CaseID:      "case-1",
		DocumentID:  "doc-1",
		DocTypeHint: "balance_sheet",
		OCRText:     "As of December 31, 2023\nTotal assets 1,250,000\nTotal liabilities 400,000\n",
	})
	require.NoError(t, err)
	assert.Equal(t, model.FactTypeBalanceSheet, res.DocType)
	assert.Equal(t, 2, res.FactsWritten)

	facts := st.factsOfType(model.FactTypeBalanceSheet)
	require.Len(t, facts, 2)
	for _, fact := range facts {
		assert.Equal(t, "t1", fact.TenantID)
		assert.Equal(t, "case-1", fact.CaseID)
		assert.Equal(t, "doc-1", fact.SourceDocumentID)
		assert.Equal(t, "USD", fact.Currency)
	}

	// Heartbeat recorded alongside the real facts.
	hb := st.factsOfType(model.FactTypeHeartbeat)
	require.Len(t, hb, 1)
	assert.Equal(t, "LAST_EXTRACTION", hb[0].FactKey)
	assert.Equal(t, "ok", hb[0].ValueText)
	assert.Equal(t, 2.0, *hb[0].ValueNum)
}

func TestRoute_UnmappedTypeIsNoOp(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)

	res, err := r.Route(context.Background(), Input{
		TenantID:    "t1",
		CaseID:      "case-1",
		DocumentID:  "doc-2",
		DocTypeHint: "utility_bill",
		OCRText:     "Total assets 1,000",
	})
	require.NoError(t, err)
	assert.Zero(t, res.FactsWritten)
	assert.Empty(t, res.DocType)

	// Only the heartbeat was written.
	assert.Empty(t, st.factsOfType(model.FactTypeBalanceSheet))
	hb := st.factsOfType(model.FactTypeHeartbeat)
	require.Len(t, hb, 1)
	assert.Equal(t, "unmapped_type", hb[0].ValueText)
}

func TestRoute_VocabularyFiltersUnknownKeys(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)
	r.extractors[model.FactTypeBalanceSheet] = &scriptedExtractor{
		docType: model.FactTypeBalanceSheet,
		vocab:   map[string]bool{"TOTAL_ASSETS": true},
		items: []model.ExtractedLineItem{
			{FactKey: "TOTAL_ASSETS", ValueNum: model.Num(100), Confidence: 0.9},
			{FactKey: "MADE_UP_KEY", ValueNum: model.Num(7), Confidence: 0.9},
		},
	}

	res, err := r.Route(context.Background(), Input{
		TenantID: "t1", CaseID: "case-1", DocumentID: "doc-3", DocTypeHint: "balance_sheet",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FactsWritten)

	facts := st.factsOfType(model.FactTypeBalanceSheet)
	require.Len(t, facts, 1)
	assert.Equal(t, "TOTAL_ASSETS", facts[0].FactKey)
}

func TestRoute_ParserErrorWritesNothing(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)
	r.extractors[model.FactTypeTaxReturn] = &scriptedExtractor{
		docType: model.FactTypeTaxReturn,
		err:     eris.New("garbled table"),
	}

	res, err := r.Route(context.Background(), Input{
		TenantID: "t1", CaseID: "case-1", DocumentID: "doc-4", DocTypeHint: "tax_return",
	})
	require.NoError(t, err, "parser failures degrade, they never abort the job")
	assert.Zero(t, res.FactsWritten)
	assert.Empty(t, st.factsOfType(model.FactTypeTaxReturn))

	hb := st.factsOfType(model.FactTypeHeartbeat)
	require.Len(t, hb, 1)
	assert.Equal(t, "parse_error", hb[0].ValueText)
}

func TestRoute_MultiRowReplacesPriorFacts(t *testing.T) {
	st := &fakeStore{deleteN: 4}
	r := NewRouter(st, PathDeterministic, nil)

	res, err := r.Route(context.Background(), Input{
		TenantID:    "t1",
		CaseID:      "case-1",
		DocumentID:  "doc-5",
		DocTypeHint: "rent_roll",
		StructuredFields: map[string]any{
			"units": []any{
				map[string]any{"unit": "101", "tenant": "Acme", "monthly_rent": float64(1200)},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.deleted, "prior rows cleared exactly once")
	assert.Greater(t, res.FactsWritten, 0)
}

func TestRoute_SingleColumnTypeDoesNotDelete(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)

	_, err := r.Route(context.Background(), Input{
		TenantID:    "t1",
		CaseID:      "case-1",
		DocumentID:  "doc-6",
		DocTypeHint: "income_statement",
		OCRText:     "Net income 50,000\n",
	})
	require.NoError(t, err)
	assert.Zero(t, st.deleted)
}

func TestRoute_LegacySelectedButMissing(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathLegacy, nil)

	res, err := r.Route(context.Background(), Input{
		TenantID: "t1", CaseID: "case-1", DocumentID: "doc-7", DocTypeHint: "balance_sheet",
	})
	require.NoError(t, err)
	assert.Zero(t, res.FactsWritten)

	hb := st.factsOfType(model.FactTypeHeartbeat)
	require.Len(t, hb, 1)
	assert.Equal(t, "parse_error", hb[0].ValueText)
}

type scriptedExtractor struct {
	docType model.FactType
	vocab   map[string]bool
	items   []model.ExtractedLineItem
	err     error
}

func (s *scriptedExtractor) DocType() model.FactType     { return s.docType }
func (s *scriptedExtractor) Vocabulary() map[string]bool { return s.vocab }
func (s *scriptedExtractor) MultiRow() bool              { return false }
func (s *scriptedExtractor) Parse(context.Context, Input) ([]model.ExtractedLineItem, error) {
	return s.items, s.err
}

func TestHeartbeat_UsesRouterClock(t *testing.T) {
	st := &fakeStore{}
	r := NewRouter(st, PathDeterministic, nil)
	fixed := model.Date(2024, time.March, 1)
	r.now = func() time.Time { return fixed }

	_, err := r.Route(context.Background(), Input{
		TenantID: "t1", CaseID: "case-1", DocumentID: "doc-8", DocTypeHint: "balance_sheet",
		OCRText: "Total assets 10\n",
	})
	require.NoError(t, err)

	hb := st.factsOfType(model.FactTypeHeartbeat)
	require.Len(t, hb, 1)
	require.NotNil(t, hb[0].PeriodEnd)
	assert.True(t, hb[0].PeriodEnd.Equal(fixed))
}
