package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/pkg/anthropic"
)

// stubClient returns a canned message response.
type stubClient struct {
	anthropic.Client
	text string
	err  error
	reqs []anthropic.MessageRequest
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.text}},
	}, nil
}

func TestLegacyParse_ValidResponse(t *testing.T) {
	client := &stubClient{text: `[
		{"fact_key": "TOTAL_ASSETS", "value_num": 1250000, "confidence": 0.88, "period_end": "2023-12-31", "citation": "Total assets 1,250,000"},
		{"fact_key": "TOTAL_LIABILITIES", "value_num": 400000, "confidence": 0.85}
	]`}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	items, err := l.Parse(context.Background(), NewBalanceSheetExtractor(), Input{DocumentID: "doc-1", OCRText: "..."})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "TOTAL_ASSETS", items[0].FactKey)
	assert.Equal(t, 1250000.0, *items[0].ValueNum)
	assert.Equal(t, 0.88, items[0].Confidence)
	assert.Equal(t, "llm", items[0].Provenance.SourceKind)
	assert.Equal(t, []string{"Total assets 1,250,000"}, items[0].Provenance.Citations)
	require.NotNil(t, items[0].PeriodEnd)
	assert.True(t, items[0].PeriodEnd.Equal(model.Date(2023, time.December, 31)))

	// Missing period_end falls back to the sentinel.
	require.NotNil(t, items[1].PeriodEnd)
	assert.True(t, items[1].PeriodEnd.Equal(model.SentinelPeriodEnd))
}

func TestLegacyParse_FencedResponse(t *testing.T) {
	client := &stubClient{text: "```json\n[{\"fact_key\": \"NET_INCOME\", \"value_num\": 5, \"confidence\": 0.9}]\n```"}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	items, err := l.Parse(context.Background(), NewIncomeStatementExtractor(), Input{DocumentID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "NET_INCOME", items[0].FactKey)
}

func TestLegacyParse_RejectsUnknownFields(t *testing.T) {
	client := &stubClient{text: `[{"fact_key": "NET_INCOME", "value_num": 5, "confidence": 0.9, "explanation": "because"}]`}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	_, err := l.Parse(context.Background(), NewIncomeStatementExtractor(), Input{DocumentID: "doc-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestLegacyParse_RejectsBadConfidence(t *testing.T) {
	client := &stubClient{text: `[{"fact_key": "NET_INCOME", "value_num": 5, "confidence": 1.5}]`}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	_, err := l.Parse(context.Background(), NewIncomeStatementExtractor(), Input{DocumentID: "doc-4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLegacyParse_RejectsMissingFactKey(t *testing.T) {
	client := &stubClient{text: `[{"value_num": 5, "confidence": 0.9}]`}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	_, err := l.Parse(context.Background(), NewIncomeStatementExtractor(), Input{DocumentID: "doc-5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing fact_key")
}

func TestLegacyParse_PromptCarriesVocabulary(t *testing.T) {
	client := &stubClient{text: `[]`}
	l := NewLegacyExtractor(client, "claude-haiku-4-5-20251001", 120)

	_, err := l.Parse(context.Background(), NewBalanceSheetExtractor(), Input{DocumentID: "doc-6", OCRText: "stmt"})
	require.NoError(t, err)

	require.Len(t, client.reqs, 1)
	require.Len(t, client.reqs[0].System, 1)
	prompt := client.reqs[0].System[0].Text
	assert.Contains(t, prompt, "TOTAL_ASSETS")
	assert.Contains(t, prompt, "TOTAL_EQUITY")
	assert.Contains(t, prompt, string(model.FactTypeBalanceSheet))
}
