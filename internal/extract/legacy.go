package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/pkg/anthropic"
)

const legacyMaxTokens = 4096

// LegacyExtractor is the model-backed extraction path. It prompts with the
// extractor's vocabulary and parses the response under a strict schema:
// unknown fields, unparseable JSON, or out-of-range confidences reject the
// whole response rather than salvaging parts of it.
type LegacyExtractor struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
}

// NewLegacyExtractor builds the legacy path. requestsPerMinute bounds the
// upstream call rate across all workers sharing this extractor.
func NewLegacyExtractor(client anthropic.Client, modelID string, requestsPerMinute int) *LegacyExtractor {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	return &LegacyExtractor{
		client:  client,
		model:   modelID,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

// legacyItem is the wire schema the model must produce, one element per fact.
type legacyItem struct {
	FactKey    string   `json:"fact_key"`
	ValueNum   *float64 `json:"value_num,omitempty"`
	ValueText  string   `json:"value_text,omitempty"`
	Confidence float64  `json:"confidence"`
	PeriodEnd  string   `json:"period_end,omitempty"` // YYYY-MM-DD
	Citation   string   `json:"citation,omitempty"`
}

// Parse extracts line items for the given extractor's document type.
func (l *LegacyExtractor) Parse(ctx context.Context, extractor Extractor, in Input) ([]model.ExtractedLineItem, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "legacy: rate limit wait")
	}

	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: legacyMaxTokens,
		System: []anthropic.SystemBlock{{
			Text:         legacySystemPrompt(extractor),
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: legacyUserPrompt(in),
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "legacy: create message")
	}
	resp.Usage.LogCost(l.model, "legacy_extract")

	text := firstText(resp)
	if text == "" {
		return nil, eris.New("legacy: empty model response")
	}

	raw, err := decodeStrict(text)
	if err != nil {
		return nil, err
	}

	items := make([]model.ExtractedLineItem, 0, len(raw))
	for _, item := range raw {
		if item.FactKey == "" {
			return nil, eris.New("legacy: response item missing fact_key")
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return nil, eris.Errorf("legacy: confidence %v out of range for %s", item.Confidence, item.FactKey)
		}
		out := model.ExtractedLineItem{
			FactKey:    item.FactKey,
			ValueNum:   item.ValueNum,
			ValueText:  item.ValueText,
			Confidence: item.Confidence,
			Provenance: model.Provenance{
				SourceKind: "llm",
				SourceRef:  in.DocumentID,
				Extractor:  string(extractor.DocType()),
				Path:       "legacy",
			},
		}
		if item.Citation != "" {
			out.Provenance.Citations = []string{item.Citation}
		}
		if item.PeriodEnd != "" {
			end, perr := time.Parse("2006-01-02", item.PeriodEnd)
			if perr != nil {
				return nil, eris.Wrapf(perr, "legacy: bad period_end for %s", item.FactKey)
			}
			out.PeriodEnd = &end
		} else {
			sentinel := model.SentinelPeriodEnd
			out.PeriodEnd = &sentinel
		}
		items = append(items, out)
	}
	return items, nil
}

// decodeStrict parses the response as a JSON array, rejecting unknown fields.
// A fenced code block around the array is tolerated.
func decodeStrict(text string) ([]legacyItem, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var raw []legacyItem
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "legacy: decode response")
	}
	return raw, nil
}

func legacySystemPrompt(extractor Extractor) string {
	keys := make([]string, 0, len(extractor.Vocabulary()))
	for k := range extractor.Vocabulary() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("You extract financial facts from loan documents.\n")
	fmt.Fprintf(&b, "Document type: %s\n", extractor.DocType())
	b.WriteString("Respond with ONLY a JSON array. Each element has exactly these fields:\n")
	b.WriteString(`  fact_key (string, required), value_num (number), value_text (string), confidence (0..1, required), period_end ("YYYY-MM-DD"), citation (string)` + "\n")
	b.WriteString("Allowed fact_key values:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  - %s\n", k)
	}
	b.WriteString("Omit facts you cannot find. Never invent values.")
	return b.String()
}

func legacyUserPrompt(in Input) string {
	var b strings.Builder
	if len(in.StructuredFields) > 0 {
		blob, err := json.Marshal(in.StructuredFields)
		if err == nil {
			b.WriteString("Structured fields:\n")
			b.Write(blob)
			b.WriteString("\n\n")
		}
	}
	b.WriteString("Document text:\n")
	b.WriteString(in.OCRText)
	return b.String()
}

func firstText(resp *anthropic.MessageResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}
