package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// rentRollExtractor parses property rent rolls. Rent rolls are multi-row:
// each unit produces its own fact, keyed by base key plus unit id, and a
// re-extraction replaces the document's full row set rather than patching it.
type rentRollExtractor struct{}

// NewRentRollExtractor returns the rent roll extractor.
func NewRentRollExtractor() Extractor { return &rentRollExtractor{} }

func (e *rentRollExtractor) DocType() model.FactType { return model.FactTypeRentRoll }

func (e *rentRollExtractor) MultiRow() bool { return true }

// Vocabulary holds base keys. Per-unit keys carry a ":<unit>" suffix that the
// router strips before checking membership.
func (e *rentRollExtractor) Vocabulary() map[string]bool {
	return map[string]bool{
		"UNIT_MONTHLY_RENT":  true,
		"UNIT_TENANT":        true,
		"TOTAL_UNITS":        true,
		"OCCUPIED_UNITS":     true,
		"GROSS_MONTHLY_RENT": true,
		"GROSS_ANNUAL_RENT":  true,
	}
}

// "101  Acme Supply LLC  $1,250" or "Unit 2B - Vacant - $0". The trailing
// amount must carry a dollar sign so that header lines ending in a bare
// number, like a date, do not read as unit rows.
var rentRollLineRe = regexp.MustCompile(`(?i)^(?:unit\s+)?([A-Za-z0-9-]+)\s+[-–]?\s*(.+?)\s+[-–]?\s*(\(?-?\$[\d,]+(?:\.\d+)?\)?)\s*$`)

func (e *rentRollExtractor) Parse(_ context.Context, in Input) ([]model.ExtractedLineItem, error) {
	_, periodEnd := resolvePeriod(in)

	rows := structuredUnits(in.StructuredFields)
	sourceKind := "structured"
	confidence := confidenceStructured
	if len(rows) == 0 {
		rows = textUnits(in.OCRText)
		sourceKind = "ocr_text"
		confidence = confidenceTextMatch
	}

	prov := func(citation string) model.Provenance {
		p := model.Provenance{
			SourceKind: sourceKind,
			SourceRef:  in.DocumentID,
			Extractor:  "rent_roll",
			Path:       "unit_rows",
		}
		if citation != "" {
			p.Citations = []string{citation}
		}
		return p
	}

	var items []model.ExtractedLineItem
	var grossMonthly float64
	occupied := 0
	for _, row := range rows {
		items = append(items, model.ExtractedLineItem{
			FactKey:    fmt.Sprintf("UNIT_MONTHLY_RENT:%s", row.unit),
			ValueNum:   model.Num(row.monthlyRent),
			Confidence: confidence,
			PeriodEnd:  periodEnd,
			Provenance: prov(row.citation),
		})
		if row.tenant != "" && !strings.EqualFold(row.tenant, "vacant") {
			occupied++
			items = append(items, model.ExtractedLineItem{
				FactKey:    fmt.Sprintf("UNIT_TENANT:%s", row.unit),
				ValueText:  row.tenant,
				Confidence: confidence,
				PeriodEnd:  periodEnd,
				Provenance: prov(row.citation),
			})
		}
		grossMonthly += row.monthlyRent
	}

	if len(rows) > 0 {
		aggProv := prov("")
		aggProv.Path = "unit_rows_aggregate"
		for key, val := range map[string]float64{
			"TOTAL_UNITS":        float64(len(rows)),
			"OCCUPIED_UNITS":     float64(occupied),
			"GROSS_MONTHLY_RENT": grossMonthly,
			"GROSS_ANNUAL_RENT":  grossMonthly * 12,
		} {
			items = append(items, model.ExtractedLineItem{
				FactKey:    key,
				ValueNum:   model.Num(val),
				Confidence: confidence,
				PeriodEnd:  periodEnd,
				Provenance: aggProv,
			})
		}
	}
	return items, nil
}

type unitRow struct {
	unit        string
	tenant      string
	monthlyRent float64
	citation    string
}

// structuredUnits reads a "units" array of objects from structured fields.
func structuredUnits(fields map[string]any) []unitRow {
	raw, ok := fields["units"].([]any)
	if !ok {
		return nil
	}
	var rows []unitRow
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		unit, _ := obj["unit"].(string)
		if unit == "" {
			continue
		}
		rent, ok := probeStructured(obj, []string{"monthly_rent", "rent"})
		if !ok {
			continue
		}
		tenant, _ := obj["tenant"].(string)
		rows = append(rows, unitRow{unit: unit, tenant: tenant, monthlyRent: rent})
	}
	return rows
}

// textUnits parses unit rows out of raw OCR text, one unit per line. Summary
// and header lines fail the row pattern and are skipped.
func textUnits(text string) []unitRow {
	var rows []unitRow
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		lower := strings.ToLower(line)
		if line == "" || strings.HasPrefix(lower, "total") || strings.Contains(lower, "as of") {
			continue
		}
		m := rentRollLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rent, ok := parseAmount(m[3])
		if !ok {
			continue
		}
		rows = append(rows, unitRow{
			unit:        m[1],
			tenant:      strings.TrimSpace(m[2]),
			monthlyRent: rent,
			citation:    line,
		})
	}
	return rows
}
