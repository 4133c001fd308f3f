package docsource

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// StructuredFields reads an xlsx workbook into the structured field map the
// deterministic extractors probe. Rent rolls produce a "units" array of
// per-unit objects; every other schedule produces a map keyed by the
// normalized row label with the row's numeric value.
func StructuredFields(path, docTypeHint string) (map[string]any, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if normalizeLabel(docTypeHint) == "rent_roll" {
		return rentRollFields(rows), nil
	}
	return labelValueFields(rows), nil
}

func readRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "docsource: open workbook %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("docsource: workbook %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// rentRollFields maps the sheet to the "units" array consumed by the rent
// roll extractor. The header row names the unit, tenant, and rent columns;
// summary rows are skipped.
func rentRollFields(rows [][]string) map[string]any {
	header := -1
	unitCol, tenantCol, rentCol := -1, -1, -1
	for i, row := range rows {
		for j, cell := range row {
			switch {
			case containsFold(cell, "unit"):
				unitCol = j
			case containsFold(cell, "tenant"), containsFold(cell, "lessee"):
				tenantCol = j
			case containsFold(cell, "rent"):
				rentCol = j
			}
		}
		if unitCol >= 0 && rentCol >= 0 {
			header = i
			break
		}
		unitCol, tenantCol, rentCol = -1, -1, -1
	}
	if header < 0 {
		return map[string]any{}
	}

	var units []any
	for _, row := range rows[header+1:] {
		if unitCol >= len(row) || rentCol >= len(row) {
			continue
		}
		unit := row[unitCol]
		if unit == "" || containsFold(unit, "total") {
			continue
		}
		rent, ok := parseCellAmount(row[rentCol])
		if !ok {
			continue
		}
		entry := map[string]any{"unit": unit, "monthly_rent": rent}
		if tenantCol >= 0 && tenantCol < len(row) && row[tenantCol] != "" {
			entry["tenant"] = row[tenantCol]
		}
		units = append(units, entry)
	}
	return map[string]any{"units": units}
}

// labelValueFields maps label/amount rows to normalized field names, e.g.
// "Total Annual Debt Service" -> total_annual_debt_service.
func labelValueFields(rows [][]string) map[string]any {
	fields := make(map[string]any)
	for _, row := range rows {
		if len(row) < 2 || row[0] == "" {
			continue
		}
		// Rightmost parseable cell is the value column.
		for j := len(row) - 1; j >= 1; j-- {
			if v, ok := parseCellAmount(row[j]); ok {
				fields[normalizeLabel(row[0])] = v
				break
			}
		}
	}
	return fields
}

// normalizeLabel lowercases and collapses non-alphanumeric runs to "_".
func normalizeLabel(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// parseCellAmount parses a currency-formatted cell. Parentheses negate.
func parseCellAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
