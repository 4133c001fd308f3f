package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// lineSpec maps one canonical fact key to the structured field names and OCR
// text labels that may carry its value.
type lineSpec struct {
	key    string
	fields []string // structured-field names, probed in order
	labels []string // text labels for the OCR fallback, matched per line
}

// parseLines runs the shared deterministic engine over a spec table:
// structured fields win, labeled OCR amounts are the fallback at reduced
// confidence. Items whose value cannot be parsed are skipped, not errored.
func parseLines(specs []lineSpec, in Input, extractorName string) []model.ExtractedLineItem {
	periodStart, periodEnd := resolvePeriod(in)

	var items []model.ExtractedLineItem
	for _, spec := range specs {
		if v, ok := probeStructured(in.StructuredFields, spec.fields); ok {
			items = append(items, model.ExtractedLineItem{
				FactKey:     spec.key,
				ValueNum:    model.Num(v),
				Confidence:  confidenceStructured,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Provenance: model.Provenance{
					SourceKind: "structured",
					SourceRef:  in.DocumentID,
					Extractor:  extractorName,
					Path:       "structured_fields",
				},
			})
			continue
		}

		if v, line, ok := scanText(in.OCRText, spec.labels); ok {
			items = append(items, model.ExtractedLineItem{
				FactKey:     spec.key,
				ValueNum:    model.Num(v),
				Confidence:  confidenceTextMatch,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Provenance: model.Provenance{
					SourceKind: "ocr_text",
					SourceRef:  in.DocumentID,
					Extractor:  extractorName,
					Path:       "label_match",
					Citations:  []string{line},
				},
			})
		}
	}
	return items
}

// resolvePeriod prefers the caller-supplied period, then a date detected in
// the OCR text, then the sentinel "period unknown" placeholder.
func resolvePeriod(in Input) (*time.Time, *time.Time) {
	if in.PeriodEnd != nil {
		return in.PeriodStart, in.PeriodEnd
	}
	if end := detectPeriodEnd(in.OCRText); end != nil {
		return nil, end
	}
	sentinel := model.SentinelPeriodEnd
	return nil, &sentinel
}

// probeStructured looks up the first present numeric field. Values may
// arrive as JSON numbers or formatted strings.
func probeStructured(fields map[string]any, names []string) (float64, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if n, ok := parseAmount(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// scanText finds the first OCR line starting with one of the labels and
// parses the trailing amount. Returns the matched line for citation.
func scanText(text string, labels []string) (float64, string, bool) {
	if text == "" || len(labels) == 0 {
		return 0, "", false
	}
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, label := range labels {
			if !strings.HasPrefix(lower, strings.ToLower(label)) {
				continue
			}
			rest := strings.TrimSpace(line[len(label):])
			rest = strings.TrimLeft(rest, ":.… \t")
			if v, ok := parseAmount(firstAmountToken(rest)); ok {
				return v, line, true
			}
		}
	}
	return 0, "", false
}

var amountTokenRe = regexp.MustCompile(`\(?-?\$?[\d,]+(?:\.\d+)?\)?`)

// firstAmountToken pulls the first thing that looks like a dollar amount.
func firstAmountToken(s string) string {
	return amountTokenRe.FindString(s)
}

// parseAmount parses "1,234,567.89", "$1,234", "(5,000)" (negative), and
// plain numbers. Returns false for anything else.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

var periodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:as of|as at|ended|ending)\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})`),
	regexp.MustCompile(`(?i)(?:as of|as at|ended|ending)\s+(\d{1,2})/(\d{1,2})/(\d{4})`),
	regexp.MustCompile(`(?i)tax year\s+(\d{4})`),
}

// detectPeriodEnd scans OCR text for a statement date. Returns nil when no
// recognizable date is present.
func detectPeriodEnd(text string) *time.Time {
	for i, re := range periodPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		switch i {
		case 0: // "as of December 31, 2023"
			month, ok := monthByName(m[1])
			if !ok {
				continue
			}
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			t := model.Date(year, month, day)
			return &t
		case 1: // "ended 12/31/2023"
			monthNum, _ := strconv.Atoi(m[1])
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if monthNum < 1 || monthNum > 12 || day < 1 || day > 31 {
				continue
			}
			t := model.Date(year, time.Month(monthNum), day)
			return &t
		case 2: // "tax year 2023" → calendar year end
			year, _ := strconv.Atoi(m[1])
			t := model.Date(year, time.December, 31)
			return &t
		}
	}
	return nil
}

func monthByName(name string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), name) {
			return m, true
		}
	}
	return 0, false
}
