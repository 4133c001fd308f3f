package model

import "time"

// FactType categorizes facts by the statement or document they came from.
type FactType string

const (
	FactTypeBalanceSheet      FactType = "BALANCE_SHEET"
	FactTypeIncomeStatement   FactType = "INCOME_STATEMENT"
	FactTypeTaxReturn         FactType = "TAX_RETURN"
	FactTypeRentRoll          FactType = "RENT_ROLL"
	FactTypeDebtSchedule      FactType = "DEBT_SCHEDULE"
	FactTypePersonalFinancial FactType = "PERSONAL_FINANCIAL_STATEMENT"
	FactTypeHeartbeat         FactType = "EXTRACTION_HEARTBEAT"
)

// SentinelPeriodEnd marks facts whose reporting period could not be
// determined. Excluded from period-column detection during rendering.
var SentinelPeriodEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Provenance records where a fact's value came from and how it was obtained.
type Provenance struct {
	SourceKind string   `json:"source_kind"`          // "structured", "ocr_text", "llm", "computed"
	SourceRef  string   `json:"source_ref,omitempty"` // document id, metric chain, etc.
	Extractor  string   `json:"extractor,omitempty"`
	Path       string   `json:"path,omitempty"` // extraction path within the extractor
	Citations  []string `json:"citations,omitempty"`
}

// Fact is a single normalized financial data point extracted from a document.
// Uniqueness is enforced on (tenant, case, source document, fact type, fact key,
// period start, period end); re-extraction upserts rather than duplicates.
type Fact struct {
	TenantID         string     `json:"tenant_id"`
	CaseID           string     `json:"case_id"`
	SourceDocumentID string     `json:"source_document_id"`
	FactType         FactType   `json:"fact_type"`
	FactKey          string     `json:"fact_key"`
	PeriodStart      *time.Time `json:"fact_period_start,omitempty"`
	PeriodEnd        *time.Time `json:"fact_period_end,omitempty"`
	ValueNum         *float64   `json:"fact_value_num,omitempty"`
	ValueText        string     `json:"fact_value_text,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	Confidence       float64    `json:"confidence"`
	Provenance       Provenance `json:"provenance"`
	UpdatedAt        time.Time  `json:"updated_at,omitempty"`
}

// ExtractedLineItem is transient extractor output, persisted immediately as a
// Fact and never independently stored.
type ExtractedLineItem struct {
	FactKey     string
	ValueNum    *float64
	ValueText   string
	Confidence  float64
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Provenance  Provenance
}

// Num returns a pointer to v, for building numeric line items inline.
func Num(v float64) *float64 { return &v }

// Date returns a UTC midnight time for the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
