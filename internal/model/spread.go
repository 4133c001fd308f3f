package model

import "time"

// SpreadType identifies which registered statement a spread renders.
type SpreadType string

const (
	SpreadTypeBalanceSheet    SpreadType = "BALANCE_SHEET"
	SpreadTypeIncomeStatement SpreadType = "INCOME_STATEMENT"
	SpreadTypeCashFlow        SpreadType = "CASH_FLOW"
)

// SpreadColumn is one reporting period rendered across all rows.
type SpreadColumn struct {
	Key         string     `json:"key"`   // "current" or "p2023-12-31"
	Label       string     `json:"label"` // "FY 2023"
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// SpreadCell is a single row/column value with its display string and source.
type SpreadCell struct {
	Value      *float64 `json:"value,omitempty"`
	Display    string   `json:"display"`
	Provenance string   `json:"provenance,omitempty"`
}

// SpreadRow is one statement line item across all period columns.
type SpreadRow struct {
	Key     string                `json:"key"`
	Label   string                `json:"label"`
	Section string                `json:"section"`
	Formula string                `json:"formula,omitempty"`
	Cells   map[string]SpreadCell `json:"cells"` // keyed by column key
}

// RenderedSpread is a complete multi-period statement snapshot. It is rebuilt
// wholesale on every render, never incrementally patched.
type RenderedSpread struct {
	SchemaVersion int            `json:"schema_version"`
	SpreadType    SpreadType     `json:"spread_type"`
	Status        string         `json:"status"`
	TenantID      string         `json:"tenant_id"`
	CaseID        string         `json:"case_id"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Columns       []SpreadColumn `json:"columns"`
	Rows          []SpreadRow    `json:"rows"`
	Totals        map[string]any `json:"totals,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}
