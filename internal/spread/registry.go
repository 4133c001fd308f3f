// Package spread renders normalized facts into canonical multi-period
// financial statements. Rows come from a static registry per spread type;
// values resolve in registry order, so a formula may reference any row
// registered before it. Dependency order is a design-time invariant of the
// registry, not checked at runtime.
package spread

import (
	"sort"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// RowDef is one statically registered statement line.
type RowDef struct {
	Key     string
	Label   string
	Section string
	Sort    int
	// Formula is empty for fact-backed rows, "@metric:<name>" for metric
	// delegation, or a structural expression over earlier row keys, e.g.
	// "TOTAL_LIABILITIES + TOTAL_EQUITY".
	Formula string
	// Display controls.
	Precision int
	Ratio     bool // plain number, no currency grouping emphasis
	Percent   bool
}

// factSources maps a spread type to the fact types that feed it.
var factSources = map[model.SpreadType][]model.FactType{
	model.SpreadTypeBalanceSheet:    {model.FactTypeBalanceSheet},
	model.SpreadTypeIncomeStatement: {model.FactTypeIncomeStatement, model.FactTypeTaxReturn},
	model.SpreadTypeCashFlow:        {model.FactTypeIncomeStatement, model.FactTypeDebtSchedule, model.FactTypePersonalFinancial},
}

var rowRegistry = map[model.SpreadType][]RowDef{
	model.SpreadTypeBalanceSheet: {
		{Key: "CASH_AND_EQUIVALENTS", Label: "Cash and equivalents", Section: "Current assets", Sort: 10},
		{Key: "ACCOUNTS_RECEIVABLE", Label: "Accounts receivable", Section: "Current assets", Sort: 20},
		{Key: "INVENTORY", Label: "Inventory", Section: "Current assets", Sort: 30},
		{Key: "TOTAL_CURRENT_ASSETS", Label: "Total current assets", Section: "Current assets", Sort: 40,
			Formula: "CASH_AND_EQUIVALENTS + ACCOUNTS_RECEIVABLE + INVENTORY"},
		{Key: "NET_FIXED_ASSETS", Label: "Net fixed assets", Section: "Long-term assets", Sort: 50},
		{Key: "TOTAL_ASSETS", Label: "Total assets", Section: "Assets", Sort: 60},
		{Key: "ACCOUNTS_PAYABLE", Label: "Accounts payable", Section: "Current liabilities", Sort: 70},
		{Key: "CURRENT_PORTION_LTD", Label: "Current portion of long-term debt", Section: "Current liabilities", Sort: 80},
		{Key: "TOTAL_CURRENT_LIABILITIES", Label: "Total current liabilities", Section: "Current liabilities", Sort: 90,
			Formula: "ACCOUNTS_PAYABLE + CURRENT_PORTION_LTD"},
		{Key: "LONG_TERM_DEBT", Label: "Long-term debt", Section: "Long-term liabilities", Sort: 100},
		{Key: "TOTAL_LIABILITIES", Label: "Total liabilities", Section: "Liabilities", Sort: 110},
		{Key: "TOTAL_EQUITY", Label: "Total equity", Section: "Equity", Sort: 120},
		{Key: "TOTAL_LIABILITIES_AND_EQUITY", Label: "Total liabilities and equity", Section: "Liabilities and equity", Sort: 130,
			Formula: "TOTAL_LIABILITIES + TOTAL_EQUITY"},
	},
	model.SpreadTypeIncomeStatement: {
		{Key: "GROSS_REVENUE", Label: "Gross revenue", Section: "Revenue", Sort: 10},
		{Key: "COST_OF_GOODS_SOLD", Label: "Cost of goods sold", Section: "Revenue", Sort: 20},
		{Key: "GROSS_PROFIT", Label: "Gross profit", Section: "Revenue", Sort: 30,
			Formula: "GROSS_REVENUE - COST_OF_GOODS_SOLD"},
		{Key: "OPERATING_EXPENSES", Label: "Operating expenses", Section: "Expenses", Sort: 40},
		{Key: "OFFICER_COMPENSATION", Label: "Officer compensation", Section: "Expenses", Sort: 50},
		{Key: "DEPRECIATION_AMORTIZATION", Label: "Depreciation and amortization", Section: "Expenses", Sort: 60},
		{Key: "NET_OPERATING_INCOME", Label: "Net operating income", Section: "Operating", Sort: 70},
		{Key: "INTEREST_EXPENSE", Label: "Interest expense", Section: "Other", Sort: 80},
		{Key: "NET_INCOME", Label: "Net income", Section: "Bottom line", Sort: 90},
	},
	model.SpreadTypeCashFlow: {
		{Key: "NET_OPERATING_INCOME", Label: "Net operating income", Section: "Cash flow", Sort: 10,
			Formula: "@metric:net_operating_income"},
		{Key: "DEPRECIATION_AMORTIZATION", Label: "Add back: depreciation and amortization", Section: "Cash flow", Sort: 20},
		{Key: "GLOBAL_CASH_FLOW", Label: "Global cash flow", Section: "Cash flow", Sort: 30,
			Formula: "@metric:global_cash_flow"},
		{Key: "TOTAL_ANNUAL_DEBT_SERVICE", Label: "Annual debt service", Section: "Debt service", Sort: 40},
		{Key: "EXCESS_CASH_FLOW", Label: "Excess cash flow", Section: "Debt service", Sort: 50,
			Formula: "@metric:excess_cash_flow"},
		{Key: "DEBT_SERVICE_COVERAGE", Label: "Debt service coverage ratio", Section: "Ratios", Sort: 60,
			Formula: "@metric:debt_service_coverage", Precision: 2, Ratio: true},
	},
}

// Rows returns the registered rows for a spread type in sort order.
func Rows(t model.SpreadType) []RowDef {
	defs := append([]RowDef(nil), rowRegistry[t]...)
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Sort < defs[j].Sort })
	return defs
}
