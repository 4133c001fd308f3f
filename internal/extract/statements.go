package extract

import (
	"context"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// statementExtractor is the shared deterministic extractor for single-column
// financial statements. Each document type supplies its line table; the
// engine in deterministic.go does the parsing.
type statementExtractor struct {
	name    string
	docType model.FactType
	specs   []lineSpec
}

func (e *statementExtractor) DocType() model.FactType { return e.docType }

func (e *statementExtractor) MultiRow() bool { return false }

func (e *statementExtractor) Vocabulary() map[string]bool {
	vocab := make(map[string]bool, len(e.specs))
	for _, s := range e.specs {
		vocab[s.key] = true
	}
	return vocab
}

func (e *statementExtractor) Parse(_ context.Context, in Input) ([]model.ExtractedLineItem, error) {
	return parseLines(e.specs, in, e.name), nil
}

// NewBalanceSheetExtractor parses business balance sheets.
func NewBalanceSheetExtractor() Extractor {
	return &statementExtractor{
		name:    "balance_sheet",
		docType: model.FactTypeBalanceSheet,
		specs: []lineSpec{
			{key: "CASH_AND_EQUIVALENTS", fields: []string{"cash_and_equivalents", "cash"}, labels: []string{"cash and cash equivalents", "cash and equivalents", "cash"}},
			{key: "ACCOUNTS_RECEIVABLE", fields: []string{"accounts_receivable"}, labels: []string{"accounts receivable", "trade receivables"}},
			{key: "INVENTORY", fields: []string{"inventory"}, labels: []string{"inventory", "inventories"}},
			{key: "TOTAL_CURRENT_ASSETS", fields: []string{"total_current_assets"}, labels: []string{"total current assets"}},
			{key: "NET_FIXED_ASSETS", fields: []string{"net_fixed_assets", "property_plant_equipment_net"}, labels: []string{"net fixed assets", "property, plant and equipment, net", "net property and equipment"}},
			{key: "TOTAL_ASSETS", fields: []string{"total_assets"}, labels: []string{"total assets"}},
			{key: "ACCOUNTS_PAYABLE", fields: []string{"accounts_payable"}, labels: []string{"accounts payable", "trade payables"}},
			{key: "CURRENT_PORTION_LTD", fields: []string{"current_portion_long_term_debt"}, labels: []string{"current portion of long-term debt", "current maturities of long-term debt"}},
			{key: "TOTAL_CURRENT_LIABILITIES", fields: []string{"total_current_liabilities"}, labels: []string{"total current liabilities"}},
			{key: "LONG_TERM_DEBT", fields: []string{"long_term_debt"}, labels: []string{"long-term debt", "long term debt", "notes payable, long-term"}},
			{key: "TOTAL_LIABILITIES", fields: []string{"total_liabilities"}, labels: []string{"total liabilities"}},
			{key: "TOTAL_EQUITY", fields: []string{"total_equity", "stockholders_equity"}, labels: []string{"total equity", "total stockholders' equity", "total shareholders' equity", "total owner's equity"}},
		},
	}
}

// NewIncomeStatementExtractor parses business income statements.
func NewIncomeStatementExtractor() Extractor {
	return &statementExtractor{
		name:    "income_statement",
		docType: model.FactTypeIncomeStatement,
		specs: []lineSpec{
			{key: "GROSS_REVENUE", fields: []string{"gross_revenue", "total_revenue", "revenue"}, labels: []string{"gross revenue", "total revenue", "net sales", "total sales", "revenue"}},
			{key: "COST_OF_GOODS_SOLD", fields: []string{"cost_of_goods_sold", "cogs"}, labels: []string{"cost of goods sold", "cost of sales"}},
			{key: "GROSS_PROFIT", fields: []string{"gross_profit"}, labels: []string{"gross profit", "gross margin"}},
			{key: "OPERATING_EXPENSES", fields: []string{"operating_expenses"}, labels: []string{"total operating expenses", "operating expenses"}},
			{key: "OFFICER_COMPENSATION", fields: []string{"officer_compensation"}, labels: []string{"officer compensation", "officers' compensation"}},
			{key: "DEPRECIATION_AMORTIZATION", fields: []string{"depreciation_amortization", "depreciation"}, labels: []string{"depreciation and amortization", "depreciation & amortization", "depreciation"}},
			{key: "INTEREST_EXPENSE", fields: []string{"interest_expense"}, labels: []string{"interest expense"}},
			{key: "NET_OPERATING_INCOME", fields: []string{"net_operating_income", "operating_income"}, labels: []string{"net operating income", "operating income", "income from operations"}},
			{key: "NET_INCOME", fields: []string{"net_income"}, labels: []string{"net income", "net profit", "net earnings"}},
		},
	}
}

// NewTaxReturnExtractor parses business tax returns (1120, 1120-S, 1065).
func NewTaxReturnExtractor() Extractor {
	return &statementExtractor{
		name:    "tax_return",
		docType: model.FactTypeTaxReturn,
		specs: []lineSpec{
			{key: "GROSS_RECEIPTS", fields: []string{"gross_receipts", "gross_receipts_or_sales"}, labels: []string{"gross receipts or sales", "gross receipts"}},
			{key: "TOTAL_INCOME", fields: []string{"total_income"}, labels: []string{"total income"}},
			{key: "TOTAL_DEDUCTIONS", fields: []string{"total_deductions"}, labels: []string{"total deductions"}},
			{key: "TAXABLE_INCOME", fields: []string{"taxable_income", "ordinary_business_income"}, labels: []string{"taxable income", "ordinary business income"}},
			{key: "OFFICER_COMPENSATION", fields: []string{"officer_compensation", "compensation_of_officers"}, labels: []string{"compensation of officers", "officer compensation"}},
			{key: "DEPRECIATION_AMORTIZATION", fields: []string{"depreciation"}, labels: []string{"depreciation", "depreciation and amortization"}},
			{key: "INTEREST_EXPENSE", fields: []string{"interest_expense", "interest"}, labels: []string{"interest expense", "interest"}},
		},
	}
}

// NewDebtScheduleExtractor parses business debt schedules. Only the summary
// totals are extracted; per-obligation rows stay in the source document.
func NewDebtScheduleExtractor() Extractor {
	return &statementExtractor{
		name:    "debt_schedule",
		docType: model.FactTypeDebtSchedule,
		specs: []lineSpec{
			{key: "TOTAL_DEBT_OUTSTANDING", fields: []string{"total_debt_outstanding", "total_balance"}, labels: []string{"total debt outstanding", "total outstanding balance", "total balance"}},
			{key: "TOTAL_ANNUAL_DEBT_SERVICE", fields: []string{"total_annual_debt_service", "annual_debt_service"}, labels: []string{"total annual debt service", "annual debt service", "total annual payments"}},
			{key: "TOTAL_MONTHLY_PAYMENT", fields: []string{"total_monthly_payment"}, labels: []string{"total monthly payment", "total monthly payments"}},
		},
	}
}

// NewPersonalFinancialStatementExtractor parses guarantor personal financial
// statements (SBA Form 413 and bank equivalents).
func NewPersonalFinancialStatementExtractor() Extractor {
	return &statementExtractor{
		name:    "personal_financial_statement",
		docType: model.FactTypePersonalFinancial,
		specs: []lineSpec{
			{key: "PERSONAL_TOTAL_ASSETS", fields: []string{"total_assets"}, labels: []string{"total assets"}},
			{key: "PERSONAL_TOTAL_LIABILITIES", fields: []string{"total_liabilities"}, labels: []string{"total liabilities"}},
			{key: "PERSONAL_NET_WORTH", fields: []string{"net_worth"}, labels: []string{"net worth", "total net worth"}},
			{key: "PERSONAL_ANNUAL_INCOME", fields: []string{"annual_income", "salary"}, labels: []string{"total annual income", "annual income", "salary"}},
			{key: "PERSONAL_ANNUAL_DEBT_PAYMENTS", fields: []string{"annual_debt_payments"}, labels: []string{"total annual debt payments", "annual debt payments"}},
			{key: "CONTINGENT_LIABILITIES", fields: []string{"contingent_liabilities"}, labels: []string{"contingent liabilities", "total contingent liabilities"}},
		},
	}
}
