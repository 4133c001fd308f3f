package docsource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "doc.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestStructuredFields_RentRoll(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Riverside Apartments Rent Roll"},
		{"Unit", "Tenant", "Monthly Rent"},
		{"101", "Acme Supply LLC", "$1,250.00"},
		{"102", "Vacant", "$0"},
		{"2B", "Smith Holdings", "(500)"},
		{"Total", "", "$750"},
	})

	fields, err := StructuredFields(path, "rent_roll")
	require.NoError(t, err)

	units, ok := fields["units"].([]any)
	require.True(t, ok)
	require.Len(t, units, 3, "total row excluded")

	first := units[0].(map[string]any)
	assert.Equal(t, "101", first["unit"])
	assert.Equal(t, "Acme Supply LLC", first["tenant"])
	assert.Equal(t, 1250.0, first["monthly_rent"])

	third := units[2].(map[string]any)
	assert.Equal(t, -500.0, third["monthly_rent"], "parenthesized amount is negative")
}

func TestStructuredFields_RentRollNoHeader(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"just", "some", "cells"},
	})

	fields, err := StructuredFields(path, "rent_roll")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestStructuredFields_DebtSchedule(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Debt Schedule", ""},
		{"Total Debt Outstanding", "$2,400,000"},
		{"Total Annual Debt Service", "$310,000"},
		{"Total Monthly Payment", "25,833.33"},
		{"Notes", "see attached"},
	})

	fields, err := StructuredFields(path, "debt_schedule")
	require.NoError(t, err)

	assert.Equal(t, 2400000.0, fields["total_debt_outstanding"])
	assert.Equal(t, 310000.0, fields["total_annual_debt_service"])
	assert.Equal(t, 25833.33, fields["total_monthly_payment"])
	assert.NotContains(t, fields, "notes", "non-numeric rows skipped")
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"Total Annual Debt Service": "total_annual_debt_service",
		"  Net Worth ":              "net_worth",
		"Officers' Compensation":    "officers_compensation",
		"RENT ROLL":                 "rent_roll",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeLabel(in), in)
	}
}

func TestParseCellAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,250.00", 1250, true},
		{"(500)", -500, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"42", 42, true},
	}
	for _, tc := range cases {
		got, ok := parseCellAmount(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}
