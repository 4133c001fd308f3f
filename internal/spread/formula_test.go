package spread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

func vals(pairs map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(pairs))
	for k, v := range pairs {
		out[k] = model.Num(v)
	}
	return out
}

func TestEvalStructural_LeftToRight(t *testing.T) {
	got, err := evalStructural("A + B - C", vals(map[string]float64{"A": 10, "B": 5, "C": 3}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.0, *got)
}

func TestEvalStructural_MissingOperandIsZero(t *testing.T) {
	got, err := evalStructural("A + B - C", vals(map[string]float64{"A": 10}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, *got)
}

func TestEvalStructural_AllMissingIsNil(t *testing.T) {
	got, err := evalStructural("A + B", map[string]*float64{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvalStructural_NilOperandCountsAsMissing(t *testing.T) {
	got, err := evalStructural("A + B", map[string]*float64{"A": nil, "B": nil})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvalStructural_LeadingSubtraction(t *testing.T) {
	got, err := evalStructural("A - B", vals(map[string]float64{"B": 4}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, -4.0, *got)
}

func TestEvalStructural_RejectsUnsupportedOperator(t *testing.T) {
	_, err := evalStructural("A * B", vals(map[string]float64{"A": 2, "B": 3}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operator")
}

func TestEvalStructural_RejectsTrailingOperator(t *testing.T) {
	_, err := evalStructural("A +", vals(map[string]float64{"A": 2}))
	require.Error(t, err)
}

func TestEvalStructural_RejectsEmpty(t *testing.T) {
	_, err := evalStructural("  ", nil)
	require.Error(t, err)
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "debt_service_coverage", metricName("@metric:debt_service_coverage"))
	assert.Empty(t, metricName("A + B"))
}

func TestFormatValue(t *testing.T) {
	money := RowDef{}
	assert.Equal(t, "1,234,568", formatValue(model.Num(1234567.89), money))
	assert.Equal(t, "(5,000)", formatValue(model.Num(-5000), money))
	assert.Equal(t, "--", formatValue(nil, money))

	cents := RowDef{Precision: 2}
	assert.Equal(t, "1,234,567.89", formatValue(model.Num(1234567.89), cents))

	ratio := RowDef{Precision: 2, Ratio: true}
	assert.Equal(t, "1.50", formatValue(model.Num(1.5), ratio))
	assert.Equal(t, "-0.25", formatValue(model.Num(-0.25), ratio))

	pct := RowDef{Precision: 1, Percent: true}
	assert.Equal(t, "12.5%", formatValue(model.Num(0.125), pct))
}

func TestRows_SortedBySortOrder(t *testing.T) {
	defs := Rows(model.SpreadTypeBalanceSheet)
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.LessOrEqual(t, defs[i-1].Sort, defs[i].Sort)
	}
	// Registry order is the dependency order: operands precede formulas.
	idx := make(map[string]int, len(defs))
	for i, d := range defs {
		idx[d.Key] = i
	}
	assert.Less(t, idx["TOTAL_LIABILITIES"], idx["TOTAL_LIABILITIES_AND_EQUITY"])
	assert.Less(t, idx["TOTAL_EQUITY"], idx["TOTAL_LIABILITIES_AND_EQUITY"])
}
