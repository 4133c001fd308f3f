package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(pairs map[string]float64) Env {
	out := make(Env, len(pairs))
	for k, v := range pairs {
		val := v
		out[k] = &val
	}
	return out
}

func TestCompare_AllOperators(t *testing.T) {
	e := env(map[string]float64{"x": 1.5})
	cases := []struct {
		op   Op
		lit  float64
		want Outcome
	}{
		{OpGT, 1.0, Pass},
		{OpGT, 1.5, Fail},
		{OpGTE, 1.5, Pass},
		{OpLT, 2.0, Pass},
		{OpLT, 1.0, Fail},
		{OpLTE, 1.5, Pass},
		{OpEQ, 1.5, Pass},
		{OpEQ, 2.0, Fail},
		{OpNEQ, 2.0, Pass},
	}
	for _, tc := range cases {
		got := Eval(Compare{Field: "x", Op: tc.op, Literal: tc.lit}, e)
		assert.Equal(t, tc.want, got, "op %s literal %g", tc.op, tc.lit)
	}
}

func TestCompare_MissingFieldIsException(t *testing.T) {
	assert.Equal(t, Exception, Eval(Compare{Field: "absent", Op: OpGT, Literal: 0}, Env{}))
	assert.Equal(t, Exception, Eval(Compare{Field: "nil", Op: OpGT, Literal: 0}, Env{"nil": nil}))
}

func TestAll_FailBeatsException(t *testing.T) {
	e := env(map[string]float64{"x": 1})
	expr := All{Exprs: []Expr{
		Compare{Field: "x", Op: OpGT, Literal: 5}, // fail
		Compare{Field: "absent", Op: OpGT, Literal: 0},
	}}
	assert.Equal(t, Fail, Eval(expr, e))
}

func TestAll_ExceptionWhenUndecidable(t *testing.T) {
	e := env(map[string]float64{"x": 10})
	expr := All{Exprs: []Expr{
		Compare{Field: "x", Op: OpGT, Literal: 5},
		Compare{Field: "absent", Op: OpGT, Literal: 0},
	}}
	assert.Equal(t, Exception, Eval(expr, e))
}

func TestAny_PassBeatsException(t *testing.T) {
	e := env(map[string]float64{"x": 10})
	expr := Any{Exprs: []Expr{
		Compare{Field: "absent", Op: OpGT, Literal: 0},
		Compare{Field: "x", Op: OpGT, Literal: 5},
	}}
	assert.Equal(t, Pass, Eval(expr, e))
}

func TestEmptyGroups(t *testing.T) {
	assert.Equal(t, Pass, Eval(All{}, Env{}))
	assert.Equal(t, Fail, Eval(Any{}, Env{}))
}

func TestNestedExpression(t *testing.T) {
	e := env(map[string]float64{"dscr": 1.3, "ltv": 0.9, "noi": 100})
	expr := All{Exprs: []Expr{
		Compare{Field: "dscr", Op: OpGTE, Literal: 1.25},
		Any{Exprs: []Expr{
			Compare{Field: "ltv", Op: OpLTE, Literal: 0.8},
			Compare{Field: "noi", Op: OpGT, Literal: 50},
		}},
	}}
	assert.Equal(t, Pass, Eval(expr, e))
}

func TestDescribe(t *testing.T) {
	expr := All{Exprs: []Expr{
		Compare{Field: "dscr", Op: OpGTE, Literal: 1.25},
		Any{Exprs: []Expr{Compare{Field: "ltv", Op: OpLTE, Literal: 0.8}}},
	}}
	assert.Equal(t, "all(dscr >= 1.25, any(ltv <= 0.8))", expr.Describe())
}

func TestParseRules(t *testing.T) {
	data := []byte(`
rules:
  - id: min_dscr
    expr:
      field: debt_service_coverage
      op: ">="
      literal: 1.25
  - id: combined
    expr:
      all:
        - field: loan_to_value
          op: "<="
          literal: 0.8
        - any:
            - field: net_operating_income
              op: ">"
              literal: 0
            - field: global_cash_flow
              op: ">"
              literal: 0
`)
	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "min_dscr", rules[0].ID)
	e := env(map[string]float64{"debt_service_coverage": 1.5})
	assert.Equal(t, Pass, Eval(rules[0].Expr, e))

	nested, ok := rules[1].Expr.(All)
	require.True(t, ok)
	require.Len(t, nested.Exprs, 2)
}

func TestParseRules_RejectsAmbiguousNode(t *testing.T) {
	data := []byte(`
rules:
  - id: bad
    expr:
      field: x
      op: ">"
      literal: 1
      all:
        - field: y
          op: ">"
          literal: 2
`)
	_, err := ParseRules(data)
	require.Error(t, err)
}

func TestParseRules_RejectsUnknownOperator(t *testing.T) {
	data := []byte(`
rules:
  - id: bad
    expr:
      field: x
      op: "~="
      literal: 1
`)
	_, err := ParseRules(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestDefaultRules_EvaluateTotally(t *testing.T) {
	for _, rule := range DefaultRules() {
		out := Eval(rule.Expr, Env{})
		assert.Equal(t, Exception, out, "rule %s over empty env", rule.ID)
	}
}
