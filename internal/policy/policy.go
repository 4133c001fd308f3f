// Package policy evaluates lending-policy conditions over resolved metrics.
// The expression language is a closed union: All, Any, and Compare. The
// evaluator is total over that union; a field missing from the environment is
// an exception outcome, never a panic or error.
package policy

import (
	"fmt"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Op is a comparison operator.
type Op string

const (
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpEQ  Op = "=="
	OpNEQ Op = "!="
)

// Outcome is one rule's evaluation result.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
	// Exception marks a rule that could not be decided because a referenced
	// field had no value in the environment.
	Exception Outcome = "exception"
)

// Expr is a policy expression. The union is closed: All, Any, Compare.
type Expr interface {
	isExpr()
	// Describe renders the expression for snapshot summaries.
	Describe() string
}

// All passes when every child passes; any child exception makes the whole
// expression an exception unless some child already failed.
type All struct{ Exprs []Expr }

// Any passes when at least one child passes.
type Any struct{ Exprs []Expr }

// Compare tests one environment field against a literal.
type Compare struct {
	Field   string
	Op      Op
	Literal float64
}

func (All) isExpr()     {}
func (Any) isExpr()     {}
func (Compare) isExpr() {}

func (e All) Describe() string { return describeGroup("all", e.Exprs) }
func (e Any) Describe() string { return describeGroup("any", e.Exprs) }
func (e Compare) Describe() string {
	return fmt.Sprintf("%s %s %g", e.Field, e.Op, e.Literal)
}

func describeGroup(name string, exprs []Expr) string {
	out := name + "("
	for i, e := range exprs {
		if i > 0 {
			out += ", "
		}
		out += e.Describe()
	}
	return out + ")"
}

// Env supplies field values. A nil value means the field is unresolved.
type Env map[string]*float64

// Eval evaluates an expression. Total over the closed union: every expression
// yields exactly one outcome.
func Eval(e Expr, env Env) Outcome {
	switch expr := e.(type) {
	case All:
		return evalAll(expr.Exprs, env)
	case Any:
		return evalAny(expr.Exprs, env)
	case Compare:
		return evalCompare(expr, env)
	default:
		// Unreachable while the union stays closed; new variants must be
		// added here before they exist.
		return Exception
	}
}

func evalAll(exprs []Expr, env Env) Outcome {
	if len(exprs) == 0 {
		return Pass
	}
	out := Pass
	for _, e := range exprs {
		switch Eval(e, env) {
		case Fail:
			return Fail
		case Exception:
			out = Exception
		}
	}
	return out
}

func evalAny(exprs []Expr, env Env) Outcome {
	if len(exprs) == 0 {
		return Fail
	}
	out := Fail
	for _, e := range exprs {
		switch Eval(e, env) {
		case Pass:
			return Pass
		case Exception:
			out = Exception
		}
	}
	return out
}

func evalCompare(c Compare, env Env) Outcome {
	v, ok := env[c.Field]
	if !ok || v == nil {
		return Exception
	}
	var pass bool
	switch c.Op {
	case OpGT:
		pass = *v > c.Literal
	case OpGTE:
		pass = *v >= c.Literal
	case OpLT:
		pass = *v < c.Literal
	case OpLTE:
		pass = *v <= c.Literal
	case OpEQ:
		pass = *v == c.Literal
	case OpNEQ:
		pass = *v != c.Literal
	default:
		return Exception
	}
	if pass {
		return Pass
	}
	return Fail
}

// Rule is a named policy expression.
type Rule struct {
	ID   string
	Expr Expr
}

// ruleSpec is the YAML shape of one expression node.
type ruleSpec struct {
	All     []ruleSpec `yaml:"all,omitempty"`
	Any     []ruleSpec `yaml:"any,omitempty"`
	Field   string     `yaml:"field,omitempty"`
	Op      string     `yaml:"op,omitempty"`
	Literal float64    `yaml:"literal,omitempty"`
}

type rulesFile struct {
	Rules []struct {
		ID   string   `yaml:"id"`
		Expr ruleSpec `yaml:"expr"`
	} `yaml:"rules"`
}

// ParseRules loads a rule set from YAML.
func ParseRules(data []byte) ([]Rule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "policy: parse rules yaml")
	}
	rules := make([]Rule, 0, len(file.Rules))
	for _, r := range file.Rules {
		if r.ID == "" {
			return nil, eris.New("policy: rule missing id")
		}
		expr, err := r.Expr.toExpr()
		if err != nil {
			return nil, eris.Wrapf(err, "policy: rule %s", r.ID)
		}
		rules = append(rules, Rule{ID: r.ID, Expr: expr})
	}
	return rules, nil
}

func (s ruleSpec) toExpr() (Expr, error) {
	set := 0
	if len(s.All) > 0 {
		set++
	}
	if len(s.Any) > 0 {
		set++
	}
	if s.Field != "" {
		set++
	}
	if set != 1 {
		return nil, eris.New("node must be exactly one of all/any/field comparison")
	}

	switch {
	case len(s.All) > 0:
		children, err := toExprs(s.All)
		if err != nil {
			return nil, err
		}
		return All{Exprs: children}, nil
	case len(s.Any) > 0:
		children, err := toExprs(s.Any)
		if err != nil {
			return nil, err
		}
		return Any{Exprs: children}, nil
	default:
		op := Op(s.Op)
		switch op {
		case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ:
		default:
			return nil, eris.Errorf("unknown operator %q", s.Op)
		}
		return Compare{Field: s.Field, Op: op, Literal: s.Literal}, nil
	}
}

func toExprs(specs []ruleSpec) ([]Expr, error) {
	out := make([]Expr, 0, len(specs))
	for _, s := range specs {
		e, err := s.toExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// DefaultRules is the built-in underwriting rule set, used when no rules file
// is configured.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "min_debt_service_coverage", Expr: Compare{Field: "debt_service_coverage", Op: OpGTE, Literal: 1.25}},
		{ID: "max_loan_to_value", Expr: Compare{Field: "loan_to_value", Op: OpLTE, Literal: 0.80}},
		{ID: "positive_cash_flow", Expr: All{Exprs: []Expr{
			Compare{Field: "net_operating_income", Op: OpGT, Literal: 0},
			Compare{Field: "excess_cash_flow", Op: OpGT, Literal: 0},
		}}},
	}
}
