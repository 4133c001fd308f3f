package spread

import (
	"strings"

	"github.com/rotisserie/eris"
)

const metricPrefix = "@metric:"

// evalStructural evaluates a "A + B - C" expression left to right against the
// column's value snapshot. A missing operand contributes zero; if no operand
// is defined at all, the result is nil. Operators other than + and - are
// rejected at evaluation time.
func evalStructural(formula string, values map[string]*float64) (*float64, error) {
	tokens := strings.Fields(formula)
	if len(tokens) == 0 {
		return nil, eris.New("spread: empty formula")
	}

	var acc float64
	anyDefined := false
	op := "+"
	expectOperand := true

	for _, tok := range tokens {
		if expectOperand {
			v := values[tok]
			if v != nil {
				anyDefined = true
				switch op {
				case "+":
					acc += *v
				case "-":
					acc -= *v
				}
			}
			expectOperand = false
			continue
		}
		if tok != "+" && tok != "-" {
			return nil, eris.Errorf("spread: unsupported operator %q in %q", tok, formula)
		}
		op = tok
		expectOperand = true
	}
	if expectOperand {
		return nil, eris.Errorf("spread: formula %q ends with an operator", formula)
	}
	if !anyDefined {
		return nil, nil
	}
	out := acc
	return &out, nil
}

// metricName extracts the metric name from an "@metric:<name>" formula, or
// "" when the formula is structural.
func metricName(formula string) string {
	if strings.HasPrefix(formula, metricPrefix) {
		return strings.TrimPrefix(formula, metricPrefix)
	}
	return ""
}
