package spread

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// formatValue renders a cell value deterministically. Currency-style values
// get thousands grouping and parenthesized negatives; ratios keep their sign
// and fixed precision; percents scale by 100. A nil value renders as an
// em-dash-free placeholder.
func formatValue(v *float64, def RowDef) string {
	if v == nil {
		return "--"
	}

	prec := def.Precision
	val := *v

	if def.Percent {
		return printer.Sprintf("%v%%", number.Decimal(val*100,
			number.MaxFractionDigits(prec), number.MinFractionDigits(prec)))
	}
	if def.Ratio {
		return printer.Sprintf("%v", number.Decimal(val,
			number.MaxFractionDigits(prec), number.MinFractionDigits(prec)))
	}

	if val < 0 {
		return printer.Sprintf("(%v)", number.Decimal(-val,
			number.MaxFractionDigits(prec), number.MinFractionDigits(prec)))
	}
	return printer.Sprintf("%v", number.Decimal(val,
		number.MaxFractionDigits(prec), number.MinFractionDigits(prec)))
}
