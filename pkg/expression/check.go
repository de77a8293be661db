package expression

import (
	"fmt"

	"github.com/expr-lang/expr"
)

func CheckArchiveSingleMatch(a *Archive, expressions []CompiledExpression) (bool, error) {
	match, _, err := CheckArchiveSingleMatchWithReason(a, expressions)
	return match, err
}

func CheckArchiveSingleMatchWithReason(a *Archive, expressions []CompiledExpression) (bool, string, error) {
	for _, expression := range expressions {
		result, err := expr.Run(expression.Program, *a)
		if err != nil {
			return false, "", fmt.Errorf("check expression: %w", err)
		}

		expResult, ok := result.(bool)
		if !ok {
			return false, "", fmt.Errorf("expression %q did not evaluate to a boolean", expression.Text)
		}

		if expResult {
			return true, expression.Text, nil
		}
	}

	return false, "", nil
}
