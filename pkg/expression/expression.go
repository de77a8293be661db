package expression

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Archive is the environment a skip expression is evaluated against.
type Archive struct {
	Name    string
	Path    string
	Kind    string
	Size    int64
	AgeDays float64
}

type CompiledExpression struct {
	Text    string
	Program *vm.Program
}

// Compile compiles user supplied filter expressions against the
// Archive environment. Each expression must evaluate to a boolean.
func Compile(filters []string) ([]CompiledExpression, error) {
	expressions := make([]CompiledExpression, 0, len(filters))

	for _, filter := range filters {
		program, err := expr.Compile(filter, expr.Env(Archive{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", filter, err)
		}

		expressions = append(expressions, CompiledExpression{
			Text:    filter,
			Program: program,
		})
	}

	return expressions, nil
}
