package artifact

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

type expressionDocument struct {
	Kind       string         `json:"kind"`
	Features   []string       `json:"features"`
	Expression string         `json:"decision_function"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExpressionModel evaluates a CEL expression over the named features.
// Each feature name is bound as a double variable.
type ExpressionModel struct {
	features []string
	program  cel.Program
}

// NewExpressionModel compiles expression against the given feature names.
// The expression must return a double.
func NewExpressionModel(features []string, expression string) (*ExpressionModel, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("expression model declares no features")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression model has no decision_function")
	}

	opts := make([]cel.EnvOption, 0, len(features))
	seen := make(map[string]bool, len(features))
	for _, name := range features {
		if seen[name] {
			return nil, fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = true
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile decision_function: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return nil, fmt.Errorf("decision_function must return double, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &ExpressionModel{
		features: append([]string(nil), features...),
		program:  program,
	}, nil
}

// Kind returns the artifact kind.
func (m *ExpressionModel) Kind() string { return KindExpression }

// Features returns the bound feature names in vector order.
func (m *ExpressionModel) Features() []string { return m.features }

// DecisionFunction evaluates the expression with v bound positionally.
func (m *ExpressionModel) DecisionFunction(v domain.FeatureVector) (float64, error) {
	if len(v) != len(m.features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.features), len(v))
	}

	activation := make(map[string]any, len(v))
	for i, name := range m.features {
		activation[name] = v[i]
	}

	out, _, err := m.program.Eval(activation)
	if err != nil {
		return 0, fmt.Errorf("evaluate decision_function: %w", err)
	}

	d, ok := out.(types.Double)
	if !ok {
		return 0, fmt.Errorf("decision_function returned %s", out.Type().TypeName())
	}
	return float64(d), nil
}
