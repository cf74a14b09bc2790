package scoring

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// RuleEvaluator runs operator-configurable CEL expressions over a
// signal-group context, used for hard-kill and strict-mode overrides
// that need to reference more than a single signal type (e.g. "hard
// kill unless a funding_signal is also present").
// The static HardKillTypes/lookup table in Config handles the common
// case; this exists for operators who need a rule the static table can't
// express.
type RuleEvaluator struct {
	env *cel.Env
}

// RuleContext is the variable set CEL expressions can reference.
type RuleContext struct {
	SignalTypes    []string
	SourcesChecked int
	MaxConfidence  float64
}

// NewRuleEvaluator builds an evaluator whose expressions see
// signal_types (list of string), sources_checked (int), and
// max_confidence (double).
func NewRuleEvaluator() (*RuleEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("signal_types", cel.ListType(cel.StringType)),
		cel.Variable("sources_checked", cel.IntType),
		cel.Variable("max_confidence", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("scoring: cel env: %w", err)
	}
	return &RuleEvaluator{env: env}, nil
}

// Eval compiles and runs expr against ctx, expecting a boolean result.
// Compiled programs are not cached here; callers evaluating the same
// expression repeatedly should cache the *cel.Program themselves.
func (r *RuleEvaluator) Eval(expr string, ctx RuleContext) (bool, error) {
	ast, issues := r.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("scoring: cel compile: %w", issues.Err())
	}
	program, err := r.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("scoring: cel program: %w", err)
	}
	out, _, err := program.Eval(map[string]any{
		"signal_types":    ctx.SignalTypes,
		"sources_checked": ctx.SourcesChecked,
		"max_confidence":  ctx.MaxConfidence,
	})
	if err != nil {
		return false, fmt.Errorf("scoring: cel eval: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("scoring: rule %q did not return bool", expr)
	}
	return result, nil
}
