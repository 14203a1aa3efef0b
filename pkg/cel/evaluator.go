package cel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"courier/pkg/models"
)

// Evaluator compiles predicates over an event's envelope. Expressions see
// two variables: type (the event tag) and payload (its JSON object form).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileBool(expression)
	return err
}

// Filter is a compiled boolean expression.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, err := e.compileBool(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (e *Evaluator) compileBool(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

func (f *Filter) String() string {
	return f.expression
}

// Match evaluates the filter against ev. A payload field the expression
// touches but the event lacks is an evaluation error, not a false.
func (f *Filter) Match(ctx context.Context, ev models.Event) (bool, error) {
	payload, err := payloadMap(ev)
	if err != nil {
		return false, err
	}

	vars := map[string]interface{}{
		"type":    string(ev.Type()),
		"payload": payload,
	}

	result, _, err := f.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return matched, nil
}

func payloadMap(ev models.Event) (map[string]interface{}, error) {
	env := ev.Envelope()
	out := map[string]interface{}{}
	if env.Payload == nil {
		return out, nil
	}

	data, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return out, nil
}
