// Package cel provides a CEL-based compiler for policy expression conditions.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Compiler compiles CEL expression conditions into evaluable programs.
// It implements policy.ExprCompiler.
type Compiler struct {
	env *cel.Env
}

var _ policy.ExprCompiler = (*Compiler)(nil)

// NewCompiler creates a compiler with the policy environment.
func NewCompiler() (*Compiler, error) {
	env, err := NewPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Compile parses and type-checks an expression, enforcing the safety
// limits (length, nesting depth) before handing back a program.
func (c *Compiler) Compile(source string) (policy.ExprProgram, error) {
	if source == "" {
		return nil, errors.New("expression is empty")
	}
	if len(source) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(source), maxExpressionLength)
	}
	if err := validateNesting(source); err != nil {
		return nil, err
	}

	ast, issues := c.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := c.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &program{prg: prg}, nil
}

// program wraps a compiled CEL program behind policy.ExprProgram.
type program struct {
	prg cel.Program
}

// Eval runs the program against the request. Uses ContextEval with a
// timeout to prevent indefinite evaluation hangs.
func (p *program) Eval(req *action.Request) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := p.prg.ContextEval(ctx, buildActivation(req))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
