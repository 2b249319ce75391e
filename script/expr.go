package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultBuiltins are the expr builtins enabled by NewExprEngine. Everything
// else, including any function able to reach the host, stays disabled.
var DefaultBuiltins = []string{
	"len", "lower", "upper", "trim", "abs", "int", "float", "string",
	"hasPrefix", "hasSuffix", "any", "all", "none",
}

type ExprScript struct {
	engine  *ExprEngine
	program *vm.Program
}

func (s *ExprScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env := make(map[string]any, len(s.engine.globals)+len(globals))
	for name, value := range s.engine.globals {
		env[name] = value
	}
	for name, value := range globals {
		env[name] = value
	}
	result, err := expr.Run(s.program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return NewValue(result), nil
}

// ExprEngine compiles restricted boolean and comparison expressions with
// expr-lang. Expressions cannot declare functions, loop unboundedly or call
// into Go beyond the enabled builtins. Compiled programs are cached by source.
type ExprEngine struct {
	globals  map[string]any
	builtins []string
	cache    sync.Map // code -> *vm.Program
}

// NewExprEngine returns an engine whose scripts see the given globals in
// addition to the per-evaluation globals.
func NewExprEngine(globals map[string]any) *ExprEngine {
	return &ExprEngine{globals: globals, builtins: DefaultBuiltins}
}

func (e *ExprEngine) Compile(ctx context.Context, code string) (Script, error) {
	if cached, ok := e.cache.Load(code); ok {
		return &ExprScript{engine: e, program: cached.(*vm.Program)}, nil
	}
	opts := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
	}
	for _, name := range e.builtins {
		opts = append(opts, expr.EnableBuiltin(name))
	}
	program, err := expr.Compile(code, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", code, err)
	}
	e.cache.Store(code, program)
	return &ExprScript{engine: e, program: program}, nil
}
