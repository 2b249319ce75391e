package script

import "context"

// Value is the result of evaluating a compiled expression.
type Value interface {
	// Value returns the underlying Go value.
	Value() any

	// String renders the value the way templates do.
	String() string

	// IsTruthy reports whether the value counts as true in a condition.
	IsTruthy() bool
}

// Script is a compiled expression. It is safe to evaluate concurrently.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles edge conditions and logical routing expressions.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
