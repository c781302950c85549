package script

import (
	"context"
)

// Value is the result of evaluating a script.
type Value interface {
	// Value returns the Go form of the result.
	Value() any

	// String returns the string representation of the result.
	String() string

	// IsTruthy reports whether the result selects the item it was evaluated
	// for.
	IsTruthy() bool
}

// Script is a compiled expression that can be evaluated repeatedly with
// different globals.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles source code into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
