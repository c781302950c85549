package script

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RecordGlobal is the global holding the record a selector is evaluated for.
const RecordGlobal = "record"

// safeBuiltins are the Risor builtins and modules that are deterministic and
// free of side effects.
var safeBuiltins = []string{
	"all", "any", "bool", "byte", "call", "chunk", "coalesce", "error",
	"errorf", "errors", "float", "float_slice", "fmt", "getattr", "int",
	"is_hashable", "iter", "json", "keys", "len", "list", "map", "math",
	"regexp", "reversed", "set", "sorted", "sprintf", "string", "strings",
	"try", "type",
}

// SafeBuiltins returns the names selector expressions may use besides the
// record global.
func SafeBuiltins() map[string]bool {
	names := make(map[string]bool, len(safeBuiltins))
	for _, name := range safeBuiltins {
		names[name] = true
	}
	return names
}

// DefaultRisorGlobals returns the safe Risor builtins plus an empty
// placeholder for the record global.
func DefaultRisorGlobals() map[string]any {
	builtins := all.Builtins()
	globals := make(map[string]any, len(safeBuiltins)+1)
	for _, name := range safeBuiltins {
		if value, ok := builtins[name]; ok {
			globals[name] = value
		}
	}
	globals[RecordGlobal] = object.NewMap(map[string]object.Object{})
	return globals
}

// RisorCompiler compiles Risor expressions against a fixed set of global
// names. Compiled scripts may be evaluated concurrently.
type RisorCompiler struct {
	globals map[string]any
}

func NewRisorCompiler(globals map[string]any) *RisorCompiler {
	return &RisorCompiler{globals: globals}
}

func (c *RisorCompiler) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}
	names := slices.Sorted(maps.Keys(c.globals))
	compiled, err := compiler.Compile(ast, compiler.WithGlobalNames(names))
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	return &risorScript{globals: c.globals, code: compiled}, nil
}

type risorScript struct {
	globals map[string]any
	code    *compiler.Code
}

// Evaluate runs the script. The given globals replace the compiler's values
// for the same names; names unknown at compile time are rejected.
func (s *risorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	env := maps.Clone(s.globals)
	for name, value := range globals {
		if _, ok := env[name]; !ok {
			return nil, fmt.Errorf("global %q was not declared when the script was compiled", name)
		}
		env[name] = value
	}
	result, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(env))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return risorValue{result}, nil
}

type risorValue struct {
	obj object.Object
}

func (v risorValue) Value() any     { return goValue(v.obj) }
func (v risorValue) IsTruthy() bool { return truthy(v.obj) }

func (v risorValue) String() string {
	switch obj := v.obj.(type) {
	case *object.String:
		return obj.Value()
	case *object.NilType:
		return ""
	case *object.Int, *object.Float, *object.Bool:
		return fmt.Sprint(goValue(obj))
	default:
		return obj.Inspect()
	}
}
