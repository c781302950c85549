package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRisorSelector(t *testing.T) {
	record := map[string]any{
		"key":         "rec_1",
		"engine":      "RelaxEngineA",
		"node_type":   "workchain",
		"exit_status": int64(0),
		"energy":      -512.25,
	}

	tests := []struct {
		name   string
		code   string
		truthy bool
		value  any
	}{
		{
			name:   "attribute comparison",
			code:   `record.engine == "RelaxEngineA"`,
			truthy: true,
			value:  true,
		},
		{
			name:   "combined condition",
			code:   `record.energy < -500 && record.exit_status == 0`,
			truthy: true,
			value:  true,
		},
		{
			name:   "false condition",
			code:   `record.node_type == "calcjob"`,
			truthy: false,
			value:  false,
		},
		{
			name:   "string builtin",
			code:   `strings.has_prefix(record.key, "rec_")`,
			truthy: true,
			value:  true,
		},
		{
			name:   "arithmetic",
			code:   `record.energy * 2`,
			truthy: true,
			value:  -1024.5,
		},
	}

	engine := NewRisorCompiler(DefaultRisorGlobals())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			compiled, err := engine.Compile(ctx, tt.code)
			require.NoError(t, err)

			value, err := compiled.Evaluate(ctx, map[string]any{RecordGlobal: record})
			require.NoError(t, err)
			require.Equal(t, tt.truthy, value.IsTruthy())
			require.Equal(t, tt.value, value.Value())
		})
	}
}

func TestRisorCompileError(t *testing.T) {
	engine := NewRisorCompiler(DefaultRisorGlobals())
	_, err := engine.Compile(context.Background(), `record.energy <`)
	require.Error(t, err)
}

func TestRisorUndeclaredGlobal(t *testing.T) {
	engine := NewRisorCompiler(DefaultRisorGlobals())
	compiled, err := engine.Compile(context.Background(), `1 + 1`)
	require.NoError(t, err)

	_, err = compiled.Evaluate(context.Background(), map[string]any{"other": 1})
	require.ErrorContains(t, err, `global "other"`)
}

func TestDefaultRisorGlobalsAreSafe(t *testing.T) {
	globals := DefaultRisorGlobals()
	require.Contains(t, globals, RecordGlobal)
	require.Contains(t, globals, "len")
	require.NotContains(t, globals, "os")
	require.NotContains(t, globals, "exec")
	require.NotContains(t, globals, "http")

	safe := SafeBuiltins()
	for name := range globals {
		if name == RecordGlobal {
			continue
		}
		require.True(t, safe[name], name)
	}
}

func TestRisorValueString(t *testing.T) {
	engine := NewRisorCompiler(DefaultRisorGlobals())
	for code, want := range map[string]string{
		`"ok"`:  "ok",
		`42`:    "42",
		`1.5`:   "1.5",
		`false`: "false",
		`nil`:   "",
	} {
		compiled, err := engine.Compile(context.Background(), code)
		require.NoError(t, err)
		value, err := compiled.Evaluate(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, want, value.String(), code)
	}
}
