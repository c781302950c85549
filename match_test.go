package cattools

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestMatchEnergy(t *testing.T) {
	ctx := context.Background()
	f := newRecordFixture(t)
	exact := f.relaxed(EngineRelaxA, -100)
	near := f.relaxed(EngineRelaxB, -100.4)
	edge := f.relaxed(EngineRelaxB, -100.5)
	far := f.relaxed(EngineRelaxB, -101)
	failed := f.relaxed(EngineRelaxB, -100)
	failed.ExitStatus = ExitStatusSubprocessFailed
	f.put(failed)
	calc := f.relaxed(EngineRelaxB, -100)
	calc.NodeType = "calcjob"
	f.put(calc)
	extractor := f.extractor()

	t.Run("default tolerance", func(t *testing.T) {
		keys, err := extractor.MatchEnergy(ctx, MatchOptions{NodeType: "workchain", Target: -100})
		require.NoError(t, err)
		require.Equal(t, []string{exact.Key, near.Key, edge.Key}, keys)
	})

	t.Run("narrow tolerance", func(t *testing.T) {
		keys, err := extractor.MatchEnergy(ctx, MatchOptions{NodeType: "workchain", Target: -100, Tolerance: Tolerance(0.1)})
		require.NoError(t, err)
		require.Equal(t, []string{exact.Key}, keys)
	})

	t.Run("zero tolerance matches exactly", func(t *testing.T) {
		keys, err := extractor.MatchEnergy(ctx, MatchOptions{NodeType: "workchain", Target: -100, Tolerance: Tolerance(0)})
		require.NoError(t, err)
		require.Equal(t, []string{exact.Key}, keys)

		keys, err = extractor.MatchEnergy(ctx, MatchOptions{NodeType: "workchain", Target: -100.3, Tolerance: Tolerance(0)})
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("all node types", func(t *testing.T) {
		keys, err := extractor.MatchEnergy(ctx, MatchOptions{Target: -101, Tolerance: Tolerance(0.01)})
		require.NoError(t, err)
		require.Equal(t, []string{far.Key}, keys)

		keys, err = extractor.MatchEnergy(ctx, MatchOptions{Target: -100, Tolerance: Tolerance(0.01)})
		require.NoError(t, err)
		require.Equal(t, []string{exact.Key, calc.Key}, keys)
	})

	t.Run("selector", func(t *testing.T) {
		keys, err := extractor.MatchEnergy(ctx, MatchOptions{
			NodeType: "workchain",
			Target:   -100,
			Where:    `record.engine == "RelaxEngineB" && record.energy < -100.2`,
		})
		require.NoError(t, err)
		require.Equal(t, []string{near.Key, edge.Key}, keys)
	})

	t.Run("selector compile error", func(t *testing.T) {
		_, err := extractor.MatchEnergy(ctx, MatchOptions{Target: -100, Where: `record.energy <`})
		require.Error(t, err)
	})

	t.Run("negative tolerance", func(t *testing.T) {
		_, err := extractor.MatchEnergy(ctx, MatchOptions{Target: -100, Tolerance: Tolerance(-1)})
		require.Error(t, err)
		_, err = extractor.MatchEnergy(ctx, MatchOptions{Target: -100, Tolerance: Tolerance(math.NaN())})
		require.Error(t, err)
	})
}

func TestMatchEnergyMissingFieldIsFatal(t *testing.T) {
	f := newRecordFixture(t)
	f.relaxed(EngineRelaxB, -100)
	broken := f.put(&ExecutionRecord{EngineLabel: EngineRelaxB})
	extractor := f.extractor()

	_, err := extractor.MatchEnergy(context.Background(), MatchOptions{NodeType: "workchain", Target: -100})
	require.ErrorIs(t, err, ErrMissingOutput)
	require.True(t, MatchesErrorType(err, ErrorTypeMissingOutput))
	require.Equal(t, broken.Key, ClassifyError(err).Key)
}

func TestMatchEnergyWindowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("returns exact matches and excludes energies outside the window", prop.ForAll(
		func(target, tolerance float64, offsets []float64) bool {
			f := newRecordFixture(t)
			exact := f.relaxed(EngineRelaxB, target)
			energies := map[string]float64{exact.Key: target}
			for _, offset := range offsets {
				record := f.relaxed(EngineRelaxB, target+offset)
				energies[record.Key] = target + offset
			}
			extractor := f.extractor()

			keys, err := extractor.MatchEnergy(context.Background(), MatchOptions{
				NodeType:  "workchain",
				Target:    target,
				Tolerance: Tolerance(tolerance),
			})
			if err != nil {
				return false
			}
			matched := map[string]bool{}
			for _, key := range keys {
				matched[key] = true
				if math.Abs(energies[key]-target) > tolerance {
					return false
				}
			}
			return matched[exact.Key]
		},
		gen.Float64Range(-2000, -1),
		gen.Float64Range(0, 2),
		gen.SliceOfN(8, gen.Float64Range(-3, 3)),
	))

	properties.TestingRun(t)
}
