package cattools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	f := newRecordFixture(t)

	magnetic := magnetizationRecord([]string{"Ce", "O"}, map[string]any{
		"0": map[string]any{"f": 0.95, "tot": 1.0},
		"1": map[string]any{"f": 0.0, "tot": 0.05},
	})
	magnetic.Label = "ceo2 vacancy"
	magnetic.Outputs[OutputMisc] = miscBlob(-250.5)
	f.put(magnetic)

	noEnergy := f.relaxed(EngineRelaxB, -1)
	delete(noEnergy.Outputs, OutputMisc)
	f.put(noEnergy)

	extractor := f.extractor()

	t.Run("complete record", func(t *testing.T) {
		summary := extractor.Summarize(ctx, magnetic.Key, DefaultMagnetizationOptions())
		require.Equal(t, magnetic.Key, summary.Key)
		require.Equal(t, "ceo2 vacancy", summary.Label)
		require.Equal(t, EngineRelaxA, summary.EngineLabel)
		require.Equal(t, -250.5, summary.FinalEnergy)
		require.False(t, summary.Fallback)
		require.NotNil(t, summary.SiteMoments)
		require.Equal(t, 1, *summary.SiteMoments)
	})

	t.Run("missing energy", func(t *testing.T) {
		summary := extractor.Summarize(ctx, noEnergy.Key, DefaultMagnetizationOptions())
		require.Equal(t, EnergyMissing, summary.FinalEnergy)
		require.True(t, summary.Fallback)
		require.Nil(t, summary.SiteMoments)
	})

	t.Run("unresolved key", func(t *testing.T) {
		summary := extractor.Summarize(ctx, "rec_unknown", DefaultMagnetizationOptions())
		require.Equal(t, &Simulation{Key: "rec_unknown", FinalEnergy: EnergyMissing, Fallback: true}, summary)
	})
}
