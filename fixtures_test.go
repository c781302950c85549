package cattools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStructure(symbols ...string) *Structure {
	s := &Structure{
		Symbols:   symbols,
		Positions: make([][3]float64, len(symbols)),
		Cell:      &[3][3]float64{{5.4, 0, 0}, {0, 5.4, 0}, {0, 0, 5.4}},
		PBC:       [3]bool{true, true, true},
	}
	for i := range s.Positions {
		s.Positions[i] = [3]float64{float64(i) * 1.1, 0.5, 0.25}
	}
	return s
}

func miscBlob(energy float64) *DictBlob {
	return NewDictBlob("", map[string]any{
		"total_energies": map[string]any{
			"energy_extrapolated_electronic": energy,
			"energy_extrapolated":            energy - 0.01,
		},
	})
}

// recordFixture builds records for the extractor tests.
type recordFixture struct {
	t     *testing.T
	store *MemoryStore
}

func newRecordFixture(t *testing.T) *recordFixture {
	return &recordFixture{t: t, store: NewMemoryStore()}
}

func (f *recordFixture) put(record *ExecutionRecord) *ExecutionRecord {
	f.t.Helper()
	if record.NodeType == "" {
		record.NodeType = "workchain"
	}
	require.NoError(f.t, f.store.Put(context.Background(), record))
	return record
}

// relaxed adds a successful record of the given engine whose output structure
// is displaced from its input.
func (f *recordFixture) relaxed(engine string, energy float64) *ExecutionRecord {
	input := testStructure("Ce", "Ce", "O", "O")
	output := input.Copy()
	for i := range output.Positions {
		output.Positions[i][2] += 0.1
	}
	record := &ExecutionRecord{
		EngineLabel: engine,
		Inputs: map[string]Blob{
			InputStructure: NewStructureData("", input),
		},
		Outputs: map[string]Blob{
			OutputMisc: miscBlob(energy),
		},
	}
	switch engine {
	case EngineRelaxA:
		record.Outputs["relax.structure"] = NewStructureData("", output)
		record.Inputs[InputParameters] = NewDictBlob("", map[string]any{
			"dynamics": map[string]any{
				"positions_dof": []any{
					[]any{false, false, false},
					[]any{true, true, true},
					[]any{true, true, false},
					[]any{true, true, true},
				},
			},
		})
	case EngineRelaxB:
		record.Outputs["output_structure"] = NewStructureData("", output)
	}
	return f.put(record)
}

func (f *recordFixture) extractor() *Extractor {
	f.t.Helper()
	extractor, err := NewExtractor(ExtractorOptions{Store: f.store})
	require.NoError(f.t, err)
	return extractor
}
