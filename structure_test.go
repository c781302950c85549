package cattools

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFallbackStructure(t *testing.T) {
	require.True(t, FallbackStructure.IsFallback())
	require.True(t, FallbackStructure.Copy().IsFallback())
	require.False(t, testStructure("Ce", "O").IsFallback())
	require.False(t, (*Structure)(nil).IsFallback())
	require.Equal(t, 1, FallbackStructure.Len())
	require.Equal(t, FallbackSymbol, FallbackStructure.Symbols[0])
}

func TestStructureConstraints(t *testing.T) {
	s := testStructure("Ce", "O", "O")

	_, err := s.WithConstraints([][3]bool{{true, true, true}})
	require.Error(t, err)

	fixed := [][3]bool{{true, true, true}, {false, false, false}, {false, false, true}}
	constrained, err := s.WithConstraints(fixed)
	require.NoError(t, err)
	require.Nil(t, s.Fixed)
	require.Equal(t, fixed, constrained.Fixed)
	require.Equal(t, []int{0, 2}, constrained.FixedIndices())

	dof := constrained.DegreesOfFreedom()
	require.Equal(t, [][3]bool{{false, false, false}, {true, true, true}, {true, true, false}}, dof)

	// Degrees of freedom and reattachment are inverse encodings.
	parsed, err := parsePositionsDOF(dof)
	require.NoError(t, err)
	require.Equal(t, fixed, parsed)

	require.Equal(t, [][3]bool{{true, true, true}, {true, true, true}, {true, true, true}}, s.DegreesOfFreedom())
}

func TestParsePositionsDOF(t *testing.T) {
	want := [][3]bool{{false, true, false}}

	parsed, err := parsePositionsDOF([]any{[]any{true, false, true}})
	require.NoError(t, err)
	require.Equal(t, want, parsed)

	parsed, err = parsePositionsDOF([][]bool{{true, false, true}})
	require.NoError(t, err)
	require.Equal(t, want, parsed)

	for _, value := range []any{
		"all",
		[]any{[]any{true, false}},
		[]any{[]any{true, false, "yes"}},
		[][]bool{{true}},
	} {
		_, err := parsePositionsDOF(value)
		require.Error(t, err, "%v", value)
	}
}

func TestStructureCopyIsDeep(t *testing.T) {
	s := testStructure("Ce", "O")
	c := s.Copy()
	if diff := cmp.Diff(s, c); diff != "" {
		t.Errorf("copy differs (-want +got):\n%s", diff)
	}
	c.Positions[0][0] = 42
	c.Cell[0][0] = 42
	c.Symbols[1] = "N"
	require.Equal(t, 0.0, s.Positions[0][0])
	require.Equal(t, 5.4, s.Cell[0][0])
	require.Equal(t, "O", s.Symbols[1])
}

func TestParseForm(t *testing.T) {
	form, err := ParseForm("pk")
	require.NoError(t, err)
	require.Equal(t, FormKey, form)

	form, err = ParseForm("")
	require.NoError(t, err)
	require.Equal(t, FormDomain, form)

	_, err = ParseForm("ase")
	require.Error(t, err)
	require.Equal(t, "key", FormKey.String())
}

func TestStructureData(t *testing.T) {
	s := testStructure("Ce", "O", "O")
	s.Fixed = [][3]bool{{true, true, true}, {}, {}}
	data := NewStructureData("", s)
	require.NotEmpty(t, data.StableKey())
	require.Len(t, data.Kinds, 2)
	require.Equal(t, []string{"Ce", "O", "O"}, data.SiteKindNames())

	domain, err := data.DomainStructure()
	require.NoError(t, err)
	require.Nil(t, domain.Fixed)
	require.Equal(t, s.Symbols, domain.Symbols)
	require.Equal(t, s.Positions, domain.Positions)
	require.Equal(t, *s.Cell, *domain.Cell)

	mapping, err := data.PlainMapping()
	require.NoError(t, err)
	require.Len(t, mapping["sites"], 3)

	data.Sites[0].KindName = "Ce3"
	_, err = data.DomainStructure()
	require.Error(t, err)
}

func TestStructureDataKinds(t *testing.T) {
	data := &StructureData{
		Key:   "rec_s",
		Kinds: []Kind{{Name: "Ce1", Symbol: "Ce"}, {Name: "Ce2", Symbol: "Ce"}},
		Sites: []Site{{KindName: "Ce1"}, {KindName: "Ce2"}},
	}
	require.Equal(t, []string{"Ce1", "Ce2"}, data.SiteKindNames())

	s, err := data.DomainStructure()
	require.NoError(t, err)
	require.Equal(t, []string{"Ce", "Ce"}, s.Symbols)
	require.Nil(t, s.Cell)
}

func TestDictBlobPlainMappingIsCopy(t *testing.T) {
	blob := NewDictBlob("rec_d", map[string]any{"nested": map[string]any{"list": []any{1.0}}})
	mapping, err := blob.PlainMapping()
	require.NoError(t, err)
	mapping["nested"].(map[string]any)["list"].([]any)[0] = 2.0

	again, err := blob.PlainMapping()
	require.NoError(t, err)
	require.Equal(t, 1.0, again["nested"].(map[string]any)["list"].([]any)[0])
	require.Equal(t, "rec_d", blob.StableKey())
}
