package cattools

import (
	"fmt"
)

// FallbackSymbol is the element symbol of the fallback structure's only atom.
// It is not a chemical element and never appears in real inputs.
const FallbackSymbol = "X"

// FallbackStructure is the placeholder returned whenever a requested
// structure cannot be produced. Callers may compare against it by identity
// and must not modify it.
var FallbackStructure = &Structure{
	Symbols:   []string{FallbackSymbol},
	Positions: [][3]float64{{0, 0, 0}},
	Cell:      &[3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	PBC:       [3]bool{true, true, true},
}

// Structure is the domain form of an atomic structure used for chemistry
// computation.
type Structure struct {
	Symbols   []string
	Positions [][3]float64
	// Cell holds the lattice vectors as rows. Nil for a non-periodic
	// structure.
	Cell *[3][3]float64
	PBC  [3]bool
	// Fixed holds per-atom, per-axis freeze flags (true = frozen). Nil means
	// the structure carries no constraints.
	Fixed [][3]bool
}

// Len returns the number of atoms.
func (s *Structure) Len() int {
	return len(s.Symbols)
}

// IsFallback reports whether s is the fallback placeholder.
func (s *Structure) IsFallback() bool {
	if s == nil {
		return false
	}
	if s == FallbackStructure {
		return true
	}
	return len(s.Symbols) == 1 && s.Symbols[0] == FallbackSymbol
}

// Copy returns a deep copy of the structure.
func (s *Structure) Copy() *Structure {
	c := &Structure{
		Symbols:   append([]string(nil), s.Symbols...),
		Positions: append([][3]float64(nil), s.Positions...),
		PBC:       s.PBC,
	}
	if s.Cell != nil {
		cell := *s.Cell
		c.Cell = &cell
	}
	if s.Fixed != nil {
		c.Fixed = append([][3]bool(nil), s.Fixed...)
	}
	return c
}

// WithConstraints returns a copy of s with the given freeze flags attached.
func (s *Structure) WithConstraints(fixed [][3]bool) (*Structure, error) {
	if len(fixed) != s.Len() {
		return nil, fmt.Errorf("constraints cover %d atoms, structure has %d", len(fixed), s.Len())
	}
	c := s.Copy()
	c.Fixed = append([][3]bool(nil), fixed...)
	return c, nil
}

// FixedIndices returns the indices of atoms with at least one frozen axis.
func (s *Structure) FixedIndices() []int {
	var indices []int
	for i, flags := range s.Fixed {
		if flags[0] || flags[1] || flags[2] {
			indices = append(indices, i)
		}
	}
	return indices
}

// DegreesOfFreedom returns the positions_dof encoding of the constraints, in
// which true marks an axis that is free to move. This is the form engines
// that keep constraints in a side parameter blob store them in.
func (s *Structure) DegreesOfFreedom() [][3]bool {
	dof := make([][3]bool, s.Len())
	for i := range dof {
		dof[i] = [3]bool{true, true, true}
		if i < len(s.Fixed) {
			for axis, frozen := range s.Fixed[i] {
				dof[i][axis] = !frozen
			}
		}
	}
	return dof
}

// parsePositionsDOF decodes a positions_dof value into freeze flags. It
// accepts decoded JSON ([]any of []any of bool) as well as typed slices.
func parsePositionsDOF(value any) ([][3]bool, error) {
	switch v := value.(type) {
	case [][3]bool:
		return invertDOF(v), nil
	case [][]bool:
		dof := make([][3]bool, len(v))
		for i, row := range v {
			if len(row) != 3 {
				return nil, fmt.Errorf("positions_dof row %d has %d entries", i, len(row))
			}
			copy(dof[i][:], row)
		}
		return invertDOF(dof), nil
	case []any:
		dof := make([][3]bool, len(v))
		for i, raw := range v {
			row, ok := raw.([]any)
			if !ok || len(row) != 3 {
				return nil, fmt.Errorf("positions_dof row %d is not a triple", i)
			}
			for axis, flag := range row {
				b, ok := flag.(bool)
				if !ok {
					return nil, fmt.Errorf("positions_dof row %d axis %d is %T, not bool", i, axis, flag)
				}
				dof[i][axis] = b
			}
		}
		return invertDOF(dof), nil
	default:
		return nil, fmt.Errorf("positions_dof has unsupported type %T", value)
	}
}

func invertDOF(dof [][3]bool) [][3]bool {
	fixed := make([][3]bool, len(dof))
	for i, row := range dof {
		fixed[i] = [3]bool{!row[0], !row[1], !row[2]}
	}
	return fixed
}

// Form selects how a structure is returned by the structure extractors.
type Form int

const (
	// FormDomain returns the domain Structure.
	FormDomain Form = iota
	// FormKey returns the stable key of the stored structure.
	FormKey
)

func (f Form) String() string {
	switch f {
	case FormDomain:
		return "domain"
	case FormKey:
		return "key"
	default:
		return fmt.Sprintf("form(%d)", int(f))
	}
}

// ParseForm parses "domain" or "key".
func ParseForm(s string) (Form, error) {
	switch s {
	case "domain", "":
		return FormDomain, nil
	case "key", "pk":
		return FormKey, nil
	default:
		return 0, fmt.Errorf("unknown structure form %q", s)
	}
}

// StructureView is one structure result in the requested form. Exactly one of
// Key or Structure is meaningful, depending on Form.
type StructureView struct {
	Form      Form
	Key       string
	Structure *Structure
}

// IsFallback reports whether the view stands in for an unobtainable
// structure.
func (v StructureView) IsFallback() bool {
	if v.Form == FormKey {
		return v.Key == NoRecord
	}
	return v.Structure.IsFallback()
}

func fallbackView(form Form) StructureView {
	if form == FormKey {
		return StructureView{Form: FormKey, Key: NoRecord}
	}
	return StructureView{Form: FormDomain, Structure: FallbackStructure}
}

// FlattenViews concatenates nested structure results into one flat list.
func FlattenViews(nested [][]StructureView) []StructureView {
	var flat []StructureView
	for _, views := range nested {
		flat = append(flat, views...)
	}
	return flat
}
