package cattools

import (
	"encoding/json"
	"fmt"
)

// Blob is a typed value attached to a record as an input or output. The
// extraction layer reads blobs only through this interface.
type Blob interface {
	// StableKey identifies the blob in the provenance store.
	StableKey() string

	// PlainMapping returns the blob's content as a plain mapping. The result
	// is a copy and may be modified by the caller.
	PlainMapping() (map[string]any, error)
}

// StructureBlob is a Blob holding the storage form of an atomic structure.
type StructureBlob interface {
	Blob

	// DomainStructure converts the stored structure to its domain form.
	// Constraints are not part of the storage form.
	DomainStructure() (*Structure, error)

	// SiteKindNames returns the kind label of each site, in site order.
	SiteKindNames() []string
}

// Confirm the interfaces are implemented correctly.
var (
	_ Blob          = (*DictBlob)(nil)
	_ StructureBlob = (*StructureData)(nil)
)

// DictBlob is a plain dictionary blob such as engine parameters or parsed
// outputs.
type DictBlob struct {
	Key    string
	Values map[string]any
}

// NewDictBlob returns a dictionary blob with a fresh key if key is empty.
func NewDictBlob(key string, values map[string]any) *DictBlob {
	if key == "" {
		key = NewRecordKey()
	}
	return &DictBlob{Key: key, Values: values}
}

func (b *DictBlob) StableKey() string {
	return b.Key
}

func (b *DictBlob) PlainMapping() (map[string]any, error) {
	return deepCopyMap(b.Values), nil
}

// Kind maps a kind label (e.g. "Ce_3") to the element it represents.
type Kind struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Site is one atomic site of a stored structure.
type Site struct {
	KindName string     `json:"kind_name"`
	Position [3]float64 `json:"position"`
}

// StructureData is the storage form of a structure, as kept in the provenance
// graph and referenced by key.
type StructureData struct {
	Key   string        `json:"-"`
	Cell  [3][3]float64 `json:"cell"`
	PBC   [3]bool       `json:"pbc"`
	Kinds []Kind        `json:"kinds"`
	Sites []Site        `json:"sites"`
}

// NewStructureData returns the storage form of s, using each element symbol
// as its own kind. Constraints are dropped. A fresh key is assigned if key is
// empty.
func NewStructureData(key string, s *Structure) *StructureData {
	if key == "" {
		key = NewRecordKey()
	}
	d := &StructureData{Key: key, PBC: s.PBC}
	if s.Cell != nil {
		d.Cell = *s.Cell
	}
	seen := map[string]bool{}
	for i, symbol := range s.Symbols {
		if !seen[symbol] {
			seen[symbol] = true
			d.Kinds = append(d.Kinds, Kind{Name: symbol, Symbol: symbol})
		}
		d.Sites = append(d.Sites, Site{KindName: symbol, Position: s.Positions[i]})
	}
	return d
}

func (d *StructureData) StableKey() string {
	return d.Key
}

func (d *StructureData) PlainMapping() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal structure %s: %w", d.Key, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal structure %s: %w", d.Key, err)
	}
	return m, nil
}

func (d *StructureData) SiteKindNames() []string {
	names := make([]string, len(d.Sites))
	for i, site := range d.Sites {
		names[i] = site.KindName
	}
	return names
}

func (d *StructureData) DomainStructure() (*Structure, error) {
	symbols := make(map[string]string, len(d.Kinds))
	for _, kind := range d.Kinds {
		symbols[kind.Name] = kind.Symbol
	}
	s := &Structure{
		Symbols:   make([]string, len(d.Sites)),
		Positions: make([][3]float64, len(d.Sites)),
		PBC:       d.PBC,
	}
	for i, site := range d.Sites {
		symbol, ok := symbols[site.KindName]
		if !ok {
			return nil, fmt.Errorf("structure %s: site %d has undeclared kind %q", d.Key, i, site.KindName)
		}
		s.Symbols[i] = symbol
		s.Positions[i] = site.Position
	}
	if d.Cell != ([3][3]float64{}) {
		cell := d.Cell
		s.Cell = &cell
	}
	return s, nil
}

// deepCopyMap creates a deep copy of nested maps and slices
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = deepCopyValue(item)
		}
		return items
	default:
		return v
	}
}
