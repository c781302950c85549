package cattools

import (
	"fmt"
	"sort"
	"sync"
)

// Port names the side of a record a blob is read from.
type Port string

const (
	PortInputs  Port = "inputs"
	PortOutputs Port = "outputs"
)

// Engine describes where a workflow engine keeps its final structure and
// whether constraints must be re-attached after reading it.
type Engine struct {
	Label string `json:"label" yaml:"label"`
	// Port and Structure locate the final structure blob.
	Port      Port   `json:"port" yaml:"port"`
	Structure string `json:"structure" yaml:"structure"`
	// ReattachConstraints is set for engines that keep selective dynamics in
	// the parameters blob instead of on the structure itself.
	ReattachConstraints bool `json:"reattach_constraints,omitempty" yaml:"reattach_constraints,omitempty"`
	// Warning is logged whenever the final structure is read, e.g. for
	// engines that do not emit a relaxed structure.
	Warning string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Path returns the structure location as "port.name".
func (e Engine) Path() string {
	return string(e.Port) + "." + e.Structure
}

// Validate checks if the engine entry is properly configured
func (e Engine) Validate() error {
	if e.Label == "" {
		return fmt.Errorf("engine label required")
	}
	if e.Port != PortInputs && e.Port != PortOutputs {
		return fmt.Errorf("engine %q: invalid port %q", e.Label, e.Port)
	}
	if e.Structure == "" {
		return fmt.Errorf("engine %q: structure name required", e.Label)
	}
	return nil
}

// structureBlob returns the final structure blob of a record.
func (e Engine) structureBlob(r *ExecutionRecord) (Blob, bool) {
	if e.Port == PortInputs {
		return r.Input(e.Structure)
	}
	return r.Output(e.Structure)
}

// Engine labels known out of the box.
const (
	EngineRelaxA  = "RelaxEngineA"
	EngineRelaxB  = "RelaxEngineB"
	EngineStaticA = "StaticEngineA"
)

// DefaultEngines returns a new dispatch table holding the built-in engines.
func DefaultEngines() *Engines {
	engines, err := NewEngines(
		Engine{
			Label:               EngineRelaxA,
			Port:                PortOutputs,
			Structure:           "relax.structure",
			ReattachConstraints: true,
		},
		Engine{
			Label:     EngineRelaxB,
			Port:      PortOutputs,
			Structure: "output_structure",
		},
		Engine{
			Label:     EngineStaticA,
			Port:      PortInputs,
			Structure: InputStructure,
			Warning:   "engine does not return a relaxed structure, using the input structure instead",
		},
	)
	if err != nil {
		panic(err)
	}
	return engines
}

// Engines is the dispatch table keyed by engine label. New engines are
// supported by registering an entry.
type Engines struct {
	byLabel map[string]Engine
	mutex   sync.RWMutex
}

// NewEngines returns a dispatch table holding the given entries.
func NewEngines(engines ...Engine) (*Engines, error) {
	r := &Engines{byLabel: make(map[string]Engine, len(engines))}
	for _, engine := range engines {
		if err := r.Register(engine); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an entry, replacing any entry with the same label.
func (r *Engines) Register(engine Engine) error {
	if err := engine.Validate(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.byLabel[engine.Label] = engine
	return nil
}

// Lookup returns the entry for a label.
func (r *Engines) Lookup(label string) (Engine, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	engine, ok := r.byLabel[label]
	return engine, ok
}

// Resolve returns the entry for the record's engine label, or an
// *UnsupportedEngineError when there is none.
func (r *Engines) Resolve(record *ExecutionRecord) (Engine, error) {
	engine, ok := r.Lookup(record.EngineLabel)
	if !ok {
		return Engine{}, &UnsupportedEngineError{Label: record.EngineLabel, Key: record.Key}
	}
	return engine, nil
}

// Labels returns the registered labels in sorted order.
func (r *Engines) Labels() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	labels := make([]string, 0, len(r.byLabel))
	for label := range r.byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
