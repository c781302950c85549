package cattools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Role selects which structure of a record is extracted.
type Role int

const (
	RoleInput Role = iota
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole parses "input" or "output".
func ParseRole(s string) (Role, error) {
	switch s {
	case "input", "in":
		return RoleInput, nil
	case "output", "out":
		return RoleOutput, nil
	default:
		return 0, fmt.Errorf("unknown structure role %q", s)
	}
}

// DOFPath is the location of the per-axis degrees of freedom inside the
// parameters input of engines that keep constraints there.
const DOFPath = "dynamics.positions_dof"

// Structure returns the input or output structure of a record as a single
// element list. Any structure that cannot be produced is replaced by the
// fallback view and logged. The only error returned is an
// *UnsupportedEngineError for output structures of unregistered engines.
func (e *Extractor) Structure(ctx context.Context, key string, role Role, form Form) ([]StructureView, error) {
	if key == NoRecord {
		return []StructureView{fallbackView(form)}, nil
	}
	logger := e.log(ctx, key).With("role", role.String())

	record, err := e.Load(ctx, key)
	if err != nil {
		logger.Warn("structure unavailable, record not loaded", "error", err)
		return []StructureView{fallbackView(form)}, nil
	}

	var engine Engine
	switch role {
	case RoleInput:
		// Unknown engines never fail here: there is nothing to dispatch, only
		// constraints to reattach when the engine is known to need it.
		engine, _ = e.engines.Lookup(record.EngineLabel)
		engine.Port = PortInputs
		engine.Structure = InputStructure
		engine.Warning = ""
	case RoleOutput:
		if !record.Succeeded() {
			logger.Warn("no output structure for failed execution", "exit_status", record.ExitStatus)
			return []StructureView{fallbackView(form)}, nil
		}
		if engine, err = e.engines.Resolve(record); err != nil {
			return nil, err
		}
		if engine.Warning != "" {
			logger.Warn(engine.Warning, "engine", engine.Label)
		}
	default:
		return nil, fmt.Errorf("unknown structure role %d", int(role))
	}

	view, err := e.structureView(logger, record, engine, form)
	if err != nil {
		logger.Warn("structure unavailable", "error", err)
		return []StructureView{fallbackView(form)}, nil
	}
	return []StructureView{view}, nil
}

// structureView reads the structure blob an engine entry points at.
func (e *Extractor) structureView(logger *slog.Logger, record *ExecutionRecord, engine Engine, form Form) (StructureView, error) {
	blob, ok := engine.structureBlob(record)
	if !ok {
		return StructureView{}, MissingOutputError(record.Key, engine.Path())
	}
	if form == FormKey {
		return StructureView{Form: FormKey, Key: blob.StableKey()}, nil
	}
	structureBlob, ok := blob.(StructureBlob)
	if !ok {
		return StructureView{}, NewExtractionError(ErrorTypeMissingOutput, record.Key,
			fmt.Sprintf("%s is %T, not a structure", engine.Path(), blob))
	}
	structure, err := structureBlob.DomainStructure()
	if err != nil {
		return StructureView{}, fmt.Errorf("failed to decode %s: %w", engine.Path(), err)
	}
	if engine.ReattachConstraints {
		structure = reattachConstraints(logger, record, structure)
	}
	return StructureView{Form: FormDomain, Structure: structure}, nil
}

// reattachConstraints applies the degrees of freedom recorded in the
// parameters input. A structure is returned unconstrained if they are missing
// or do not match it.
func reattachConstraints(logger *slog.Logger, record *ExecutionRecord, structure *Structure) *Structure {
	fixed, err := recordedConstraints(record)
	if err != nil {
		logger.Warn("constraints not reattached", "error", err)
		return structure
	}
	constrained, err := structure.WithConstraints(fixed)
	if err != nil {
		logger.Warn("constraints not reattached", "error", err)
		return structure
	}
	return constrained
}

func recordedConstraints(record *ExecutionRecord) ([][3]bool, error) {
	blob, ok := record.Input(InputParameters)
	if !ok {
		return nil, MissingOutputError(record.Key, "inputs."+InputParameters)
	}
	parameters, err := blob.PlainMapping()
	if err != nil {
		return nil, err
	}
	dof, err := LookupPath(parameters, DOFPath)
	if err != nil {
		return nil, MissingOutputError(record.Key, "inputs."+InputParameters+"."+DOFPath)
	}
	return parsePositionsDOF(dof)
}

// StructuralChange returns the input and output structures of a record. It
// never fails: an output structure that cannot be produced, including one of
// an unregistered engine, is replaced by the fallback view.
func (e *Extractor) StructuralChange(ctx context.Context, key string, form Form) []StructureView {
	input, err := e.Structure(ctx, key, RoleInput, form)
	if err != nil {
		e.log(ctx, key).Warn("input structure unavailable", "error", err)
		input = []StructureView{fallbackView(form)}
	}
	output, err := e.Structure(ctx, key, RoleOutput, form)
	if err != nil {
		logger := e.log(ctx, key)
		if errors.Is(err, ErrUnsupportedEngine) {
			logger.Warn("output structure replaced by fallback", "error", err)
		} else {
			logger.Error("output structure replaced by fallback", "error", err)
		}
		output = []StructureView{fallbackView(form)}
	}
	return []StructureView{input[0], output[0]}
}
