package cattools

import (
	"context"
	"fmt"
	"math"

	"github.com/LopezGroup-ICIQ/cattools/script"
)

// DefaultMatchTolerance is the energy window used when MatchOptions leaves
// Tolerance unset.
const DefaultMatchTolerance = 0.5

// Tolerance returns a MatchOptions tolerance of v. Zero matches the target
// energy exactly.
func Tolerance(v float64) *float64 {
	return &v
}

// MatchOptions configures an energy match query.
type MatchOptions struct {
	// NodeType restricts the scan to one record type. Empty matches all.
	NodeType string
	Target   float64
	// Tolerance is the half-width of the accepted window. Nil selects
	// DefaultMatchTolerance.
	Tolerance *float64
	// Where is an optional selector expression evaluated against the global
	// "record". Records for which it is falsy are skipped, e.g.
	// `record.engine == "RelaxEngineA"`.
	Where string
}

// MatchEnergy returns the keys of successful records whose final energy lies
// within the tolerance of the target, in ascending creation order. Any
// record lacking the energy field fails the query.
func (e *Extractor) MatchEnergy(ctx context.Context, opts MatchOptions) ([]string, error) {
	tolerance := DefaultMatchTolerance
	if opts.Tolerance != nil {
		tolerance = *opts.Tolerance
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("invalid match tolerance %v", tolerance)
	}

	var selector script.Script
	if opts.Where != "" {
		compiled, err := e.compiler.Compile(ctx, opts.Where)
		if err != nil {
			return nil, fmt.Errorf("failed to compile selector %q: %w", opts.Where, err)
		}
		selector = compiled
	}

	filter := Filter{NodeType: opts.NodeType}.WithExitStatus(ExitStatusOK)
	records, err := e.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	var keys []string
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		energy, err := miscEnergy(record)
		if err != nil {
			return nil, err
		}
		if selector != nil {
			value, err := selector.Evaluate(ctx, map[string]any{
				"record": selectorGlobals(record, energy),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate selector for record %s: %w", record.Key, err)
			}
			if !value.IsTruthy() {
				continue
			}
		}
		if math.Abs(energy-opts.Target) <= tolerance {
			keys = append(keys, record.Key)
		}
	}
	e.log(ctx, NoRecord).Debug("matched energy",
		"target", opts.Target, "tolerance", tolerance, "scanned", len(records), "matched", len(keys))
	return keys, nil
}

// selectorGlobals is the "record" value seen by selector expressions.
func selectorGlobals(record *ExecutionRecord, energy float64) map[string]any {
	return map[string]any{
		"key":         record.Key,
		"label":       record.Label,
		"node_type":   record.NodeType,
		"engine":      record.EngineLabel,
		"exit_status": int64(record.ExitStatus),
		"ordinal":     record.Ordinal,
		"energy":      energy,
	}
}
