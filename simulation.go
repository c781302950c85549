package cattools

import (
	"context"
)

// Simulation gathers the headline results of one execution.
type Simulation struct {
	Key         string  `json:"key" yaml:"key"`
	Label       string  `json:"label,omitempty" yaml:"label,omitempty"`
	NodeType    string  `json:"node_type,omitempty" yaml:"node_type,omitempty"`
	EngineLabel string  `json:"engine" yaml:"engine"`
	ExitStatus  int     `json:"exit_status" yaml:"exit_status"`
	FinalEnergy float64 `json:"final_energy" yaml:"final_energy"`
	// SiteMoments is the number of target-kind sites above the moment
	// threshold, nil when unavailable.
	SiteMoments *int `json:"site_moments,omitempty" yaml:"site_moments,omitempty"`
	// Fallback is set when FinalEnergy is a sentinel rather than a
	// computed value.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// Summarize returns the headline results of a record. An unresolved record
// yields a summary holding only the key and the missing energy sentinel.
func (e *Extractor) Summarize(ctx context.Context, key string, opts MagnetizationOptions) *Simulation {
	summary := &Simulation{Key: key, FinalEnergy: EnergyMissing, Fallback: true}
	if key == NoRecord {
		return summary
	}
	record, err := e.Load(ctx, key)
	if err != nil {
		e.log(ctx, key).Warn("summary unavailable, record not loaded", "error", err)
		return summary
	}
	summary.Label = record.Label
	summary.NodeType = record.NodeType
	summary.EngineLabel = record.EngineLabel
	summary.ExitStatus = record.ExitStatus
	summary.FinalEnergy, summary.Fallback = e.finalEnergy(ctx, key)
	summary.SiteMoments = e.Magnetization(ctx, key, opts).CountAboveThreshold
	return summary
}
