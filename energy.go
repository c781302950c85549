package cattools

import (
	"context"
)

// Sentinel energies returned by FinalEnergy. Both are outside the range of
// real total energies, which are negative and far below -1 eV.
const (
	// EnergyMissing is returned when the record is unresolved, failed with an
	// unrecoverable status, or lacks the energy output.
	EnergyMissing = -1.0

	// EnergyUnrecovered is returned when a partially failed workchain could
	// not be recovered from its last calculation.
	EnergyUnrecovered = 0.0
)

// EnergyPath is the location of the final electronic energy inside the misc
// output.
const EnergyPath = "total_energies.energy_extrapolated_electronic"

// FinalEnergy returns the extrapolated electronic energy of a record. It
// never fails: problems are logged and reported as EnergyMissing or
// EnergyUnrecovered.
func (e *Extractor) FinalEnergy(ctx context.Context, key string) float64 {
	energy, _ := e.finalEnergy(ctx, key)
	return energy
}

// finalEnergy also reports whether the returned value is a sentinel.
func (e *Extractor) finalEnergy(ctx context.Context, key string) (float64, bool) {
	logger := e.log(ctx, key)

	record, err := e.Load(ctx, key)
	if err != nil {
		logger.Warn("energy unavailable, record not loaded", "error", err)
		return EnergyMissing, true
	}

	switch record.ExitStatus {
	case ExitStatusOK:
		energy, err := miscEnergy(record)
		if err != nil {
			logger.Warn("energy unavailable", "error", err)
			return EnergyMissing, true
		}
		return energy, false

	case ExitStatusSubprocessFailed:
		return e.recoverEnergy(ctx, record)

	default:
		logger.Warn("energy unavailable for failed execution", "exit_status", record.ExitStatus)
		return EnergyMissing, true
	}
}

// recoverEnergy reads the energy of a partially failed workchain from its
// last called calculation, provided that calculation only failed to parse
// the stress.
func (e *Extractor) recoverEnergy(ctx context.Context, record *ExecutionRecord) (float64, bool) {
	logger := e.log(ctx, record.Key).With("exit_status", record.ExitStatus)

	lastKey, ok := record.LastCalled()
	if !ok {
		logger.Warn("cannot recover energy, execution called no sub-executions")
		return EnergyUnrecovered, true
	}
	last, err := e.Load(ctx, lastKey)
	if err != nil {
		logger.Warn("cannot recover energy, last sub-execution not loaded",
			"called", lastKey, "error", err)
		return EnergyUnrecovered, true
	}
	if last.ExitStatus != ExitStatusStressUnparsed {
		logger.Warn("execution failed for an unexpected reason",
			"called", lastKey, "called_exit_status", last.ExitStatus)
		return EnergyUnrecovered, true
	}
	energy, err := miscEnergy(last)
	if err != nil {
		logger.Warn("cannot recover energy from last sub-execution",
			"called", lastKey, "error", err)
		return EnergyUnrecovered, true
	}
	logger.Debug("recovered energy from last sub-execution", "called", lastKey)
	return energy, false
}

// miscEnergy reads the energy field of the misc output.
func miscEnergy(record *ExecutionRecord) (float64, error) {
	misc, ok := record.Output(OutputMisc)
	if !ok {
		return 0, MissingOutputError(record.Key, "outputs."+OutputMisc)
	}
	values, err := misc.PlainMapping()
	if err != nil {
		return 0, &ExtractionError{
			Type:    ErrorTypeMissingOutput,
			Key:     record.Key,
			Cause:   "misc output is unreadable",
			Wrapped: err,
		}
	}
	energy, err := LookupFloat(values, EnergyPath)
	if err != nil {
		return 0, &ExtractionError{
			Type:    ErrorTypeMissingOutput,
			Key:     record.Key,
			Cause:   err.Error(),
			Details: "outputs." + OutputMisc + "." + EnergyPath,
			Wrapped: err,
		}
	}
	return energy, nil
}
