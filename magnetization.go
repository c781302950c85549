package cattools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// MagnetizationPath is the location of the per-site moment breakdown inside
// the site magnetization output.
const MagnetizationPath = "site_magnetization.sphere.x.site_moment"

// TotalMoment is the column holding the total moment of a site.
const TotalMoment = "tot"

// MagnetizationOptions selects the statistics derived from a moment table.
type MagnetizationOptions struct {
	// Threshold is the moment magnitude a target site must exceed to be
	// counted.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// TargetKind and TargetOrbital name the kind whose sites are counted and
	// summed, and the orbital column compared against Threshold.
	TargetKind    string `json:"target_kind" yaml:"target_kind"`
	TargetOrbital string `json:"target_orbital" yaml:"target_orbital"`
	// OtherKind optionally names a kind whose first site's total moment is
	// reported.
	OtherKind string `json:"other_kind,omitempty" yaml:"other_kind,omitempty"`
}

// DefaultMagnetizationOptions counts Ce sites with an f moment above 0.7.
func DefaultMagnetizationOptions() MagnetizationOptions {
	return MagnetizationOptions{
		Threshold:     0.7,
		TargetKind:    "Ce",
		TargetOrbital: "f",
	}
}

// MagnetizationRow holds the absolute moments of one site.
type MagnetizationRow struct {
	// Site is the 0-based index of the site in the input structure.
	Site int `json:"site"`
	// SiteID is the identifier the moment output used for the site.
	SiteID string `json:"site_id"`
	// Kind is the kind label of the site, taken from the input structure.
	Kind    string             `json:"kind"`
	Moments map[string]float64 `json:"moments"`
}

// Moment returns the moment in one column.
func (r MagnetizationRow) Moment(orbital string) (float64, bool) {
	moment, ok := r.Moments[orbital]
	return moment, ok
}

// MagnetizationTable is the per-site moment table of a record, one row per
// site of its input structure.
type MagnetizationTable struct {
	// Orbitals lists the columns present in any row, with the total last.
	Orbitals []string           `json:"orbitals"`
	Rows     []MagnetizationRow `json:"rows"`
}

// HasColumn reports whether any row carries the column.
func (t *MagnetizationTable) HasColumn(orbital string) bool {
	for _, name := range t.Orbitals {
		if name == orbital {
			return true
		}
	}
	return false
}

// Magnetization holds the moment table of a record and the statistics
// derived from it. A nil field means the data is unavailable, which is
// distinct from a computed zero.
type Magnetization struct {
	Table *MagnetizationTable `json:"table,omitempty"`
	// CountAboveThreshold is the number of target-kind sites whose target
	// orbital moment exceeds the threshold.
	CountAboveThreshold *int `json:"count_above_threshold,omitempty"`
	// SummedMoment is the total moment summed over the target-kind sites.
	SummedMoment *float64 `json:"summed_moment,omitempty"`
	// OtherKindMoment is the total moment of the first site of OtherKind.
	OtherKindMoment *float64 `json:"other_kind_moment,omitempty"`
}

// Available reports whether the moment table could be built.
func (m *Magnetization) Available() bool {
	return m.Table != nil
}

// Magnetization builds the per-site moment table of a record from its input
// structure and its site magnetization output. It never fails: when the
// table cannot be built an all-absent result is returned and logged.
func (e *Extractor) Magnetization(ctx context.Context, key string, opts MagnetizationOptions) *Magnetization {
	if key == NoRecord {
		return &Magnetization{}
	}
	logger := e.log(ctx, key)

	record, err := e.Load(ctx, key)
	if err != nil {
		logger.Warn("magnetization unavailable, record not loaded", "error", err)
		return &Magnetization{}
	}
	table, err := magnetizationTable(record)
	if err != nil {
		logger.Warn("magnetization unavailable", "error", err)
		return &Magnetization{}
	}

	result := &Magnetization{Table: table}
	if count, ok := table.countAbove(opts.TargetKind, opts.TargetOrbital, opts.Threshold); ok {
		result.CountAboveThreshold = &count
	} else {
		logger.Warn("moment column unavailable for kind", "kind", opts.TargetKind, "orbital", opts.TargetOrbital)
	}
	if sum, ok := table.sumTotal(opts.TargetKind); ok {
		result.SummedMoment = &sum
	}
	if opts.OtherKind != "" {
		if moment, ok := table.firstTotal(opts.OtherKind); ok {
			result.OtherKindMoment = &moment
		}
	}
	return result
}

// magnetizationTable aligns the moment rows of a record with the kind labels
// of its input structure by position.
func magnetizationTable(record *ExecutionRecord) (*MagnetizationTable, error) {
	blob, ok := record.Input(InputStructure)
	if !ok {
		return nil, MissingOutputError(record.Key, "inputs."+InputStructure)
	}
	structure, ok := blob.(StructureBlob)
	if !ok {
		return nil, NewExtractionError(ErrorTypeMissingOutput, record.Key,
			fmt.Sprintf("input structure is %T, not a structure", blob))
	}
	kinds := structure.SiteKindNames()

	output, ok := record.Output(OutputMagnetization)
	if !ok {
		return nil, MissingOutputError(record.Key, "outputs."+OutputMagnetization)
	}
	values, err := output.PlainMapping()
	if err != nil {
		return nil, err
	}
	moments, err := LookupMap(values, MagnetizationPath)
	if err != nil {
		return nil, MissingOutputError(record.Key, "outputs."+OutputMagnetization+"."+MagnetizationPath)
	}

	rows, err := momentRows(moments)
	if err != nil {
		return nil, NewExtractionError(ErrorTypeMissingOutput, record.Key, err.Error())
	}
	if len(rows) != len(kinds) {
		return nil, NewExtractionError(ErrorTypeMissingOutput, record.Key,
			fmt.Sprintf("moment table has %d rows, input structure has %d sites", len(rows), len(kinds)))
	}

	table := &MagnetizationTable{Rows: rows}
	columns := map[string]bool{}
	for i := range table.Rows {
		table.Rows[i].Site = i
		table.Rows[i].Kind = kinds[i]
		for orbital := range table.Rows[i].Moments {
			columns[orbital] = true
		}
	}
	for orbital := range columns {
		if orbital != TotalMoment {
			table.Orbitals = append(table.Orbitals, orbital)
		}
	}
	sort.Strings(table.Orbitals)
	if columns[TotalMoment] {
		table.Orbitals = append(table.Orbitals, TotalMoment)
	}
	return table, nil
}

// momentRows decodes the site id to orbital moment mapping into rows ordered
// by numeric site id.
func momentRows(moments map[string]any) ([]MagnetizationRow, error) {
	type indexed struct {
		id  int
		row MagnetizationRow
	}
	items := make([]indexed, 0, len(moments))
	for siteID, raw := range moments {
		id, err := strconv.Atoi(siteID)
		if err != nil {
			return nil, fmt.Errorf("site id %q is not numeric", siteID)
		}
		orbitals, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("site %s moments are %T, not a mapping", siteID, raw)
		}
		row := MagnetizationRow{SiteID: siteID, Moments: make(map[string]float64, len(orbitals))}
		for orbital, value := range orbitals {
			moment, ok := toFloat(value)
			if !ok {
				return nil, fmt.Errorf("site %s orbital %s moment is %T, not a number", siteID, orbital, value)
			}
			row.Moments[orbital] = math.Abs(moment)
		}
		items = append(items, indexed{id: id, row: row})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	rows := make([]MagnetizationRow, len(items))
	for i, item := range items {
		rows[i] = item.row
	}
	return rows, nil
}

// countAbove counts the rows of kind whose orbital moment exceeds threshold.
// It reports false when no row of kind carries the orbital, unless there are
// no rows of kind at all and the column exists elsewhere in the table.
func (t *MagnetizationTable) countAbove(kind, orbital string, threshold float64) (int, bool) {
	count, matched, carried := 0, 0, 0
	for _, row := range t.Rows {
		if row.Kind != kind {
			continue
		}
		matched++
		moment, ok := row.Moment(orbital)
		if !ok {
			continue
		}
		carried++
		if moment > threshold {
			count++
		}
	}
	if matched == 0 {
		return 0, t.HasColumn(orbital)
	}
	return count, carried > 0
}

func (t *MagnetizationTable) sumTotal(kind string) (float64, bool) {
	if !t.HasColumn(TotalMoment) {
		return 0, false
	}
	sum := 0.0
	for _, row := range t.Rows {
		if row.Kind == kind {
			sum += row.Moments[TotalMoment]
		}
	}
	return sum, true
}

func (t *MagnetizationTable) firstTotal(kind string) (float64, bool) {
	for _, row := range t.Rows {
		if row.Kind == kind {
			return row.Moment(TotalMoment)
		}
	}
	return 0, false
}
