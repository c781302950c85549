package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/LopezGroup-ICIQ/cattools"
	"github.com/fatih/color"
)

type app struct {
	config    *Config
	settings  *cattools.Config
	store     recordStore
	extractor *cattools.Extractor
}

func (a *app) run(ctx context.Context) error {
	switch a.config.Command {
	case "energy":
		return a.energy(ctx)
	case "structure":
		return a.structure(ctx)
	case "change":
		return a.change(ctx)
	case "magnetization":
		return a.magnetization(ctx)
	case "batch":
		return a.batch(ctx)
	case "match":
		return a.match(ctx)
	case "summary":
		return a.summary(ctx)
	case "engines":
		return a.engines()
	case "import":
		return a.importRecords(ctx)
	default:
		return fmt.Errorf("unknown command %q", a.config.Command)
	}
}

// keys returns the keys given with -key, -keys and as arguments.
func (a *app) keys() ([]string, error) {
	keys := append(append([]string(nil), a.config.Keys...), a.config.Args...)
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one record key is required")
	}
	return keys, nil
}

func (a *app) form() (cattools.Form, error) {
	return cattools.ParseForm(a.config.Form)
}

func (a *app) energy(ctx context.Context) error {
	keys, err := a.keys()
	if err != nil {
		return err
	}
	energies := make(map[string]float64, len(keys))
	for _, key := range keys {
		energies[key] = a.extractor.FinalEnergy(ctx, key)
	}
	if a.config.JSON {
		return printJSON(energies)
	}
	for _, key := range keys {
		fmt.Printf("%s  %s\n", key, formatEnergy(energies[key]))
	}
	return nil
}

func (a *app) structure(ctx context.Context) error {
	keys, err := a.keys()
	if err != nil {
		return err
	}
	role, err := cattools.ParseRole(a.config.Role)
	if err != nil {
		return err
	}
	form, err := a.form()
	if err != nil {
		return err
	}
	var views [][]cattools.StructureView
	for _, key := range keys {
		view, err := a.extractor.Structure(ctx, key, role, form)
		if err != nil {
			return err
		}
		views = append(views, view)
	}
	return a.printViews(keys, 1, cattools.FlattenViews(views))
}

func (a *app) change(ctx context.Context) error {
	keys, err := a.keys()
	if err != nil {
		return err
	}
	form, err := a.form()
	if err != nil {
		return err
	}
	var views [][]cattools.StructureView
	for _, key := range keys {
		views = append(views, a.extractor.StructuralChange(ctx, key, form))
	}
	return a.printViews(keys, 2, cattools.FlattenViews(views))
}

func (a *app) batch(ctx context.Context) error {
	mode, err := cattools.ParseMode(a.config.Mode)
	if err != nil {
		return err
	}
	form, err := a.form()
	if err != nil {
		return err
	}
	var (
		selection cattools.Selection
		keys      []string
	)
	if a.config.Collection != "" {
		selection = cattools.Collection(a.config.Collection)
	} else {
		if keys, err = a.keys(); err != nil {
			return err
		}
		selection = cattools.Keys(keys...)
	}
	views, err := a.extractor.Batch(ctx, selection, cattools.BatchOptions{
		Mode:          mode,
		Form:          form,
		PreserveOrder: a.config.PreserveOrder,
	})
	if err != nil {
		return err
	}
	perKey := 1
	if mode == cattools.ModeChange {
		perKey = 2
	}
	return a.printViews(keys, perKey, views)
}

func (a *app) magnetization(ctx context.Context) error {
	keys, err := a.keys()
	if err != nil {
		return err
	}
	results := make(map[string]*cattools.Magnetization, len(keys))
	for _, key := range keys {
		results[key] = a.extractor.Magnetization(ctx, key, a.settings.Magnetization)
	}
	if a.config.JSON {
		return printJSON(results)
	}
	opts := a.settings.Magnetization
	for _, key := range keys {
		result := results[key]
		color.Cyan("%s", key)
		if !result.Available() {
			color.Yellow("  magnetization unavailable")
			continue
		}
		fmt.Printf("  %s sites with |%s| > %g: %s\n", opts.TargetKind, opts.TargetOrbital, opts.Threshold, formatCount(result.CountAboveThreshold))
		fmt.Printf("  summed %s moment: %s\n", opts.TargetKind, formatMoment(result.SummedMoment))
		if opts.OtherKind != "" {
			fmt.Printf("  %s moment: %s\n", opts.OtherKind, formatMoment(result.OtherKindMoment))
		}
		fmt.Printf("  %-6s %-6s", "site", "kind")
		for _, orbital := range result.Table.Orbitals {
			fmt.Printf(" %8s", orbital)
		}
		fmt.Println()
		for _, row := range result.Table.Rows {
			fmt.Printf("  %-6d %-6s", row.Site, row.Kind)
			for _, orbital := range result.Table.Orbitals {
				if moment, ok := row.Moment(orbital); ok {
					fmt.Printf(" %8.4f", moment)
				} else {
					fmt.Printf(" %8s", "-")
				}
			}
			fmt.Println()
		}
	}
	return nil
}

func (a *app) match(ctx context.Context) error {
	nodeType := a.config.NodeType
	if nodeType == "" {
		nodeType = a.settings.Match.NodeType
	}
	tolerance := a.settings.Match.Tolerance
	if a.config.Tolerance != nil {
		tolerance = *a.config.Tolerance
	}
	keys, err := a.extractor.MatchEnergy(ctx, cattools.MatchOptions{
		NodeType:  nodeType,
		Target:    a.config.Target,
		Tolerance: cattools.Tolerance(tolerance),
		Where:     a.config.Where,
	})
	if err != nil {
		return err
	}
	if a.config.JSON {
		if keys == nil {
			keys = []string{}
		}
		return printJSON(keys)
	}
	if len(keys) == 0 {
		color.Yellow("No records within %g of %g", tolerance, a.config.Target)
		return nil
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func (a *app) summary(ctx context.Context) error {
	keys, err := a.keys()
	if err != nil {
		return err
	}
	summaries := make([]*cattools.Simulation, len(keys))
	for i, key := range keys {
		summaries[i] = a.extractor.Summarize(ctx, key, a.settings.Magnetization)
	}
	if a.config.JSON {
		return printJSON(summaries)
	}
	for _, s := range summaries {
		color.Cyan("%s %s", s.Key, s.Label)
		fmt.Printf("  engine: %s (%s)\n", s.EngineLabel, s.NodeType)
		status := color.GreenString("%d", s.ExitStatus)
		if s.ExitStatus != cattools.ExitStatusOK {
			status = color.RedString("%d", s.ExitStatus)
		}
		fmt.Printf("  exit status: %s\n", status)
		fmt.Printf("  final energy: %s\n", formatEnergy(s.FinalEnergy))
		fmt.Printf("  site moments: %s\n", formatCount(s.SiteMoments))
	}
	return nil
}

func (a *app) engines() error {
	registry := a.extractor.Engines()
	var engines []cattools.Engine
	for _, label := range registry.Labels() {
		engine, _ := registry.Lookup(label)
		engines = append(engines, engine)
	}
	if a.config.JSON {
		return printJSON(engines)
	}
	for _, engine := range engines {
		reattach := ""
		if engine.ReattachConstraints {
			reattach = " (constraints from " + cattools.InputParameters + ")"
		}
		fmt.Printf("%-16s %s%s\n", engine.Label, engine.Path(), reattach)
	}
	return nil
}

// importRecords adds record documents to the store, and to -collection when
// given.
func (a *app) importRecords(ctx context.Context) error {
	if len(a.config.Args) == 0 {
		return fmt.Errorf("at least one record file is required")
	}
	var keys []string
	for _, path := range a.config.Args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read record file: %w", err)
		}
		record, err := cattools.DecodeRecord(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := a.store.Put(ctx, record); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		keys = append(keys, record.Key)
		color.Green("Imported %s as %s", path, record.Key)
	}
	if a.config.Collection != "" {
		if err := a.store.AddToCollection(ctx, a.config.Collection, keys...); err != nil {
			return err
		}
		color.Blue("Added %d records to collection %s", len(keys), a.config.Collection)
	}
	return nil
}

// printViews prints structure results, perKey consecutive views per key.
func (a *app) printViews(keys []string, perKey int, views []cattools.StructureView) error {
	if a.config.JSON {
		return printJSON(views)
	}
	for i, view := range views {
		label := strconv.Itoa(i / perKey)
		if i/perKey < len(keys) {
			label = keys[i/perKey]
		}
		side := ""
		if perKey == 2 {
			side = " in "
			if i%2 == 1 {
				side = " out"
			}
		}
		fmt.Printf("%s%s  %s\n", label, side, formatView(view))
	}
	return nil
}

func formatView(view cattools.StructureView) string {
	if view.IsFallback() {
		return color.YellowString("fallback")
	}
	if view.Form == cattools.FormKey {
		return view.Key
	}
	s := view.Structure
	text := fmt.Sprintf("%s (%d atoms)", formula(s.Symbols), s.Len())
	if fixed := s.FixedIndices(); len(fixed) > 0 {
		text += fmt.Sprintf(", %d fixed", len(fixed))
	}
	return text
}

// formula returns the chemical formula in order of first appearance.
func formula(symbols []string) string {
	counts := map[string]int{}
	var order []string
	for _, symbol := range symbols {
		if counts[symbol] == 0 {
			order = append(order, symbol)
		}
		counts[symbol]++
	}
	var b strings.Builder
	for _, symbol := range order {
		b.WriteString(symbol)
		if counts[symbol] > 1 {
			b.WriteString(strconv.Itoa(counts[symbol]))
		}
	}
	return b.String()
}

func formatEnergy(energy float64) string {
	switch energy {
	case cattools.EnergyMissing:
		return color.YellowString("missing")
	case cattools.EnergyUnrecovered:
		return color.YellowString("unrecovered")
	default:
		return fmt.Sprintf("%.6f eV", energy)
	}
}

func formatCount(count *int) string {
	if count == nil {
		return color.YellowString("unavailable")
	}
	return strconv.Itoa(*count)
}

func formatMoment(moment *float64) string {
	if moment == nil {
		return color.YellowString("unavailable")
	}
	return fmt.Sprintf("%.4f", *moment)
}
