package cattools

import (
	"context"
	"fmt"
	"sort"
)

// Mode selects what Batch extracts for each key.
type Mode int

const (
	ModeInput Mode = iota
	ModeOutput
	// ModeChange extracts input and output structures, flattened as
	// input, output, input, output...
	ModeChange
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeChange:
		return "change"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "input", "output" or "change".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "input", "in":
		return ModeInput, nil
	case "output", "out":
		return ModeOutput, nil
	case "change":
		return ModeChange, nil
	default:
		return 0, fmt.Errorf("unknown batch mode %q", s)
	}
}

// Selection is the set of keys a batch runs over: either an explicit
// sequence or the members of a named collection.
type Selection struct {
	keys       []string
	collection string
}

// Keys selects an explicit sequence of keys. The sequence is never
// reordered.
func Keys(keys ...string) Selection {
	return Selection{keys: append([]string(nil), keys...)}
}

// Collection selects the members of a named collection.
func Collection(name string) Selection {
	return Selection{collection: name}
}

// IsCollection reports whether the selection names a collection.
func (s Selection) IsCollection() bool {
	return s.collection != ""
}

func (s Selection) String() string {
	if s.IsCollection() {
		return "collection " + s.collection
	}
	return fmt.Sprintf("%d keys", len(s.keys))
}

// BatchOptions configures a Batch run.
type BatchOptions struct {
	Mode Mode
	Form Form
	// PreserveOrder keeps collection members in the order the store returns
	// them instead of sorting by creation order.
	PreserveOrder bool
}

// Batch applies the structure extractors to every selected key and returns
// the flattened results. Errors from the per-key extractors are returned.
func (e *Extractor) Batch(ctx context.Context, selection Selection, opts BatchOptions) ([]StructureView, error) {
	keys, err := e.resolveSelection(ctx, selection, opts.PreserveOrder)
	if err != nil {
		return nil, err
	}
	e.log(ctx, NoRecord).Debug("running batch",
		"selection", selection.String(), "mode", opts.Mode.String(), "records", len(keys))

	views := make([]StructureView, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch opts.Mode {
		case ModeInput, ModeOutput:
			role := RoleInput
			if opts.Mode == ModeOutput {
				role = RoleOutput
			}
			result, err := e.Structure(ctx, key, role, opts.Form)
			if err != nil {
				return nil, err
			}
			views = append(views, result...)
		case ModeChange:
			views = append(views, e.StructuralChange(ctx, key, opts.Form)...)
		default:
			return nil, fmt.Errorf("unknown batch mode %d", int(opts.Mode))
		}
	}
	return views, nil
}

// resolveSelection returns the keys of a selection in processing order.
func (e *Extractor) resolveSelection(ctx context.Context, selection Selection, preserveOrder bool) ([]string, error) {
	if !selection.IsCollection() {
		return selection.keys, nil
	}
	members, err := e.store.Members(ctx, selection.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve collection %q: %w", selection.collection, err)
	}
	if !preserveOrder {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Ordinal < members[j].Ordinal
		})
	}
	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = member.Key
	}
	return keys, nil
}
