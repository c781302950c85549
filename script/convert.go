package script

import (
	"github.com/risor-io/risor/object"
)

// goValue converts a Risor object to plain Go values. Sets become lists and
// unknown objects their inspected form.
func goValue(obj object.Object) any {
	switch o := obj.(type) {
	case *object.NilType:
		return nil
	case *object.String:
		return o.Value()
	case *object.Int:
		return o.Value()
	case *object.Float:
		return o.Value()
	case *object.Bool:
		return o.Value()
	case *object.List:
		return goValues(o.Value())
	case *object.Set:
		items := make([]object.Object, 0, len(o.Value()))
		for _, item := range o.Value() {
			items = append(items, item)
		}
		return goValues(items)
	case *object.Map:
		m := make(map[string]any, len(o.Value()))
		for key, value := range o.Value() {
			m[key] = goValue(value)
		}
		return m
	default:
		return obj.Inspect()
	}
}

func goValues(items []object.Object) []any {
	values := make([]any, len(items))
	for i, item := range items {
		values[i] = goValue(item)
	}
	return values
}

// truthy reports whether a selector result keeps its record. Zero numbers,
// empty strings and empty containers drop it.
func truthy(obj object.Object) bool {
	switch o := obj.(type) {
	case *object.NilType:
		return false
	case *object.Bool:
		return o.Value()
	case *object.Int:
		return o.Value() != 0
	case *object.Float:
		return o.Value() != 0
	case *object.String:
		return o.Value() != ""
	case *object.List:
		return len(o.Value()) > 0
	case *object.Map:
		return len(o.Value()) > 0
	default:
		return obj.IsTruthy()
	}
}
