package pdump

import (
	"fmt"
	"reflect"
	"strings"
)

// ChangeKind classifies a Change.
type ChangeKind uint8

const (
	Added ChangeKind = iota
	Removed
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}

// Change is one difference between two dumps.
type Change struct {
	Kind   ChangeKind
	Name   string
	Fields []string // for Changed: which attributes differ
}

func (c Change) String() string {
	if c.Kind == Changed {
		return fmt.Sprintf("%s %s (%s)", c.Kind, c.Name, strings.Join(c.Fields, ", "))
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Name)
}

// Diff reports primitives added, removed or changed going from old to
// new, in name order. Both primitive lists are sorted by name.
func Diff(old, new *Dump) []Change {
	var out []Change
	i, j := 0, 0
	for i < len(old.Primitives) || j < len(new.Primitives) {
		switch {
		case j == len(new.Primitives) || (i < len(old.Primitives) && old.Primitives[i].Name < new.Primitives[j].Name):
			out = append(out, Change{Kind: Removed, Name: old.Primitives[i].Name})
			i++
		case i == len(old.Primitives) || new.Primitives[j].Name < old.Primitives[i].Name:
			out = append(out, Change{Kind: Added, Name: new.Primitives[j].Name})
			j++
		default:
			if fields := changedFields(old.Primitives[i], new.Primitives[j]); len(fields) > 0 {
				out = append(out, Change{Kind: Changed, Name: old.Primitives[i].Name, Fields: fields})
			}
			i++
			j++
		}
	}
	return out
}

func changedFields(a, b Primitive) []string {
	var fields []string
	if a.MinArgs != b.MinArgs || a.MaxArgs != b.MaxArgs {
		fields = append(fields, "arity")
	}
	if a.Doc != b.Doc {
		fields = append(fields, "doc")
	}
	if !reflect.DeepEqual(a.IntSpec, b.IntSpec) {
		fields = append(fields, "interactive")
	}
	if !reflect.DeepEqual(a.Params, b.Params) {
		fields = append(fields, "params")
	}
	return fields
}
