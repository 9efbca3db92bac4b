// Package planner diffs a desired template against the current stack
// record to decide which resources to create, update, or delete.
//
// Property-level change detection happens at execution time, after
// expressions resolve: the executor calls Diff with the resolved desired
// properties and downgrades an update to a noop when nothing changed.
package planner

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

// Action is the operation planned for one resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoop   Action = "noop"
)

// Change is the planned operation for one logical resource.
type Change struct {
	LogicalName string
	Kind        string
	Action      Action

	// Current is the realized record from the stored stack, nil when
	// creating.
	Current *types.RealizedResource

	Reason string
}

// Plan is the set of planned changes for one operation. Changes follow
// template declaration order; orphan deletions come last.
type Plan struct {
	Changes []*Change

	ToCreate int
	ToUpdate int
	ToDelete int

	byName map[string]*Change
}

// IsEmpty reports whether the plan changes nothing.
func (p *Plan) IsEmpty() bool {
	return p.ToCreate == 0 && p.ToUpdate == 0 && p.ToDelete == 0
}

// Change returns the planned change for a logical name, or nil.
func (p *Plan) Change(logicalName string) *Change {
	return p.byName[logicalName]
}

// Deletes returns the planned deletions.
func (p *Plan) Deletes() []*Change {
	var out []*Change
	for _, c := range p.Changes {
		if c.Action == ActionDelete {
			out = append(out, c)
		}
	}
	return out
}

// New compares the desired template with the current stack record.
// Resources present in both are planned as updates; the executor
// downgrades them to noops when the resolved properties match. Resources
// present only in the record are planned as deletions.
func New(tmpl *template.Template, current *types.Stack) *Plan {
	plan := &Plan{byName: make(map[string]*Change)}

	existing := make(map[string]*types.RealizedResource)
	if current != nil {
		for name, res := range current.Resources {
			if res.PhysicalID != "" {
				existing[name] = res
			}
		}
	}

	for _, name := range tmpl.ResourceOrder {
		res := tmpl.Resources[name]
		change := &Change{LogicalName: name, Kind: res.Kind}
		if record, ok := existing[name]; ok {
			change.Action = ActionUpdate
			change.Current = record
			change.Reason = "resource already exists"
			plan.ToUpdate++
		} else {
			change.Action = ActionCreate
			change.Reason = "resource does not exist"
			plan.ToCreate++
		}
		plan.add(change)
	}

	// Resources in state but no longer declared get removed.
	if current != nil {
		for _, name := range sortedNames(existing) {
			if tmpl.Resource(name) != nil {
				continue
			}
			record := existing[name]
			plan.add(&Change{
				LogicalName: name,
				Kind:        record.Kind,
				Action:      ActionDelete,
				Current:     record,
				Reason:      "resource no longer declared",
			})
			plan.ToDelete++
		}
	}

	return plan
}

// NewDestroy plans the deletion of every realized resource in the stack.
func NewDestroy(current *types.Stack) *Plan {
	plan := &Plan{byName: make(map[string]*Change)}
	if current == nil {
		return plan
	}

	existing := make(map[string]*types.RealizedResource)
	for name, res := range current.Resources {
		if res.PhysicalID != "" {
			existing[name] = res
		}
	}
	for _, name := range sortedNames(existing) {
		record := existing[name]
		plan.add(&Change{
			LogicalName: name,
			Kind:        record.Kind,
			Action:      ActionDelete,
			Current:     record,
			Reason:      "destroying stack",
		})
		plan.ToDelete++
	}
	return plan
}

func (p *Plan) add(c *Change) {
	p.Changes = append(p.Changes, c)
	p.byName[c.LogicalName] = c
}

// PropertyChange is one differing property between desired and current.
type PropertyChange struct {
	Path     string
	OldValue interface{}
	NewValue interface{}
}

// Diff compares resolved desired properties with the properties a
// resource was last provisioned with.
func Diff(desired, current map[string]interface{}) []PropertyChange {
	var changes []PropertyChange

	for key, desiredVal := range desired {
		currentVal, ok := current[key]
		if !ok {
			changes = append(changes, PropertyChange{Path: key, NewValue: desiredVal})
		} else if !reflect.DeepEqual(desiredVal, currentVal) {
			changes = append(changes, PropertyChange{Path: key, OldValue: currentVal, NewValue: desiredVal})
		}
	}
	for key, currentVal := range current {
		if _, ok := desired[key]; !ok {
			changes = append(changes, PropertyChange{Path: key, OldValue: currentVal})
		}
	}
	return changes
}

// FormatChanges renders property changes for progress output.
func FormatChanges(changes []PropertyChange) string {
	if len(changes) == 0 {
		return "no changes"
	}
	out := ""
	for _, c := range changes {
		out += fmt.Sprintf("  %s: %v -> %v\n", c.Path, c.OldValue, c.NewValue)
	}
	return out
}

func sortedNames(m map[string]*types.RealizedResource) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	// Insertion into the plan must be deterministic.
	sort.Strings(names)
	return names
}
