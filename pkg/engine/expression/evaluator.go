// Package expression evaluates template expressions against deployment
// context: bound parameters, pseudo parameters, realized resources, and
// cross-stack exports.
//
// The same evaluator runs in two modes. In strict mode every reference
// must resolve or evaluation fails. In discovery mode references to
// resources that are not yet realized are recorded instead of failing;
// the graph builder uses the recorded names as implicit dependency edges.
package expression

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

// ExportSource resolves export keys published by other stacks. The store
// implements this; tests use a map-backed fake.
type ExportSource interface {
	LookupExport(ctx context.Context, key string) ([]types.Export, error)
}

// Context is the resolution environment for one stack operation.
type Context struct {
	// Parameters are the bound parameter values.
	Parameters map[string]interface{}

	// Pseudo holds the pseudo parameter values (Region, AccountId,
	// StackName).
	Pseudo map[string]interface{}

	// ResourceNames are all logical names declared in the template,
	// whether realized yet or not.
	ResourceNames map[string]bool

	// Resources are the resources realized so far in this operation,
	// plus any carried over from previous operations.
	Resources map[string]*types.RealizedResource

	// Exports resolves ImportValue keys. May be nil when the template
	// has no imports.
	Exports ExportSource
}

// Evaluator resolves expression trees. A fresh evaluator is cheap;
// discovery evaluators accumulate referenced resource names across calls.
type Evaluator struct {
	env    *Context
	strict bool

	refs []string
	seen map[string]bool
}

// New creates a strict evaluator: every reference must resolve.
func New(env *Context) *Evaluator {
	return &Evaluator{env: env, strict: true}
}

// NewDiscovery creates a discovery evaluator: references to unrealized
// resources are recorded and replaced with empty placeholders, and
// imports are not resolved.
func NewDiscovery(env *Context) *Evaluator {
	return &Evaluator{env: env, seen: make(map[string]bool)}
}

// References returns the resource logical names referenced so far, in
// first-reference order.
func (e *Evaluator) References() []string {
	return e.refs
}

// Evaluate resolves a decoded template value. Plain values pass through;
// expressions resolve; maps and lists resolve element-wise.
func (e *Evaluator) Evaluate(ctx context.Context, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case template.Literal:
		return e.Evaluate(ctx, t.Value)

	case template.Ref:
		return e.resolveRef(ctx, t.Name)

	case template.AttributeLookup:
		return e.resolveAttribute(t.LogicalName, t.Path)

	case template.Join:
		return e.resolveJoin(ctx, t)

	case template.Substitute:
		return e.resolveSub(ctx, t.Template)

	case template.ImportValue:
		return e.resolveImport(ctx, t)

	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			resolved, err := e.Evaluate(ctx, val)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			resolved, err := e.Evaluate(ctx, val)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}

func (e *Evaluator) resolveRef(ctx context.Context, name string) (interface{}, error) {
	if value, ok := e.env.Parameters[name]; ok {
		return value, nil
	}
	if value, ok := e.env.Pseudo[name]; ok {
		return value, nil
	}
	if e.env.ResourceNames[name] {
		if realized, ok := e.env.Resources[name]; ok && realized.PhysicalID != "" {
			return realized.PhysicalID, nil
		}
		if !e.strict {
			e.record(name)
			return "", nil
		}
		return nil, errors.ResolutionError(errors.ReasonNotYetResolved,
			fmt.Sprintf("resource %q is not yet resolved", name))
	}
	return nil, errors.ResolutionError(errors.ReasonUnknownParameter,
		fmt.Sprintf("no value bound for parameter %q", name))
}

func (e *Evaluator) resolveAttribute(logicalName string, path []string) (interface{}, error) {
	if !e.env.ResourceNames[logicalName] {
		return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder,
			fmt.Sprintf("unknown resource %q", logicalName))
	}
	if !e.strict {
		e.record(logicalName)
		return "", nil
	}

	realized, ok := e.env.Resources[logicalName]
	if !ok || realized.PhysicalID == "" {
		return nil, errors.ResolutionError(errors.ReasonNotYetResolved,
			fmt.Sprintf("resource %q is not yet resolved", logicalName))
	}

	var value interface{} = realized.Attributes
	for _, segment := range path {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder,
				fmt.Sprintf("resource %q has no attribute %q", logicalName, strings.Join(path, ".")))
		}
		value, ok = m[segment]
		if !ok {
			return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder,
				fmt.Sprintf("resource %q has no attribute %q", logicalName, strings.Join(path, ".")))
		}
	}
	return value, nil
}

func (e *Evaluator) resolveJoin(ctx context.Context, join template.Join) (interface{}, error) {
	parts := make([]string, 0, len(join.Parts))
	for _, part := range join.Parts {
		resolved, err := e.Evaluate(ctx, part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, stringify(resolved))
	}
	return strings.Join(parts, join.Delimiter), nil
}

func (e *Evaluator) resolveSub(ctx context.Context, tmpl string) (interface{}, error) {
	parts, err := template.ParseSubTemplate(tmpl)
	if err != nil {
		return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder, err.Error())
	}

	var sb strings.Builder
	for _, part := range parts {
		if part.Placeholder == "" {
			sb.WriteString(part.Literal)
			continue
		}
		value, err := e.resolvePlaceholder(ctx, part.Placeholder)
		if err != nil {
			return nil, err
		}
		sb.WriteString(stringify(value))
	}
	return sb.String(), nil
}

// resolvePlaceholder handles one ${...} name: a bare name resolves like a
// Ref, a dotted name like an attribute lookup. Unknown names fail with
// the placeholder reason rather than the parameter one.
func (e *Evaluator) resolvePlaceholder(ctx context.Context, name string) (interface{}, error) {
	logicalName, path := template.SplitPlaceholder(name)
	if len(path) > 0 {
		if !e.env.ResourceNames[logicalName] {
			return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder,
				fmt.Sprintf("unknown placeholder %q", name))
		}
		return e.resolveAttribute(logicalName, path)
	}

	if value, ok := e.env.Parameters[name]; ok {
		return value, nil
	}
	if value, ok := e.env.Pseudo[name]; ok {
		return value, nil
	}
	if e.env.ResourceNames[name] {
		return e.resolveRef(ctx, name)
	}
	return nil, errors.ResolutionError(errors.ReasonUnknownPlaceholder,
		fmt.Sprintf("unknown placeholder %q", name))
}

func (e *Evaluator) resolveImport(ctx context.Context, imp template.ImportValue) (interface{}, error) {
	key, err := e.Evaluate(ctx, imp.Key)
	if err != nil {
		return nil, err
	}
	keyStr, ok := key.(string)
	if !ok {
		keyStr = stringify(key)
	}

	// Imports resolve at execution time; discovery only needs the
	// in-stack references inside the key expression.
	if !e.strict {
		return "", nil
	}

	if e.env.Exports == nil {
		return nil, errors.ResolutionError(errors.ReasonUnknownExport,
			fmt.Sprintf("no export named %q", keyStr))
	}
	matches, err := e.env.Exports.LookupExport(ctx, keyStr)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, errors.ResolutionError(errors.ReasonUnknownExport,
			fmt.Sprintf("no export named %q", keyStr))
	case 1:
		return matches[0].Value, nil
	default:
		owners := make([]string, len(matches))
		for i, m := range matches {
			owners[i] = m.Owner
		}
		return nil, errors.ResolutionError(errors.ReasonAmbiguousExport,
			fmt.Sprintf("export %q is published by multiple stacks: %s", keyStr, strings.Join(owners, ", ")))
	}
}

func (e *Evaluator) record(logicalName string) {
	if e.seen[logicalName] {
		return
	}
	e.seen[logicalName] = true
	e.refs = append(e.refs, logicalName)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
