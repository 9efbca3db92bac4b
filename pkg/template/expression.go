package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackwave/stackctl/pkg/errors"
)

// Expression is a template value resolved at deployment time. Literal values
// decode to plain Go types; everything else decodes to one of the tagged
// variants below.
type Expression interface {
	isExpression()
}

// Ref references a parameter, a pseudo parameter, or a resource's physical
// identifier by name. The parser classifies the name during validation; the
// evaluator resolves parameters and pseudo parameters first and falls back
// to resources.
type Ref struct {
	Name string
}

// AttributeLookup resolves a named attribute of a realized resource
// (CloudFormation's GetAtt).
type AttributeLookup struct {
	LogicalName string
	Path        []string
}

// Join concatenates the evaluated parts with a delimiter.
type Join struct {
	Delimiter string
	Parts     []Expression
}

// Substitute is a template string with ${name} placeholders. Placeholders
// resolve against parameters, pseudo parameters, and resource attributes.
// "${!name}" escapes to a literal "${name}".
type Substitute struct {
	Template string
}

// ImportValue resolves an export key expression against the exports
// published by other stacks in scope.
type ImportValue struct {
	Key Expression
}

func (Ref) isExpression()             {}
func (AttributeLookup) isExpression() {}
func (Join) isExpression()           {}
func (Substitute) isExpression()     {}
func (ImportValue) isExpression()    {}

// SubPart is one piece of a parsed Substitute template: either a literal
// run of text or a placeholder name.
type SubPart struct {
	Literal     string
	Placeholder string
}

// ParseSubTemplate splits a Substitute template into literal and
// placeholder parts. Unterminated placeholders are an error.
func ParseSubTemplate(tmpl string) ([]SubPart, error) {
	var parts []SubPart
	rest := tmpl
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			if rest != "" {
				parts = append(parts, SubPart{Literal: rest})
			}
			return parts, nil
		}
		if idx > 0 {
			parts = append(parts, SubPart{Literal: rest[:idx]})
		}
		rest = rest[idx+2:]
		end := strings.Index(rest, "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", tmpl)
		}
		name := rest[:end]
		rest = rest[end+1:]
		if strings.HasPrefix(name, "!") {
			// Escaped: ${!Name} renders as the literal ${Name}
			parts = append(parts, SubPart{Literal: "${" + name[1:] + "}"})
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("empty placeholder in %q", tmpl)
		}
		parts = append(parts, SubPart{Placeholder: name})
	}
}

// intrinsic tag names, shared between the YAML short form (!Ref) and the
// JSON long form ({"Ref": ...}).
const (
	tagRef         = "Ref"
	tagGetAtt      = "GetAtt"
	tagJoin        = "Join"
	tagSub         = "Sub"
	tagImportValue = "ImportValue"
)

// decodeValue turns a YAML node into a plain Go value where any intrinsic
// (short-tag or long-form) becomes an Expression.
func decodeValue(node *yaml.Node, path string) (interface{}, error) {
	if node.Kind == yaml.AliasNode {
		return decodeValue(node.Alias, path)
	}

	if name, ok := shortTagName(node.Tag); ok {
		return decodeIntrinsic(name, node, path)
	}

	switch node.Kind {
	case yaml.ScalarNode:
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return nil, errors.ParseError(err.Error(), path)
		}
		return v, nil

	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(node.Content))
		for i, item := range node.Content {
			v, err := decodeValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.MappingNode:
		// Single-key maps named after an intrinsic are the long form.
		if len(node.Content) == 2 {
			key := node.Content[0].Value
			if isIntrinsicName(key) {
				return decodeIntrinsic(key, node.Content[1], path+"."+key)
			}
		}
		out := make(map[string]interface{}, len(node.Content)/2)
		for i := 0; i < len(node.Content); i += 2 {
			key := node.Content[i].Value
			v, err := decodeValue(node.Content[i+1], path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}

	return nil, errors.ParseError(fmt.Sprintf("unsupported node kind %d", node.Kind), path)
}

func isIntrinsicName(name string) bool {
	switch name {
	case tagRef, tagGetAtt, tagJoin, tagSub, tagImportValue:
		return true
	}
	return false
}

func shortTagName(tag string) (string, bool) {
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") {
		return "", false
	}
	name := tag[1:]
	if isIntrinsicName(name) {
		return name, true
	}
	return "", false
}

func decodeIntrinsic(name string, arg *yaml.Node, path string) (Expression, error) {
	switch name {
	case tagRef:
		if arg.Kind != yaml.ScalarNode || arg.Value == "" {
			return nil, errors.ParseError("Ref requires a non-empty name", path)
		}
		return Ref{Name: arg.Value}, nil

	case tagGetAtt:
		return decodeGetAtt(arg, path)

	case tagJoin:
		return decodeJoin(arg, path)

	case tagSub:
		if arg.Kind != yaml.ScalarNode {
			return nil, errors.ParseError("Sub requires a template string", path)
		}
		if _, err := ParseSubTemplate(arg.Value); err != nil {
			return nil, errors.ParseError(err.Error(), path)
		}
		return Substitute{Template: arg.Value}, nil

	case tagImportValue:
		inner, err := decodeValue(arg, path)
		if err != nil {
			return nil, err
		}
		return ImportValue{Key: asExpression(inner)}, nil
	}
	return nil, errors.ParseError(fmt.Sprintf("unknown intrinsic %q", name), path)
}

// decodeGetAtt accepts both "Logical.Attr.Sub" scalar form and
// ["Logical", "Attr", ...] list form.
func decodeGetAtt(arg *yaml.Node, path string) (Expression, error) {
	var segments []string
	switch arg.Kind {
	case yaml.ScalarNode:
		segments = strings.Split(arg.Value, ".")
	case yaml.SequenceNode:
		for _, item := range arg.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, errors.ParseError("GetAtt list entries must be strings", path)
			}
			segments = append(segments, item.Value)
		}
	default:
		return nil, errors.ParseError("GetAtt requires a string or list", path)
	}
	if len(segments) < 2 || segments[0] == "" {
		return nil, errors.ParseError("GetAtt requires a logical name and attribute", path)
	}
	for _, s := range segments[1:] {
		if s == "" {
			return nil, errors.ParseError("GetAtt attribute path contains an empty segment", path)
		}
	}
	return AttributeLookup{LogicalName: segments[0], Path: segments[1:]}, nil
}

func decodeJoin(arg *yaml.Node, path string) (Expression, error) {
	if arg.Kind != yaml.SequenceNode || len(arg.Content) != 2 {
		return nil, errors.ParseError("Join requires [delimiter, [parts...]]", path)
	}
	delim := arg.Content[0]
	list := arg.Content[1]
	if delim.Kind != yaml.ScalarNode {
		return nil, errors.ParseError("Join delimiter must be a string", path)
	}
	if list.Kind != yaml.SequenceNode {
		return nil, errors.ParseError("Join parts must be a list", path)
	}
	parts := make([]Expression, 0, len(list.Content))
	for i, item := range list.Content {
		v, err := decodeValue(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		parts = append(parts, asExpression(v))
	}
	return Join{Delimiter: delim.Value, Parts: parts}, nil
}

// asExpression wraps plain values so expression lists are uniform.
func asExpression(v interface{}) Expression {
	if expr, ok := v.(Expression); ok {
		return expr
	}
	return Literal{Value: v}
}

// Literal wraps a plain value in the Expression interface.
type Literal struct {
	Value interface{}
}

func (Literal) isExpression() {}

// Plain converts a decoded value tree back to plain JSON-compatible types,
// rendering expressions in their long form. Used for schema validation and
// for change detection in the planner.
func Plain(v interface{}) interface{} {
	switch t := v.(type) {
	case Literal:
		return Plain(t.Value)
	case Ref:
		return map[string]interface{}{tagRef: t.Name}
	case AttributeLookup:
		return map[string]interface{}{tagGetAtt: t.LogicalName + "." + strings.Join(t.Path, ".")}
	case Join:
		parts := make([]interface{}, len(t.Parts))
		for i, p := range t.Parts {
			parts[i] = Plain(p)
		}
		return map[string]interface{}{tagJoin: []interface{}{t.Delimiter, parts}}
	case Substitute:
		return map[string]interface{}{tagSub: t.Template}
	case ImportValue:
		return map[string]interface{}{tagImportValue: Plain(t.Key)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Plain(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Plain(val)
		}
		return out
	default:
		return v
	}
}

// Walk calls fn for every Expression nested inside a decoded value tree.
// Join parts and ImportValue keys are visited recursively.
func Walk(v interface{}, fn func(Expression)) {
	switch t := v.(type) {
	case Literal:
		Walk(t.Value, fn)
	case Ref, AttributeLookup, Substitute:
		fn(t.(Expression))
	case Join:
		fn(t)
		for _, p := range t.Parts {
			Walk(p, fn)
		}
	case ImportValue:
		fn(t)
		Walk(t.Key, fn)
	case map[string]interface{}:
		for _, val := range t {
			Walk(val, fn)
		}
	case []interface{}:
		for _, val := range t {
			Walk(val, fn)
		}
	}
}
