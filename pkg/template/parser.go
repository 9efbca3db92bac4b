package template

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stackwave/stackctl/pkg/errors"
)

var logicalNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Parse decodes and validates a template document. The document may be
// YAML or JSON (JSON documents use the long-form intrinsics). On failure
// the returned template is always nil; there is no partial result.
func Parse(data []byte) (*Template, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.ParseError(fmt.Sprintf("invalid document: %v", err), "")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.ParseError("empty document", "")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.ParseError("template must be a mapping", "")
	}

	tmpl := &Template{
		Parameters: make(map[string]*Parameter),
		Resources:  make(map[string]*Resource),
		Outputs:    make(map[string]*Output),
	}

	for i := 0; i < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]

		switch key {
		case "version":
			if err := val.Decode(&tmpl.Version); err != nil {
				return nil, errors.ParseError("version must be a string", "version")
			}
		case "description":
			if err := val.Decode(&tmpl.Description); err != nil {
				return nil, errors.ParseError("description must be a string", "description")
			}
		case "parameters":
			if err := parseParameters(val, tmpl); err != nil {
				return nil, err
			}
		case "resources":
			if err := parseResources(val, tmpl); err != nil {
				return nil, err
			}
		case "outputs":
			if err := parseOutputs(val, tmpl); err != nil {
				return nil, err
			}
		default:
			return nil, errors.ParseError(fmt.Sprintf("unknown top-level section %q", key), key)
		}
	}

	if err := validateStructure(data); err != nil {
		return nil, err
	}
	if err := validate(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func parseParameters(node *yaml.Node, tmpl *Template) error {
	if node.Kind != yaml.MappingNode {
		return errors.ParseError("parameters must be a mapping", "parameters")
	}
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		body := node.Content[i+1]
		path := "parameters." + name

		if _, exists := tmpl.Parameters[name]; exists {
			return errors.ParseError(fmt.Sprintf("duplicate parameter %q", name), path)
		}
		if body.Kind != yaml.MappingNode {
			return errors.ParseError("parameter definition must be a mapping", path)
		}

		param := &Parameter{Name: name, Type: ParameterTypeString}
		for j := 0; j < len(body.Content); j += 2 {
			field := body.Content[j].Value
			val := body.Content[j+1]
			switch field {
			case "type":
				switch ParameterType(val.Value) {
				case ParameterTypeString, ParameterTypeList:
					param.Type = ParameterType(val.Value)
				default:
					return errors.ParseError(fmt.Sprintf("unknown parameter type %q", val.Value), path+".type")
				}
			case "default":
				var v interface{}
				if err := val.Decode(&v); err != nil {
					return errors.ParseError(err.Error(), path+".default")
				}
				param.Default = v
				param.HasDefault = true
			case "description":
				param.Description = val.Value
			default:
				return errors.ParseError(fmt.Sprintf("unknown parameter field %q", field), path+"."+field)
			}
		}

		tmpl.Parameters[name] = param
		tmpl.ParameterOrder = append(tmpl.ParameterOrder, name)
	}
	return nil
}

func parseResources(node *yaml.Node, tmpl *Template) error {
	if node.Kind != yaml.MappingNode {
		return errors.ParseError("resources must be a mapping", "resources")
	}
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		body := node.Content[i+1]
		path := "resources." + name

		if _, exists := tmpl.Resources[name]; exists {
			return errors.ParseError(fmt.Sprintf("duplicate resource %q", name), path)
		}
		if body.Kind != yaml.MappingNode {
			return errors.ParseError("resource declaration must be a mapping", path)
		}

		res := &Resource{LogicalName: name, Properties: make(map[string]interface{})}
		for j := 0; j < len(body.Content); j += 2 {
			field := body.Content[j].Value
			val := body.Content[j+1]
			switch field {
			case "kind":
				res.Kind = val.Value
			case "properties":
				if val.Kind != yaml.MappingNode && !(val.Kind == yaml.ScalarNode && val.Tag == "!!null") {
					return errors.ParseError("properties must be a mapping", path+".properties")
				}
				if val.Kind == yaml.MappingNode {
					for k := 0; k < len(val.Content); k += 2 {
						propName := val.Content[k].Value
						v, err := decodeValue(val.Content[k+1], path+".properties."+propName)
						if err != nil {
							return err
						}
						res.Properties[propName] = v
					}
				}
			case "dependsOn":
				if err := val.Decode(&res.DependsOn); err != nil {
					// A single scalar is accepted as a one-element list.
					var single string
					if err2 := val.Decode(&single); err2 != nil {
						return errors.ParseError("dependsOn must be a string or list of strings", path+".dependsOn")
					}
					res.DependsOn = []string{single}
				}
			default:
				return errors.ParseError(fmt.Sprintf("unknown resource field %q", field), path+"."+field)
			}
		}

		tmpl.Resources[name] = res
		tmpl.ResourceOrder = append(tmpl.ResourceOrder, name)
	}
	return nil
}

func parseOutputs(node *yaml.Node, tmpl *Template) error {
	if node.Kind != yaml.MappingNode {
		return errors.ParseError("outputs must be a mapping", "outputs")
	}
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		body := node.Content[i+1]
		path := "outputs." + name

		if _, exists := tmpl.Outputs[name]; exists {
			return errors.ParseError(fmt.Sprintf("duplicate output %q", name), path)
		}
		if body.Kind != yaml.MappingNode {
			return errors.ParseError("output definition must be a mapping", path)
		}

		out := &Output{Name: name}
		hasValue := false
		for j := 0; j < len(body.Content); j += 2 {
			field := body.Content[j].Value
			val := body.Content[j+1]
			switch field {
			case "value":
				v, err := decodeValue(val, path+".value")
				if err != nil {
					return err
				}
				out.Value = v
				hasValue = true
			case "export":
				v, err := decodeValue(val, path+".export")
				if err != nil {
					return err
				}
				out.Export = v
			default:
				return errors.ParseError(fmt.Sprintf("unknown output field %q", field), path+"."+field)
			}
		}
		if !hasValue {
			return errors.ParseError("output requires a value", path)
		}

		tmpl.Outputs[name] = out
		tmpl.OutputOrder = append(tmpl.OutputOrder, name)
	}
	return nil
}

// validate enforces the semantic rules the structural schema cannot
// express: name shapes, default/type agreement, and reference integrity.
func validate(tmpl *Template) error {
	if len(tmpl.Resources) == 0 {
		return errors.ParseError("template requires a non-empty resources section", "resources")
	}

	for _, name := range tmpl.ResourceOrder {
		res := tmpl.Resources[name]
		path := "resources." + name
		if !logicalNameRe.MatchString(name) {
			return errors.ParseError(fmt.Sprintf("invalid logical name %q", name), path)
		}
		if res.Kind == "" {
			return errors.ParseError("resource requires a non-empty kind", path+".kind")
		}
		for _, dep := range res.DependsOn {
			if _, ok := tmpl.Resources[dep]; !ok {
				return errors.ParseError(fmt.Sprintf("dependsOn references undeclared resource %q", dep), path+".dependsOn")
			}
			if dep == name {
				return errors.ParseError("resource cannot depend on itself", path+".dependsOn")
			}
		}
		if err := checkReferences(tmpl, res.Properties, path+".properties"); err != nil {
			return err
		}
	}

	for _, name := range tmpl.ParameterOrder {
		param := tmpl.Parameters[name]
		path := "parameters." + name
		if !logicalNameRe.MatchString(name) {
			return errors.ParseError(fmt.Sprintf("invalid parameter name %q", name), path)
		}
		if param.HasDefault {
			if err := CheckParameterValue(param, param.Default); err != nil {
				return errors.ParseError(err.Error(), path+".default")
			}
		}
	}

	for _, name := range tmpl.OutputOrder {
		out := tmpl.Outputs[name]
		path := "outputs." + name
		if err := checkReferences(tmpl, out.Value, path+".value"); err != nil {
			return err
		}
		if out.Export != nil {
			if err := checkReferences(tmpl, out.Export, path+".export"); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkReferences walks a decoded value and rejects references to names
// that are neither parameters, pseudo parameters, nor declared resources.
func checkReferences(tmpl *Template, v interface{}, path string) error {
	var dangling []string
	Walk(v, func(expr Expression) {
		switch e := expr.(type) {
		case Ref:
			if !knownName(tmpl, e.Name) {
				dangling = append(dangling, e.Name)
			}
		case AttributeLookup:
			if _, ok := tmpl.Resources[e.LogicalName]; !ok {
				dangling = append(dangling, e.LogicalName)
			}
		case Substitute:
			parts, _ := ParseSubTemplate(e.Template)
			for _, p := range parts {
				if p.Placeholder == "" {
					continue
				}
				name, _ := SplitPlaceholder(p.Placeholder)
				if !knownName(tmpl, name) {
					dangling = append(dangling, name)
				}
			}
		}
	})
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return errors.ParseError(fmt.Sprintf("reference to undeclared name %q", dangling[0]), path)
	}
	return nil
}

func knownName(tmpl *Template, name string) bool {
	if PseudoParameters[name] {
		return true
	}
	if _, ok := tmpl.Parameters[name]; ok {
		return true
	}
	_, ok := tmpl.Resources[name]
	return ok
}

// SplitPlaceholder splits a Sub placeholder into its leading name and
// optional attribute path ("Role.Arn" -> "Role", ["Arn"]).
func SplitPlaceholder(placeholder string) (string, []string) {
	segments := splitDots(placeholder)
	if len(segments) == 1 {
		return segments[0], nil
	}
	return segments[0], segments[1:]
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// CheckParameterValue verifies that a bound or default value matches the
// parameter's declared type.
func CheckParameterValue(param *Parameter, value interface{}) error {
	switch param.Type {
	case ParameterTypeString:
		switch value.(type) {
		case string, int, int64, float64, bool:
			return nil
		}
		return fmt.Errorf("parameter %q expects a string value", param.Name)
	case ParameterTypeList:
		if _, ok := value.([]interface{}); ok {
			return nil
		}
		if _, ok := value.([]string); ok {
			return nil
		}
		return fmt.Errorf("parameter %q expects a list value", param.Name)
	}
	return fmt.Errorf("parameter %q has unknown type %q", param.Name, param.Type)
}
