// Package template implements parsing and validation of stack template
// documents: parameters, resource declarations, and outputs, including the
// intrinsic expression forms (Ref, GetAtt, Join, Sub, ImportValue).
package template

// ParameterType is a parameter's primitive kind.
type ParameterType string

const (
	ParameterTypeString ParameterType = "string"
	ParameterTypeList   ParameterType = "list"
)

// Parameter is a template parameter definition. Bound once per stack
// operation from supplied overrides falling back to Default.
type Parameter struct {
	Name        string
	Type        ParameterType
	Default     interface{}
	HasDefault  bool
	Description string
}

// Resource is a single resource declaration. Properties values may be
// plain values or Expressions.
type Resource struct {
	LogicalName string
	Kind        string
	Properties  map[string]interface{}
	DependsOn   []string
}

// Output is a named output definition. Value is required; Export, when
// present, publishes the resolved value under the resolved export key.
type Output struct {
	Name   string
	Value  interface{}
	Export interface{}
}

// Template is the parsed template document. ResourceOrder and OutputOrder
// preserve declaration order; ties in the dependency graph are broken by
// declaration order so deployments are reproducible.
type Template struct {
	Version     string
	Description string

	Parameters     map[string]*Parameter
	ParameterOrder []string

	Resources     map[string]*Resource
	ResourceOrder []string

	Outputs     map[string]*Output
	OutputOrder []string
}

// PseudoParameters are the well-known names resolvable in any template
// without declaration, supplied by the caller per operation.
var PseudoParameters = map[string]bool{
	"Region":    true,
	"AccountId": true,
	"StackName": true,
}

// ExportKey returns the expression for the export key. The export field
// accepts either a bare expression or a mapping with a single "name"
// field.
func (o *Output) ExportKey() interface{} {
	if m, ok := o.Export.(map[string]interface{}); ok && len(m) == 1 {
		if v, ok := m["name"]; ok {
			return v
		}
	}
	return o.Export
}

// Parameter returns the declaration for name, or nil.
func (t *Template) Parameter(name string) *Parameter {
	return t.Parameters[name]
}

// Resource returns the declaration for logicalName, or nil.
func (t *Template) Resource(logicalName string) *Resource {
	return t.Resources[logicalName]
}
