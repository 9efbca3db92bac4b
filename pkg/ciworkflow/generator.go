package ciworkflow

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/template"
)

// BuildWorkflow orders the stacks by their cross-stack export/import
// dependencies and produces one deploy job per stack, plus teardown jobs
// in reverse order.
//
// Only statically known keys participate in ordering: a literal export
// key matched against a literal ImportValue key. Keys built from
// expressions resolve at deploy time and cannot order jobs; imports with
// no exporter among the inputs are assumed to exist already.
func BuildWorkflow(name string, stacks []StackInput, installVersion string) (Workflow, error) {
	w := Workflow{
		Name:           name,
		InstallVersion: installVersion,
	}

	exporters := make(map[string]string)
	for _, stack := range stacks {
		for _, key := range staticExportKeys(stack.Template) {
			exporters[key] = stack.Name
		}
	}

	// deps[stack] = set of stacks it imports from
	deps := make(map[string]map[string]bool, len(stacks))
	for _, stack := range stacks {
		deps[stack.Name] = make(map[string]bool)
		for _, key := range staticImportKeys(stack.Template) {
			if owner, ok := exporters[key]; ok && owner != stack.Name {
				deps[stack.Name][owner] = true
			}
		}
	}

	ordered, err := orderStacks(stacks, deps)
	if err != nil {
		return w, err
	}

	for _, stack := range ordered {
		paramFlags := buildParamFlags(stack.Parameters)

		cmd := fmt.Sprintf("stackctl deploy %s %s --auto-approve", stack.Name, stack.TemplateFile)
		for _, flag := range paramFlags {
			cmd += fmt.Sprintf(" --param %s", flag)
		}

		var dependsOn []string
		for dep := range deps[stack.Name] {
			dependsOn = append(dependsOn, deployJobID(dep))
		}
		sort.Strings(dependsOn)

		w.Jobs = append(w.Jobs, Job{
			ID:           deployJobID(stack.Name),
			Name:         fmt.Sprintf("Deploy %s", stack.Name),
			StackName:    stack.Name,
			TemplateFile: stack.TemplateFile,
			DependsOn:    dependsOn,
			ParamFlags:   paramFlags,
			Command:      cmd,
		})

		for _, pname := range stack.Template.ParameterOrder {
			param := stack.Template.Parameters[pname]
			w.Parameters = append(w.Parameters, WorkflowParameter{
				Name:        pname,
				EnvName:     toEnvName(pname),
				Stack:       stack.Name,
				HasDefault:  param.HasDefault,
				Description: param.Description,
			})
		}
	}

	// Teardown destroys importers before the stacks they import from.
	for i := len(ordered) - 1; i >= 0; i-- {
		stack := ordered[i]

		var dependsOn []string
		for _, other := range ordered {
			if deps[other.Name][stack.Name] {
				dependsOn = append(dependsOn, destroyJobID(other.Name))
			}
		}
		sort.Strings(dependsOn)

		w.TeardownJobs = append(w.TeardownJobs, Job{
			ID:        destroyJobID(stack.Name),
			Name:      fmt.Sprintf("Destroy %s", stack.Name),
			StackName: stack.Name,
			DependsOn: dependsOn,
			Command:   fmt.Sprintf("stackctl destroy %s --auto-approve", stack.Name),
		})
	}

	return w, nil
}

// staticExportKeys returns the literal export keys of a template.
func staticExportKeys(tmpl *template.Template) []string {
	var keys []string
	for _, name := range tmpl.OutputOrder {
		out := tmpl.Outputs[name]
		if out.Export == nil {
			continue
		}
		if key, ok := out.ExportKey().(string); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// staticImportKeys returns the literal ImportValue keys referenced
// anywhere in the template.
func staticImportKeys(tmpl *template.Template) []string {
	seen := make(map[string]bool)
	var keys []string

	collect := func(v interface{}) {
		template.Walk(v, func(expr template.Expression) {
			imp, ok := expr.(template.ImportValue)
			if !ok {
				return
			}
			lit, ok := imp.Key.(template.Literal)
			if !ok {
				return
			}
			key, ok := lit.Value.(string)
			if !ok || seen[key] {
				return
			}
			seen[key] = true
			keys = append(keys, key)
		})
	}

	for _, name := range tmpl.ResourceOrder {
		collect(tmpl.Resources[name].Properties)
	}
	for _, name := range tmpl.OutputOrder {
		collect(tmpl.Outputs[name].Value)
		collect(tmpl.Outputs[name].Export)
	}
	return keys
}

// orderStacks sorts the inputs so exporters precede importers, breaking
// ties by input order.
func orderStacks(stacks []StackInput, deps map[string]map[string]bool) ([]StackInput, error) {
	byName := make(map[string]StackInput, len(stacks))
	inDegree := make(map[string]int, len(stacks))
	for _, stack := range stacks {
		if _, exists := byName[stack.Name]; exists {
			return nil, fmt.Errorf("duplicate stack %q", stack.Name)
		}
		byName[stack.Name] = stack
		inDegree[stack.Name] = len(deps[stack.Name])
	}

	var ordered []StackInput
	done := make(map[string]bool, len(stacks))
	for len(ordered) < len(stacks) {
		progressed := false
		for _, stack := range stacks {
			if done[stack.Name] || inDegree[stack.Name] > 0 {
				continue
			}
			done[stack.Name] = true
			ordered = append(ordered, stack)
			progressed = true
			for _, other := range stacks {
				if deps[other.Name][stack.Name] {
					inDegree[other.Name]--
				}
			}
		}
		if !progressed {
			return nil, errors.CycleError(findStackCycle(stacks, deps, done))
		}
	}
	return ordered, nil
}

// findStackCycle walks the unprocessed remainder to name one concrete
// import cycle.
func findStackCycle(stacks []StackInput, deps map[string]map[string]bool, done map[string]bool) []string {
	var remaining []string
	index := make(map[string]int)
	for _, stack := range stacks {
		if !done[stack.Name] {
			index[stack.Name] = len(remaining)
			remaining = append(remaining, stack.Name)
		}
	}

	var path []string
	onPath := make(map[string]bool)
	visited := make(map[string]bool)

	var walk func(name string) []string
	walk = func(name string) []string {
		if onPath[name] {
			for i, p := range path {
				if p == name {
					return path[i:]
				}
			}
		}
		if visited[name] {
			return nil
		}
		visited[name] = true
		onPath[name] = true
		path = append(path, name)
		for dep := range deps[name] {
			if _, ok := index[dep]; !ok {
				continue
			}
			if cycle := walk(dep); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		onPath[name] = false
		return nil
	}

	for _, name := range remaining {
		if cycle := walk(name); cycle != nil {
			return cycle
		}
	}
	return remaining
}

// buildParamFlags creates --param flag values from a parameter map.
// Static values are inlined; env var references use $ENV_VAR syntax.
func buildParamFlags(params map[string]string) []string {
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(params))
	for _, k := range keys {
		flags = append(flags, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return flags
}

func deployJobID(stackName string) string {
	return "deploy-" + sanitizeJobID(stackName)
}

func destroyJobID(stackName string) string {
	return "destroy-" + sanitizeJobID(stackName)
}

// sanitizeJobID makes a stack name safe for use in job IDs.
func sanitizeJobID(name string) string {
	r := strings.NewReplacer("/", "-", ".", "-", " ", "-")
	return r.Replace(name)
}

// toEnvName converts a parameter name to an uppercased env var name
// (StageName -> STAGE_NAME, DBHost -> DB_HOST).
func toEnvName(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (!unicode.IsUpper(prev) && prev != '_') || acronymEnd {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
