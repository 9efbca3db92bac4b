package graph

import (
	"context"

	"github.com/stackwave/stackctl/pkg/engine/expression"
	"github.com/stackwave/stackctl/pkg/template"
)

// Build constructs the dependency graph for a template: one node per
// resource declaration in declaration order, plus a synthetic outputs
// node when the template declares outputs.
//
// Edges come from explicit dependsOn lists and from references discovered
// inside property expressions. env must carry the bound parameters so
// discovery can tell parameter references apart from resource references.
func Build(ctx context.Context, tmpl *template.Template, env *expression.Context) (*Graph, error) {
	g := NewGraph()

	for _, name := range tmpl.ResourceOrder {
		if err := g.AddNode(NewNode(name, tmpl.Resources[name].Kind)); err != nil {
			return nil, err
		}
	}
	if len(tmpl.Outputs) > 0 {
		if err := g.AddNode(NewNode(OutputsNodeID, "")); err != nil {
			return nil, err
		}
	}

	for _, name := range tmpl.ResourceOrder {
		res := tmpl.Resources[name]

		for _, dep := range res.DependsOn {
			if err := g.AddEdge(name, dep); err != nil {
				return nil, err
			}
		}

		discovery := expression.NewDiscovery(env)
		if _, err := discovery.Evaluate(ctx, res.Properties); err != nil {
			return nil, err
		}
		for _, ref := range discovery.References() {
			if ref == name {
				continue
			}
			if err := g.AddEdge(name, ref); err != nil {
				return nil, err
			}
		}
	}

	// Outputs evaluate only after every resource is realized.
	if len(tmpl.Outputs) > 0 {
		for _, name := range tmpl.ResourceOrder {
			if err := g.AddEdge(OutputsNodeID, name); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}
