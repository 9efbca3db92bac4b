package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackwave/stackctl/pkg/engine/expression"
	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/template"
)

func buildGraph(t *testing.T, doc string, params map[string]interface{}) (*Graph, error) {
	t.Helper()
	tmpl, err := template.Parse([]byte(doc))
	require.NoError(t, err)

	names := make(map[string]bool, len(tmpl.Resources))
	for name := range tmpl.Resources {
		names[name] = true
	}
	env := &expression.Context{
		Parameters: params,
		Pseudo: map[string]interface{}{
			"Region":    "us-east-1",
			"AccountId": "123456789012",
			"StackName": "test",
		},
		ResourceNames: names,
	}
	return Build(context.Background(), tmpl, env)
}

const serviceDoc = `
version: "1"
parameters:
  Environment:
    type: string
resources:
  Role:
    kind: iam-role
    properties:
      name: !Sub "${Environment}-role"
  Function:
    kind: function
    properties:
      role: !GetAtt Role.Arn
  Api:
    kind: http-api
    properties:
      handler: !Ref Function
  Route:
    kind: http-route
    dependsOn: [Api]
    properties:
      target: !GetAtt Function.Arn
outputs:
  ApiId:
    value: !Ref Api
`

func TestBuildServiceGraph(t *testing.T) {
	g, err := buildGraph(t, serviceDoc, map[string]interface{}{"Environment": "prod"})
	require.NoError(t, err)

	// 4 resources plus the outputs node.
	assert.Equal(t, 5, g.Len())

	sorted, err := g.TopologicalSort()
	require.NoError(t, err)

	assert.Less(t, position(t, sorted, "Role"), position(t, sorted, "Function"))
	assert.Less(t, position(t, sorted, "Function"), position(t, sorted, "Api"))
	assert.Less(t, position(t, sorted, "Api"), position(t, sorted, "Route"))
	assert.Less(t, position(t, sorted, "Function"), position(t, sorted, "Route"))

	// Outputs come after every resource.
	assert.Equal(t, OutputsNodeID, sorted[len(sorted)-1].ID)
}

func TestBuildExplicitAndImplicitEdges(t *testing.T) {
	g, err := buildGraph(t, serviceDoc, map[string]interface{}{"Environment": "prod"})
	require.NoError(t, err)

	route := g.GetNode("Route")
	require.NotNil(t, route)
	assert.ElementsMatch(t, []string{"Api", "Function"}, route.DependsOn)

	// Parameter references contribute no edges.
	role := g.GetNode("Role")
	assert.Empty(t, role.DependsOn)
}

func TestBuildNoOutputsNoSyntheticNode(t *testing.T) {
	g, err := buildGraph(t, `
resources:
  Only:
    kind: thing
    properties: {}
`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.Nil(t, g.GetNode(OutputsNodeID))
}

func TestBuildCycleFromProperties(t *testing.T) {
	g, err := buildGraph(t, `
resources:
  First:
    kind: thing
    properties:
      other: !Ref Second
  Second:
    kind: thing
    properties:
      other: !Ref First
`, nil)
	require.NoError(t, err)

	_, err = g.TopologicalSort()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
	assert.ElementsMatch(t, []string{"First", "Second"}, errors.Cycle(err))
}

func TestBuildImportKeyReferences(t *testing.T) {
	g, err := buildGraph(t, `
resources:
  Namer:
    kind: thing
    properties: {}
  Consumer:
    kind: thing
    properties:
      value: !ImportValue
        Sub: "${Namer}-key"
`, nil)
	require.NoError(t, err)

	consumer := g.GetNode("Consumer")
	require.NotNil(t, consumer)
	assert.Equal(t, []string{"Namer"}, consumer.DependsOn)
}
