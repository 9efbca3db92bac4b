package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackwave/stackctl/pkg/engine/planner"
	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/provider"
	"github.com/stackwave/stackctl/pkg/provider/memory"
	"github.com/stackwave/stackctl/pkg/state"
	"github.com/stackwave/stackctl/pkg/state/backend/local"
	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Provider) {
	t.Helper()

	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	store := state.NewStore(b)

	prov := memory.NewProvider()
	registry := provider.NewRegistry()
	for _, kind := range []string{"vpc", "subnet", "function", "database"} {
		registry.Register(kind, prov)
	}

	return NewEngine(store, registry, Options{
		Region:    "us-east-1",
		AccountID: "123456789012",
		Who:       "test",
	}), prov
}

func parse(t *testing.T, doc string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse([]byte(doc))
	require.NoError(t, err)
	return tmpl
}

const networkingDoc = `
description: shared networking
resources:
  Vpc:
    kind: vpc
    properties:
      cidr: 10.0.0.0/16
  Subnet:
    kind: subnet
    properties:
      vpc: !Ref Vpc
outputs:
  VpcId:
    value: !Ref Vpc
    export:
      name: VpcId
`

const appDoc = `
resources:
  Db:
    kind: database
    properties:
      vpc: !ImportValue VpcId
`

func TestDeployCreateAndGet(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
		Output:    &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Execution.Created)

	stored, err := eng.GetStack(ctx, "networking")
	require.NoError(t, err)
	assert.Equal(t, types.StackStatusComplete, stored.Status)
	assert.Len(t, stored.Resources, 2)
	assert.NotEmpty(t, stored.Exports["VpcId"])
}

func TestDeployCrossStackImport(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)

	networking, err := eng.GetStack(ctx, "networking")
	require.NoError(t, err)
	vpcID := networking.Exports["VpcId"]

	_, err = eng.Deploy(ctx, DeployOptions{
		StackName: "app",
		Template:  parse(t, appDoc),
	})
	require.NoError(t, err)

	app, err := eng.GetStack(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, vpcID, app.Resources["Db"].Properties["vpc"])
}

func TestDeployImportBeforeExportFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "app",
		Template:  parse(t, appDoc),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ReasonUnknownExport, errors.Reason(err))

	app, err := eng.GetStack(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, types.StackStatusRollbackComplete, app.Status)
	assert.Empty(t, app.Resources)
}

func TestDeployExportCollision(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)

	rival := `
resources:
  Vpc:
    kind: vpc
    properties:
      cidr: 10.1.0.0/16
outputs:
  VpcId:
    value: !Ref Vpc
    export:
      name: VpcId
`
	_, err = eng.Deploy(ctx, DeployOptions{
		StackName: "rival",
		Template:  parse(t, rival),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExportCollision))

	// The rival stack deployed its resources but published nothing.
	stored, err := eng.GetStack(ctx, "rival")
	require.NoError(t, err)
	assert.Equal(t, types.StackStatusFailed, stored.Status)
	assert.Empty(t, stored.Exports)

	// The original export is untouched.
	exports, err := eng.ListExports(ctx)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "networking", exports[0].Owner)
}

func TestDeployParameterBinding(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	doc := `
parameters:
  CidrBlock:
    type: string
  Name:
    type: string
    default: main
resources:
  Vpc:
    kind: vpc
    properties:
      cidr: !Ref CidrBlock
      name: !Ref Name
`
	// Missing required parameter.
	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "net",
		Template:  parse(t, doc),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	// Undeclared parameter.
	_, err = eng.Deploy(ctx, DeployOptions{
		StackName:  "net",
		Template:   parse(t, doc),
		Parameters: map[string]interface{}{"CidrBlock": "10.0.0.0/16", "Bogus": "x"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	// Override plus default.
	_, err = eng.Deploy(ctx, DeployOptions{
		StackName:  "net",
		Template:   parse(t, doc),
		Parameters: map[string]interface{}{"CidrBlock": "10.0.0.0/16"},
	})
	require.NoError(t, err)

	stored, err := eng.GetStack(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/16", stored.Resources["Vpc"].Properties["cidr"])
	assert.Equal(t, "main", stored.Resources["Vpc"].Properties["name"])
}

func TestDeployCycleAbortsBeforeProviderCalls(t *testing.T) {
	eng, prov := newTestEngine(t)
	ctx := context.Background()

	doc := `
resources:
  A:
    kind: vpc
    properties:
      other: !Ref B
  B:
    kind: vpc
    properties:
      other: !Ref A
`
	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "cyclic",
		Template:  parse(t, doc),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
	assert.Equal(t, 0, prov.Len())

	// Nothing was persisted either.
	_, err = eng.GetStack(ctx, "cyclic")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestDestroyRemovesStack(t *testing.T) {
	eng, prov := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)
	require.Equal(t, 2, prov.Len())

	result, err := eng.Destroy(ctx, DestroyOptions{StackName: "networking"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 0, prov.Len())

	_, err = eng.GetStack(ctx, "networking")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	// Its exports are gone with it.
	exports, err := eng.ListExports(ctx)
	require.NoError(t, err)
	assert.Empty(t, exports)
}

func TestDestroyMissingStack(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Destroy(context.Background(), DestroyOptions{StackName: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestDeployUpdatePlansAgainstStoredState(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)

	result, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Plan.ToCreate)
	assert.Equal(t, 2, result.Plan.ToUpdate)
	assert.Equal(t, 2, result.Execution.Unchanged)
	assert.Equal(t, planner.ActionUpdate, result.Plan.Change("Vpc").Action)
}

func TestListStacks(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, DeployOptions{
		StackName: "networking",
		Template:  parse(t, networkingDoc),
	})
	require.NoError(t, err)

	refs, err := eng.ListStacks(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "networking", refs[0].Name)
	assert.Equal(t, types.StackStatusComplete, refs[0].Status)
}
