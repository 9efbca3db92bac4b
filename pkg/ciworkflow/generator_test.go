package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stackerrors "github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/template"
)

const networkingDoc = `
version: "1.0"
resources:
  Vpc:
    kind: network
    properties:
      cidr: 10.0.0.0/16
outputs:
  VpcId:
    value: !Ref Vpc
    export: network-vpc-id
`

const appDoc = `
version: "1.0"
parameters:
  LogLevel:
    type: string
    default: info
  ApiKey:
    type: string
    description: upstream API credential
resources:
  Handler:
    kind: function
    properties:
      vpc: !ImportValue network-vpc-id
      key: !Ref ApiKey
      logLevel: !Ref LogLevel
`

func parseDoc(t *testing.T, doc string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse([]byte(doc))
	require.NoError(t, err)
	return tmpl
}

func twoStackInputs(t *testing.T) []StackInput {
	t.Helper()
	return []StackInput{
		// app listed first on purpose: ordering must come from the
		// export/import match, not input order.
		{Name: "app", TemplateFile: "stacks/app.yml", Template: parseDoc(t, appDoc)},
		{Name: "networking", TemplateFile: "stacks/networking.yml", Template: parseDoc(t, networkingDoc)},
	}
}

func TestBuildWorkflow_OrdersByExports(t *testing.T) {
	w, err := BuildWorkflow("Deploy stacks", twoStackInputs(t), "latest")
	require.NoError(t, err)
	require.Len(t, w.Jobs, 2)

	assert.Equal(t, "deploy-networking", w.Jobs[0].ID)
	assert.Equal(t, "deploy-app", w.Jobs[1].ID)
	assert.Empty(t, w.Jobs[0].DependsOn)
	assert.Equal(t, []string{"deploy-networking"}, w.Jobs[1].DependsOn)
}

func TestBuildWorkflow_Commands(t *testing.T) {
	stacks := []StackInput{{
		Name:         "app",
		TemplateFile: "stacks/app.yml",
		Template:     parseDoc(t, appDoc),
		Parameters: map[string]string{
			"ApiKey":   "$API_KEY",
			"LogLevel": "debug",
		},
	}}

	w, err := BuildWorkflow("Deploy stacks", stacks, "latest")
	require.NoError(t, err)
	require.Len(t, w.Jobs, 1)

	cmd := w.Jobs[0].Command
	assert.Contains(t, cmd, "stackctl deploy app stacks/app.yml --auto-approve")
	assert.Contains(t, cmd, "--param ApiKey=$API_KEY")
	assert.Contains(t, cmd, "--param LogLevel=debug")
}

func TestBuildWorkflow_TeardownReversesOrder(t *testing.T) {
	w, err := BuildWorkflow("Deploy stacks", twoStackInputs(t), "latest")
	require.NoError(t, err)
	require.Len(t, w.TeardownJobs, 2)

	assert.Equal(t, "destroy-app", w.TeardownJobs[0].ID)
	assert.Equal(t, "destroy-networking", w.TeardownJobs[1].ID)
	assert.Empty(t, w.TeardownJobs[0].DependsOn)
	assert.Equal(t, []string{"destroy-app"}, w.TeardownJobs[1].DependsOn)
	assert.Contains(t, w.TeardownJobs[0].Command, "stackctl destroy app --auto-approve")
}

func TestBuildWorkflow_Parameters(t *testing.T) {
	w, err := BuildWorkflow("Deploy stacks", twoStackInputs(t), "latest")
	require.NoError(t, err)

	byName := make(map[string]WorkflowParameter)
	for _, p := range w.Parameters {
		byName[p.Name] = p
	}

	require.Contains(t, byName, "ApiKey")
	assert.Equal(t, "API_KEY", byName["ApiKey"].EnvName)
	assert.Equal(t, "app", byName["ApiKey"].Stack)
	assert.False(t, byName["ApiKey"].HasDefault)
	assert.True(t, byName["LogLevel"].HasDefault)
}

func TestBuildWorkflow_UnknownImportIgnored(t *testing.T) {
	// No stack exports network-vpc-id: the import is assumed to exist
	// already and does not order anything.
	stacks := []StackInput{
		{Name: "app", TemplateFile: "stacks/app.yml", Template: parseDoc(t, appDoc)},
	}

	w, err := BuildWorkflow("Deploy stacks", stacks, "latest")
	require.NoError(t, err)
	require.Len(t, w.Jobs, 1)
	assert.Empty(t, w.Jobs[0].DependsOn)
}

func TestBuildWorkflow_DuplicateStack(t *testing.T) {
	stacks := []StackInput{
		{Name: "app", Template: parseDoc(t, appDoc)},
		{Name: "app", Template: parseDoc(t, appDoc)},
	}

	_, err := BuildWorkflow("Deploy stacks", stacks, "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stack")
}

func TestBuildWorkflow_ImportCycle(t *testing.T) {
	aDoc := `
version: "1.0"
resources:
  Thing:
    kind: bucket
    properties:
      from: !ImportValue b-export
outputs:
  Out:
    value: !Ref Thing
    export: a-export
`
	bDoc := `
version: "1.0"
resources:
  Thing:
    kind: bucket
    properties:
      from: !ImportValue a-export
outputs:
  Out:
    value: !Ref Thing
    export: b-export
`
	stacks := []StackInput{
		{Name: "a", Template: parseDoc(t, aDoc)},
		{Name: "b", Template: parseDoc(t, bDoc)},
	}

	_, err := BuildWorkflow("Deploy stacks", stacks, "latest")
	require.Error(t, err)
	assert.True(t, stackerrors.Is(err, stackerrors.ErrCodeCycle))
}

func TestBuildWorkflow_DynamicExportKeyExcluded(t *testing.T) {
	// Export keys built from expressions resolve at deploy time and
	// cannot participate in static ordering.
	dynDoc := `
version: "1.0"
resources:
  Vpc:
    kind: network
    properties:
      cidr: 10.0.0.0/16
outputs:
  VpcId:
    value: !Ref Vpc
    export: !Sub "${StackName}-vpc-id"
`
	stacks := []StackInput{
		{Name: "app", TemplateFile: "stacks/app.yml", Template: parseDoc(t, appDoc)},
		{Name: "networking", TemplateFile: "stacks/networking.yml", Template: parseDoc(t, dynDoc)},
	}

	w, err := BuildWorkflow("Deploy stacks", stacks, "latest")
	require.NoError(t, err)
	require.Len(t, w.Jobs, 2)

	// Input order preserved; no dependency inferred.
	assert.Equal(t, "deploy-app", w.Jobs[0].ID)
	assert.Empty(t, w.Jobs[0].DependsOn)
	assert.Empty(t, w.Jobs[1].DependsOn)
}

func TestBuildParamFlags_Sorted(t *testing.T) {
	flags := buildParamFlags(map[string]string{
		"Zebra":  "z",
		"Alpha":  "a",
		"Middle": "m",
	})
	require.Len(t, flags, 3)
	assert.Equal(t, "Alpha=a", flags[0])
	assert.Equal(t, "Middle=m", flags[1])
	assert.Equal(t, "Zebra=z", flags[2])
}

func TestBuildParamFlags_Empty(t *testing.T) {
	assert.Nil(t, buildParamFlags(nil))
	assert.Nil(t, buildParamFlags(map[string]string{}))
}

func TestToEnvName(t *testing.T) {
	assert.Equal(t, "STAGE_NAME", toEnvName("StageName"))
	assert.Equal(t, "API_KEY", toEnvName("ApiKey"))
	assert.Equal(t, "ENVIRONMENT", toEnvName("Environment"))
	assert.Equal(t, "DB_HOST", toEnvName("DBHost"))
}

func TestNewGenerator(t *testing.T) {
	assert.NotNil(t, NewGenerator(TypeGitHubActions))
	assert.NotNil(t, NewGenerator(TypeGitLabCI))
	assert.NotNil(t, NewGenerator(TypeCircleCI))
	assert.Nil(t, NewGenerator(OutputType("jenkins")))
}
