package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rendererWorkflow() Workflow {
	return Workflow{
		Name: "Deploy stacks",
		Jobs: []Job{
			{
				ID:        "deploy-networking",
				Name:      "Deploy networking",
				StackName: "networking",
				Command:   "stackctl deploy networking stacks/networking.yml --auto-approve",
			},
			{
				ID:        "deploy-app",
				Name:      "Deploy app",
				StackName: "app",
				DependsOn: []string{"deploy-networking"},
				Command:   "stackctl deploy app stacks/app.yml --auto-approve --param ApiKey=$API_KEY",
			},
		},
		TeardownJobs: []Job{
			{
				ID:        "destroy-app",
				Name:      "Destroy app",
				StackName: "app",
				Command:   "stackctl destroy app --auto-approve",
			},
			{
				ID:        "destroy-networking",
				Name:      "Destroy networking",
				StackName: "networking",
				DependsOn: []string{"destroy-app"},
				Command:   "stackctl destroy networking --auto-approve",
			},
		},
		EnvVars: map[string]string{
			"API_KEY": "${{ secrets.API_KEY }}",
		},
		Parameters: []WorkflowParameter{
			{Name: "ApiKey", EnvName: "API_KEY", Stack: "app", Description: "upstream API credential"},
			{Name: "LogLevel", EnvName: "LOG_LEVEL", Stack: "app", HasDefault: true},
		},
		InstallVersion: "latest",
	}
}

func TestGitHubActionsGenerator_Generate(t *testing.T) {
	gen := NewGitHubActionsGenerator()

	data, err := gen.Generate(rendererWorkflow())
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "name: Deploy stacks")
	assert.Contains(t, output, "push:")
	assert.Contains(t, output, "branches: [main]")
	assert.Contains(t, output, "API_KEY: ${{ secrets.API_KEY }}")
	assert.Contains(t, output, "deploy-networking:")
	assert.Contains(t, output, "deploy-app:")
	assert.Contains(t, output, "needs: [deploy-networking]")
	assert.Contains(t, output, "uses: actions/checkout@v4")
	assert.Contains(t, output, "Install stackctl")
	assert.Contains(t, output, "go install github.com/stackwave/stackctl/cmd/stackctl@latest")
	assert.Contains(t, output, "stackctl deploy app stacks/app.yml --auto-approve")
}

func TestGitHubActionsGenerator_SetupComment(t *testing.T) {
	gen := NewGitHubActionsGenerator()

	data, err := gen.Generate(rendererWorkflow())
	require.NoError(t, err)
	output := string(data)

	// Parameters with defaults don't need CI variables.
	assert.Contains(t, output, "API_KEY (upstream API credential)")
	assert.NotContains(t, output, "LOG_LEVEL")
}

func TestGitHubActionsGenerator_PinnedVersion(t *testing.T) {
	gen := NewGitHubActionsGenerator()
	w := rendererWorkflow()
	w.InstallVersion = "v0.3.1"

	data, err := gen.Generate(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go install github.com/stackwave/stackctl/cmd/stackctl@v0.3.1")
}

func TestGitHubActionsGenerator_GenerateTeardown(t *testing.T) {
	gen := NewGitHubActionsGenerator()

	data, err := gen.GenerateTeardown(rendererWorkflow())
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "name: Teardown stacks")
	assert.Contains(t, output, "on: workflow_dispatch")
	assert.Contains(t, output, "destroy-app:")
	assert.Contains(t, output, "needs: [destroy-app]")
	assert.Contains(t, output, "stackctl destroy networking --auto-approve")
	// Destroy jobs don't read template files from the repo.
	assert.NotContains(t, output, "actions/checkout")
}

func TestGitHubActionsGenerator_TeardownEmpty(t *testing.T) {
	gen := NewGitHubActionsGenerator()

	data, err := gen.GenerateTeardown(Workflow{Name: "Deploy stacks"})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestGitHubActionsGenerator_DefaultPaths(t *testing.T) {
	gen := NewGitHubActionsGenerator()
	assert.Equal(t, ".github/workflows/deploy.yml", gen.DefaultOutputPath())
	assert.Equal(t, ".github/workflows/teardown.yml", gen.DefaultTeardownOutputPath())
}
