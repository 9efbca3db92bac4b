package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircleCIGenerator_Generate(t *testing.T) {
	gen := NewCircleCIGenerator()

	data, err := gen.Generate(rendererWorkflow())
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "version: 2.1")
	assert.Contains(t, output, "commands:")
	assert.Contains(t, output, "install-stackctl:")
	assert.Contains(t, output, "deploy-networking:")
	assert.Contains(t, output, "deploy-app:")
	assert.Contains(t, output, "- checkout")
	assert.Contains(t, output, "workflows:")
	assert.Contains(t, output, "deploy-stacks:")
	assert.Contains(t, output, "requires:\n            - deploy-networking")
	assert.Contains(t, output, "stackctl deploy app stacks/app.yml --auto-approve")
}

func TestCircleCIGenerator_GenerateTeardown(t *testing.T) {
	gen := NewCircleCIGenerator()

	data, err := gen.GenerateTeardown(rendererWorkflow())
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "teardown:")
	assert.Contains(t, output, "destroy-app:")
	assert.Contains(t, output, "requires:\n            - destroy-app")
	assert.NotContains(t, output, "- checkout")
}

func TestCircleCIGenerator_DefaultPaths(t *testing.T) {
	gen := NewCircleCIGenerator()
	assert.Equal(t, ".circleci/config.yml", gen.DefaultOutputPath())
	assert.Equal(t, ".circleci/teardown.yml", gen.DefaultTeardownOutputPath())
}
