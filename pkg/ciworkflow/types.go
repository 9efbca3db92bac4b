// Package ciworkflow generates CI/CD workflow files that deploy stacks in
// cross-stack dependency order. Stacks that import another stack's exports
// run after the exporting stack. It supports GitHub Actions, GitLab CI,
// and CircleCI.
package ciworkflow

import (
	"github.com/stackwave/stackctl/pkg/template"
)

// OutputType identifies the CI provider to generate for.
type OutputType string

const (
	TypeGitHubActions OutputType = "github-actions"
	TypeGitLabCI      OutputType = "gitlab-ci"
	TypeCircleCI      OutputType = "circleci"
)

// ValidOutputTypes returns all valid output type values.
func ValidOutputTypes() []string {
	return []string{
		string(TypeGitHubActions),
		string(TypeGitLabCI),
		string(TypeCircleCI),
	}
}

// NewGenerator returns the generator for an output type, or nil for an
// unknown type.
func NewGenerator(t OutputType) Generator {
	switch t {
	case TypeGitHubActions:
		return NewGitHubActionsGenerator()
	case TypeGitLabCI:
		return NewGitLabCIGenerator()
	case TypeCircleCI:
		return NewCircleCIGenerator()
	}
	return nil
}

// StackInput is one stack to include in the workflow.
type StackInput struct {
	// Name is the stack name passed to deploy.
	Name string

	// TemplateFile is the repo-relative path to the template document.
	TemplateFile string

	// Template is the parsed template, used to extract parameters and
	// cross-stack export/import keys.
	Template *template.Template

	// Parameters maps parameter names to values for the deploy command.
	// Values may be env var references (e.g., "$API_KEY") or static values.
	Parameters map[string]string
}

// Workflow is the intermediate representation of a CI workflow.
// CI provider generators consume this to produce provider-specific YAML.
type Workflow struct {
	// Name is the workflow display name (e.g., "Deploy stacks").
	Name string

	// Jobs is the ordered list of deploy jobs, one per stack.
	Jobs []Job

	// TeardownJobs holds the destroy jobs, reverse dependency order.
	TeardownJobs []Job

	// EnvVars are workflow-level environment variables. Keys are env var
	// names, values are the expressions/references (e.g.,
	// "${{ secrets.AWS_SECRET_ACCESS_KEY }}" for GitHub Actions).
	EnvVars map[string]string

	// Parameters are the parameter declarations extracted from the stack
	// templates, used to generate setup comments.
	Parameters []WorkflowParameter

	// InstallVersion is the stackctl version to install in CI jobs.
	InstallVersion string
}

// WorkflowParameter is a parameter extracted from a stack template. The
// generators map parameters without defaults to required CI variables.
type WorkflowParameter struct {
	// Name is the parameter name as declared in the template.
	Name string

	// EnvName is the uppercased env var name for CI (e.g., "STAGE_NAME").
	EnvName string

	// Stack is the stack declaring the parameter.
	Stack string

	// HasDefault indicates the deploy succeeds without a CI value.
	HasDefault bool

	// Description is a human-readable description for setup comments.
	Description string
}

// Job represents a single CI job in the workflow.
type Job struct {
	// ID is the unique job identifier (e.g., "deploy-networking").
	ID string

	// Name is the human-readable job name.
	Name string

	// StackName is the stack this job deploys or destroys.
	StackName string

	// TemplateFile is the template path for deploy jobs.
	TemplateFile string

	// DependsOn lists job IDs this job depends on.
	DependsOn []string

	// ParamFlags are --param flags for the deploy call
	// (e.g., ["ApiKey=$API_KEY", "LogLevel=debug"]).
	ParamFlags []string

	// Command is the full stackctl command for this job.
	Command string
}

// Generator is the interface for CI provider-specific workflow generators.
type Generator interface {
	// Generate produces the deploy workflow file content.
	Generate(w Workflow) ([]byte, error)

	// GenerateTeardown produces the teardown workflow file content.
	GenerateTeardown(w Workflow) ([]byte, error)

	// DefaultOutputPath returns the conventional output path for this provider.
	DefaultOutputPath() string

	// DefaultTeardownOutputPath returns the conventional teardown output path.
	DefaultTeardownOutputPath() string
}
