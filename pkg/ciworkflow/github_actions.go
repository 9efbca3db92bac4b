package ciworkflow

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// GitHubActionsGenerator generates GitHub Actions workflow YAML.
type GitHubActionsGenerator struct{}

// NewGitHubActionsGenerator creates a new GitHub Actions generator.
func NewGitHubActionsGenerator() *GitHubActionsGenerator {
	return &GitHubActionsGenerator{}
}

// DefaultOutputPath returns the conventional path for the deploy workflow.
func (g *GitHubActionsGenerator) DefaultOutputPath() string {
	return ".github/workflows/deploy.yml"
}

// DefaultTeardownOutputPath returns the conventional path for the teardown workflow.
func (g *GitHubActionsGenerator) DefaultTeardownOutputPath() string {
	return ".github/workflows/teardown.yml"
}

// Generate produces a GitHub Actions deploy workflow YAML file.
func (g *GitHubActionsGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	// Header comment with setup instructions
	writeSetupComment(&buf, w)

	buf.WriteString(fmt.Sprintf("name: %s\n", w.Name))
	buf.WriteString("on:\n")
	buf.WriteString("  push:\n")
	buf.WriteString("    branches: [main]\n")
	buf.WriteString("\n")

	// Workflow-level env vars
	if len(w.EnvVars) > 0 {
		buf.WriteString("env:\n")
		keys := sortedMapKeys(w.EnvVars)
		for _, k := range keys {
			buf.WriteString(fmt.Sprintf("  %s: %s\n", k, w.EnvVars[k]))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("jobs:\n")
	for _, job := range w.Jobs {
		writeGitHubJob(&buf, job, w.InstallVersion, true)
	}

	return buf.Bytes(), nil
}

// GenerateTeardown produces a GitHub Actions teardown workflow YAML file.
func (g *GitHubActionsGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	teardownName := strings.Replace(w.Name, "Deploy", "Teardown", 1)
	if teardownName == w.Name {
		teardownName = w.Name + " - Teardown"
	}
	buf.WriteString(fmt.Sprintf("name: %s\n", teardownName))
	buf.WriteString("on: workflow_dispatch\n")
	buf.WriteString("\n")

	if len(w.EnvVars) > 0 {
		buf.WriteString("env:\n")
		keys := sortedMapKeys(w.EnvVars)
		for _, k := range keys {
			buf.WriteString(fmt.Sprintf("  %s: %s\n", k, w.EnvVars[k]))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("jobs:\n")
	for _, job := range w.TeardownJobs {
		writeGitHubJob(&buf, job, w.InstallVersion, false)
	}

	return buf.Bytes(), nil
}

// writeGitHubJob writes a single job in GitHub Actions YAML format.
func writeGitHubJob(buf *bytes.Buffer, job Job, installVersion string, checkout bool) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString(fmt.Sprintf("    name: %s\n", job.Name))
	if len(job.DependsOn) > 0 {
		buf.WriteString(fmt.Sprintf("    needs: [%s]\n", strings.Join(job.DependsOn, ", ")))
	}
	buf.WriteString("    runs-on: ubuntu-latest\n")
	buf.WriteString("    steps:\n")

	// Deploy jobs read template files from the repo; destroy jobs don't.
	if checkout {
		buf.WriteString("      - uses: actions/checkout@v4\n")
	}

	buf.WriteString("      - name: Install stackctl\n")
	buf.WriteString(fmt.Sprintf("        run: %s\n", installCommand(installVersion)))

	buf.WriteString(fmt.Sprintf("      - name: %s\n", job.Name))
	buf.WriteString(fmt.Sprintf("        run: >-\n          %s\n", job.Command))

	buf.WriteString("\n")
}

// installCommand returns the stackctl install one-liner for CI jobs.
func installCommand(version string) string {
	if version != "" && version != "latest" {
		return fmt.Sprintf("go install github.com/stackwave/stackctl/cmd/stackctl@%s", version)
	}
	return "go install github.com/stackwave/stackctl/cmd/stackctl@latest"
}

// writeSetupComment writes a comment block describing required CI configuration.
func writeSetupComment(buf *bytes.Buffer, w Workflow) {
	required := requiredEnvNames(w.Parameters)
	if len(required) == 0 {
		return
	}

	buf.WriteString("# Configure these in Settings > Secrets and variables > Actions:\n")
	buf.WriteString(fmt.Sprintf("#   Variables: %s\n", strings.Join(required, ", ")))
	buf.WriteString("#\n")
	buf.WriteString("# State backend configuration is read from STACKCTL_STATE_BACKEND\n")
	buf.WriteString("# and STACKCTL_STATE_* variables.\n")
	buf.WriteString("\n")
}

// requiredEnvNames lists the env names of parameters without defaults,
// deduplicated, in declaration order.
func requiredEnvNames(params []WorkflowParameter) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range params {
		if p.HasDefault || seen[p.EnvName] {
			continue
		}
		seen[p.EnvName] = true
		name := p.EnvName
		if p.Description != "" {
			name += " (" + p.Description + ")"
		}
		names = append(names, name)
	}
	return names
}

// sortedMapKeys returns sorted keys from a string map.
func sortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
