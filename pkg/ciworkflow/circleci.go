package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// CircleCIGenerator generates CircleCI pipeline YAML.
type CircleCIGenerator struct{}

// NewCircleCIGenerator creates a new CircleCI generator.
func NewCircleCIGenerator() *CircleCIGenerator {
	return &CircleCIGenerator{}
}

// DefaultOutputPath returns the conventional path for the pipeline.
func (g *CircleCIGenerator) DefaultOutputPath() string {
	return ".circleci/config.yml"
}

// DefaultTeardownOutputPath returns the conventional path for teardown.
func (g *CircleCIGenerator) DefaultTeardownOutputPath() string {
	return ".circleci/teardown.yml"
}

// Generate produces a CircleCI pipeline YAML file.
func (g *CircleCIGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeCircleCISetupComment(&buf, w)

	buf.WriteString("version: 2.1\n\n")
	writeCircleCIInstallCommand(&buf, w.InstallVersion)

	buf.WriteString("jobs:\n")
	for _, job := range w.Jobs {
		writeCircleCIJob(&buf, job, true)
	}

	buf.WriteString("workflows:\n")
	workflowID := sanitizeCircleCIID(w.Name)
	buf.WriteString(fmt.Sprintf("  %s:\n", workflowID))
	buf.WriteString("    jobs:\n")
	writeCircleCIWorkflowJobs(&buf, w.Jobs)

	return buf.Bytes(), nil
}

// GenerateTeardown produces a CircleCI teardown pipeline YAML file.
func (g *CircleCIGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	buf.WriteString("version: 2.1\n\n")
	writeCircleCIInstallCommand(&buf, w.InstallVersion)

	buf.WriteString("jobs:\n")
	for _, job := range w.TeardownJobs {
		writeCircleCIJob(&buf, job, false)
	}

	buf.WriteString("workflows:\n")
	buf.WriteString("  teardown:\n")
	buf.WriteString("    jobs:\n")
	writeCircleCIWorkflowJobs(&buf, w.TeardownJobs)

	return buf.Bytes(), nil
}

func writeCircleCIInstallCommand(buf *bytes.Buffer, installVersion string) {
	buf.WriteString("commands:\n")
	buf.WriteString("  install-stackctl:\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - run:\n")
	buf.WriteString("          name: Install stackctl\n")
	buf.WriteString(fmt.Sprintf("          command: %s\n", installCommand(installVersion)))
	buf.WriteString("\n")
}

// writeCircleCIJob writes a single job in CircleCI format.
func writeCircleCIJob(buf *bytes.Buffer, job Job, checkout bool) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString("    docker:\n")
	buf.WriteString("      - image: cimg/go:1.24\n")
	buf.WriteString("    steps:\n")

	if checkout {
		buf.WriteString("      - checkout\n")
	}

	buf.WriteString("      - install-stackctl\n")
	buf.WriteString("      - run:\n")
	buf.WriteString(fmt.Sprintf("          name: %s\n", job.Name))
	buf.WriteString(fmt.Sprintf("          command: >-\n            %s\n", job.Command))

	buf.WriteString("\n")
}

func writeCircleCIWorkflowJobs(buf *bytes.Buffer, jobs []Job) {
	for _, job := range jobs {
		if len(job.DependsOn) == 0 {
			buf.WriteString(fmt.Sprintf("      - %s\n", job.ID))
		} else {
			buf.WriteString(fmt.Sprintf("      - %s:\n", job.ID))
			buf.WriteString("          requires:\n")
			for _, dep := range job.DependsOn {
				buf.WriteString(fmt.Sprintf("            - %s\n", dep))
			}
		}
	}
}

// writeCircleCISetupComment writes configuration instructions.
func writeCircleCISetupComment(buf *bytes.Buffer, w Workflow) {
	required := requiredEnvNames(w.Parameters)
	if len(required) == 0 {
		return
	}

	buf.WriteString("# Configure these in Project Settings > Environment Variables:\n")
	buf.WriteString(fmt.Sprintf("#   Variables: %s\n", strings.Join(required, ", ")))
	buf.WriteString("#\n")
	buf.WriteString("# State backend configuration is read from STACKCTL_STATE_* variables.\n")
	buf.WriteString("\n")
}

// sanitizeCircleCIID makes a workflow name safe for YAML keys.
func sanitizeCircleCIID(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", ".", "-")
	return strings.ToLower(r.Replace(name))
}
