package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackwave/stackctl/pkg/ciworkflow"
	"github.com/stackwave/stackctl/pkg/template"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate CI/CD workflow files",
	}

	cmd.AddCommand(newGenerateWorkflowCmd())
	return cmd
}

func newGenerateWorkflowCmd() *cobra.Command {
	var (
		outputType     string
		outputPath     string
		workflowName   string
		installVersion string
		teardown       bool
		teardownOutput string
	)

	cmd := &cobra.Command{
		Use:   "workflow <template-file>...",
		Short: "Generate a CI workflow that deploys stacks in dependency order",
		Long: `Generates a CI/CD workflow file with one deploy job per stack.

Each template file becomes a stack named after the file. Stacks that import
another stack's exports run after the exporting stack; everything else runs
in parallel. A teardown workflow destroying the stacks in reverse order is
generated alongside (disable with --teardown=false).

Template parameters without defaults are surfaced as CI variables and passed
to deploy via --param flags.

Supported output types:
  github-actions  GitHub Actions workflow YAML
  gitlab-ci       GitLab CI pipeline YAML
  circleci        CircleCI pipeline YAML

Examples:
  stackctl generate workflow stacks/*.yml --type github-actions
  stackctl generate workflow networking.yml app.yml --type gitlab-ci -o .gitlab-ci.yml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			ot := ciworkflow.OutputType(outputType)
			gen := ciworkflow.NewGenerator(ot)
			if gen == nil {
				return fmt.Errorf("invalid --type %q; valid values: %s",
					outputType, strings.Join(ciworkflow.ValidOutputTypes(), ", "))
			}

			stacks := make([]ciworkflow.StackInput, 0, len(args))
			for _, file := range args {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read template %s: %w", file, err)
				}

				tmpl, err := template.Parse(data)
				if err != nil {
					return fmt.Errorf("%s: %w", file, formatTemplateError(err))
				}

				stacks = append(stacks, ciworkflow.StackInput{
					Name:         stackNameFromFile(file),
					TemplateFile: filepath.ToSlash(file),
					Template:     tmpl,
				})
			}

			wf, err := ciworkflow.BuildWorkflow(workflowName, stacks, installVersion)
			if err != nil {
				return fmt.Errorf("failed to build workflow: %w", err)
			}
			bindParameterEnvVars(&wf)

			data, err := gen.Generate(wf)
			if err != nil {
				return fmt.Errorf("failed to generate workflow: %w", err)
			}

			outPath := outputPath
			if outPath == "" {
				outPath = gen.DefaultOutputPath()
			}
			if err := writeWorkflowFile(outPath, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Workflow written to %s\n", outPath)

			if !teardown {
				return nil
			}

			teardownBytes, err := gen.GenerateTeardown(wf)
			if err != nil {
				return fmt.Errorf("failed to generate teardown workflow: %w", err)
			}
			if teardownBytes == nil {
				return nil
			}

			tdPath := teardownOutput
			if tdPath == "" {
				tdPath = gen.DefaultTeardownOutputPath()
			}
			if err := writeWorkflowFile(tdPath, teardownBytes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Teardown workflow written to %s\n", tdPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputType, "type", "t", "", "Output type (required): github-actions, gitlab-ci, circleci")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (defaults to type-specific path)")
	cmd.Flags().StringVar(&workflowName, "name", "Deploy stacks", "Workflow display name")
	cmd.Flags().StringVar(&installVersion, "install-version", "latest", "stackctl version to install in CI jobs")
	cmd.Flags().BoolVar(&teardown, "teardown", true, "Generate a teardown workflow")
	cmd.Flags().StringVar(&teardownOutput, "teardown-output", "", "Teardown workflow output path")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

// stackNameFromFile derives a stack name from a template file path
// (stacks/networking.yml -> networking).
func stackNameFromFile(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// bindParameterEnvVars wires parameters without defaults into the workflow:
// each becomes a workflow-level env var reference and a --param flag on its
// stack's deploy command.
func bindParameterEnvVars(wf *ciworkflow.Workflow) {
	byStack := make(map[string][]ciworkflow.WorkflowParameter)
	for _, p := range wf.Parameters {
		if p.HasDefault {
			continue
		}
		byStack[p.Stack] = append(byStack[p.Stack], p)
		if wf.EnvVars == nil {
			wf.EnvVars = make(map[string]string)
		}
		wf.EnvVars[p.EnvName] = fmt.Sprintf("${{ vars.%s }}", p.EnvName)
	}

	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		for _, p := range byStack[job.StackName] {
			flag := fmt.Sprintf("%s=$%s", p.Name, p.EnvName)
			job.ParamFlags = append(job.ParamFlags, flag)
			job.Command += fmt.Sprintf(" --param %s", flag)
		}
	}
}

func writeWorkflowFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
