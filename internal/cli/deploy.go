package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"sigs.k8s.io/yaml"

	"github.com/stackwave/stackctl/pkg/engine"
	"github.com/stackwave/stackctl/pkg/engine/planner"
	"github.com/stackwave/stackctl/pkg/envfile"
	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/template"
)

func newDeployCmd() *cobra.Command {
	var (
		params        []string
		paramsFile    string
		autoApprove   bool
		parallelism   int
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "deploy <stack-name> <template-file>",
		Short: "Deploy a stack from a template",
		Long: `Deploy a stack from a template file.

If the stack does not exist it is created; otherwise it is updated in
place. Resources are provisioned in dependency order, and a mid-operation
failure rolls back every resource touched by the operation.

Parameters are supplied with --param or --parameters-file. Values from
--param override values from the file.

Examples:
  stackctl deploy networking ./networking.yml
  stackctl deploy api ./api.yml --param Environment=prod
  stackctl deploy api ./api.yml --parameters-file prod-params.yml --auto-approve`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stackName := args[0]
			templateFile := args[1]
			ctx := context.Background()

			data, err := os.ReadFile(templateFile)
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}

			tmpl, err := template.Parse(data)
			if err != nil {
				return formatTemplateError(err)
			}

			parameters, err := collectParameters(params, paramsFile)
			if err != nil {
				return err
			}

			store, err := createStoreWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state store: %w", err)
			}
			eng := createEngine(store)

			// Plan against stored state for display before confirming.
			current, err := eng.GetStack(ctx, stackName)
			if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
				return err
			}
			plan := planner.New(tmpl, current)

			fmt.Printf("Stack:    %s\n", stackName)
			fmt.Printf("Template: %s\n", templateFile)
			fmt.Println()
			printPlan(cmd.OutOrStdout(), tmpl, plan)
			fmt.Println()

			// Confirm unless --auto-approve is provided
			if !autoApprove && isInteractive() {
				fmt.Print("Proceed with deployment? [Y/n]: ")
				var response string
				_, _ = fmt.Scanln(&response)
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "" && response != "y" && response != "yes" {
					fmt.Println("Deployment cancelled.")
					return nil
				}
			}

			fmt.Println()

			progress := newProgressPrinter(os.Stdout)
			result, err := eng.Deploy(ctx, engine.DeployOptions{
				StackName:   stackName,
				Template:    tmpl,
				Parameters:  parameters,
				Parallelism: parallelism,
				Output:      os.Stdout,
				OnProgress:  progress.OnEvent,
			})
			if err != nil {
				if result != nil && result.Stack != nil {
					fmt.Printf("\nStack %q is %s\n", stackName, result.Stack.Status)
				}
				return fmt.Errorf("deployment failed: %w", err)
			}

			fmt.Println()
			progress.PrintSummary()
			printOutputs(result.Stack.Outputs)

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Set parameter (key=value)")
	cmd.Flags().StringVar(&paramsFile, "parameters-file", "", "Load parameters from a YAML, JSON, or .env file")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().IntVar(&parallelism, "parallelism", defaultParallelism, "Maximum concurrent provider calls")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}

// collectParameters merges the parameters file with inline --param flags.
// Inline flags win. Files named .env or .env.* are parsed as dotenv;
// everything else as YAML or JSON.
func collectParameters(params []string, paramsFile string) (map[string]interface{}, error) {
	parameters := make(map[string]interface{})

	if paramsFile != "" {
		data, err := os.ReadFile(paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters file: %w", err)
		}
		if isEnvFile(paramsFile) {
			vars, err := envfile.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse parameters file: %w", err)
			}
			for k, v := range vars {
				parameters[k] = v
			}
		} else if err := yaml.Unmarshal(data, &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file: %w", err)
		}
	}

	for _, p := range params {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		parameters[parts[0]] = parts[1]
	}

	return parameters, nil
}

// isEnvFile reports whether a parameters file should be parsed as dotenv.
func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env")
}

func printPlan(out io.Writer, tmpl *template.Template, plan *planner.Plan) {
	fmt.Fprintln(out, "Execution Plan:")
	for _, name := range tmpl.ResourceOrder {
		change := plan.Change(name)
		if change == nil {
			continue
		}
		symbol := "+"
		if change.Action == planner.ActionUpdate {
			symbol = "~"
		}
		fmt.Fprintf(out, "  %s %s (%s)\n", symbol, name, tmpl.Resources[name].Kind)
	}
	for _, change := range plan.Deletes() {
		fmt.Fprintf(out, "  - %s (%s)\n", change.LogicalName, change.Kind)
	}
	fmt.Fprintf(out, "\nPlan: %d to create, %d to update, %d to delete\n",
		plan.ToCreate, plan.ToUpdate, plan.ToDelete)
}

func printOutputs(outputs map[string]interface{}) {
	if len(outputs) == 0 {
		return
	}
	fmt.Println("\nOutputs:")
	for _, key := range sortedKeys(outputs) {
		fmt.Printf("  %s = %v\n", key, outputs[key])
	}
}

// formatTemplateError unwraps parse errors so the document path shows up
// in the message.
func formatTemplateError(err error) error {
	if e, ok := err.(*errors.Error); ok && e.Code == errors.ErrCodeParse {
		return fmt.Errorf("template is invalid: %s", e.Message)
	}
	return fmt.Errorf("template is invalid: %w", err)
}

// isInteractive returns true if the CLI is running in an interactive
// terminal and not in a CI environment.
func isInteractive() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"TRAVIS",
		"JENKINS_URL",
		"BUILDKITE",
		"DRONE",
	}
	for _, env := range ciEnvVars {
		if os.Getenv(env) != "" {
			return false
		}
	}

	return true
}
