package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackwave/stackctl/pkg/template"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <template-file>",
		Short: "Validate a template without deploying",
		Long: `Validate a template file: structural schema, intrinsic expression
syntax, and reference integrity. Nothing is provisioned.

Examples:
  stackctl validate ./networking.yml
  stackctl validate ./api.json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}

			tmpl, err := template.Parse(data)
			if err != nil {
				return formatTemplateError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Template is valid: %d resources, %d parameters, %d outputs\n",
				len(tmpl.Resources), len(tmpl.Parameters), len(tmpl.Outputs))
			return nil
		},
	}

	return cmd
}
