package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newExportsCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List exported values across all stacks",
		Long: `List every exported value in the state store with its owning stack.
Export keys are a single namespace: other stacks import them with
ImportValue.

Examples:
  stackctl exports`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := createStoreWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state store: %w", err)
			}
			eng := createEngine(store)

			exports, err := eng.ListExports(ctx)
			if err != nil {
				return err
			}

			if len(exports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exports found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tSTACK")
			for _, export := range exports {
				fmt.Fprintf(w, "%s\t%v\t%s\n", export.Key, export.Value, export.Owner)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
