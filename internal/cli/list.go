package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stacks",
		Long: `List every stack in the state store with its status.

Examples:
  stackctl list
  stackctl list --backend s3 --backend-config bucket=my-state`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := createStoreWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state store: %w", err)
			}
			eng := createEngine(store)

			refs, err := eng.ListStacks(ctx)
			if err != nil {
				return err
			}

			if len(refs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stacks found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tUPDATED")
			for _, ref := range refs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", ref.Name, ref.Status, ref.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
