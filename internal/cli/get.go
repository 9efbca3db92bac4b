package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var (
		outputJSON    bool
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "get <stack-name>",
		Short: "Show a stack's resources, outputs, and exports",
		Long: `Show the stored record for a stack: status, realized resources,
resolved outputs, and published exports.

Examples:
  stackctl get networking
  stackctl get networking --json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			store, err := createStoreWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state store: %w", err)
			}
			eng := createEngine(store)

			stack, err := eng.GetStack(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if outputJSON {
				data, err := json.MarshalIndent(stack, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Name:   %s\n", stack.Name)
			fmt.Fprintf(out, "Status: %s\n", stack.Status)
			if stack.StatusReason != "" {
				fmt.Fprintf(out, "Reason: %s\n", stack.StatusReason)
			}

			if len(stack.Resources) > 0 {
				fmt.Fprintln(out, "\nResources:")
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "  NAME\tKIND\tSTATUS\tPHYSICAL ID")
				names := make([]string, 0, len(stack.Resources))
				for name := range stack.Resources {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					r := stack.Resources[name]
					fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", name, r.Kind, r.Status, r.PhysicalID)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if len(stack.Outputs) > 0 {
				fmt.Fprintln(out, "\nOutputs:")
				for _, key := range sortedKeys(stack.Outputs) {
					fmt.Fprintf(out, "  %s = %v\n", key, stack.Outputs[key])
				}
			}

			if len(stack.Exports) > 0 {
				fmt.Fprintln(out, "\nExports:")
				for _, key := range sortedKeys(stack.Exports) {
					fmt.Fprintf(out, "  %s = %v\n", key, stack.Exports[key])
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the raw stack record as JSON")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
