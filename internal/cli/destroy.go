package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackwave/stackctl/pkg/engine"
)

func newDestroyCmd() *cobra.Command {
	var (
		autoApprove   bool
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "destroy <stack-name>",
		Short: "Destroy a stack and all of its resources",
		Long: `Destroy a stack: delete every resource it owns in reverse dependency
order, then remove its state and retract its exports.

A failed delete stops the operation and leaves the remaining resources
recorded so the destroy can be retried.

Examples:
  stackctl destroy networking
  stackctl destroy api --auto-approve`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stackName := args[0]
			ctx := context.Background()

			store, err := createStoreWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state store: %w", err)
			}
			eng := createEngine(store)

			stack, err := eng.GetStack(ctx, stackName)
			if err != nil {
				return err
			}

			fmt.Printf("Stack: %s (%d resources)\n", stackName, len(stack.Resources))
			fmt.Println()

			if !autoApprove && isInteractive() {
				fmt.Printf("Destroy stack %q and all of its resources? [y/N]: ", stackName)
				var response string
				_, _ = fmt.Scanln(&response)
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Println("Destroy cancelled.")
					return nil
				}
			}

			progress := newProgressPrinter(os.Stdout)
			result, err := eng.Destroy(ctx, engine.DestroyOptions{
				StackName:  stackName,
				Output:     os.Stdout,
				OnProgress: progress.OnEvent,
			})
			if err != nil {
				return fmt.Errorf("destroy failed: %w", err)
			}

			fmt.Printf("\nDestroyed stack %q (%d resources deleted)\n", stackName, result.Deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
