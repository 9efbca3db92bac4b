// Package cli implements the stackctl CLI commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends to register them via init()
	_ "github.com/stackwave/stackctl/pkg/state/backend/azurerm"
	_ "github.com/stackwave/stackctl/pkg/state/backend/gcs"
	_ "github.com/stackwave/stackctl/pkg/state/backend/local"
	_ "github.com/stackwave/stackctl/pkg/state/backend/s3"
)

var (
	cfgFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Provision declarative infrastructure stacks",
	Long: `stackctl deploys stacks described by declarative templates.

A template declares parameters, resources, and outputs. stackctl resolves
the references between resources, provisions them in dependency order,
and rolls back on failure. Stack state is stored in a pluggable backend
(local filesystem, S3, GCS, or Azure Blob Storage).`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stackctl/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "local", "State backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "Backend configuration (key=value)")
	rootCmd.PersistentFlags().String("region", "", "Region value for the Region pseudo parameter")
	rootCmd.PersistentFlags().String("account-id", "", "Account value for the AccountId pseudo parameter")

	// Bind to viper
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	_ = viper.BindPFlag("account-id", rootCmd.PersistentFlags().Lookup("account-id"))
	viper.SetEnvPrefix("STACKCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newExportsCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.stackctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
