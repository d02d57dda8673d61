// Package cli implements the najdeno command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/najdeno/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "najdeno",
	Short: "Najdeno - lost and found matching with verified handovers",
	Long: `Najdeno matches lost item reports against found item reports and
hands matched items back to their owners through a one-time code.

Completed handovers can be anchored on an EVM ledger as hashed proofs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Cancelling ctx stops long-running
// commands such as serve.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.najdeno/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringP("db", "d", "", "SQLite database path (default: najdeno.sqlite3)")
	rootCmd.PersistentFlags().StringP("log", "l", "", "also write logs to this file")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log.path", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file and NAJDENO_* environment variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".najdeno"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	case errors.As(err, &notFound):
	default:
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}

// loadConfig decodes and validates the layered configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// Version is set at build time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "najdeno %s\n", Version)
	},
}
