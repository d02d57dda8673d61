package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/najdeno/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage najdeno configuration",
	Long: `Manage najdeno configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (NAJDENO_*)
3. Config file (~/.najdeno/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", f)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (using defaults)\n\n")
		}

		data, err := yaml.Marshal(redacted(cfg))
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long:  `Create ~/.najdeno/config.yaml, or the file given by --config, holding every option at its default.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("finding home directory: %w", err)
			}
			path = filepath.Join(home, ".najdeno", "config.yaml")
		}

		if err := writeDefaultConfig(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = "[redacted]"
		}
	}
	mask(&out.Server.JWTSecret)
	mask(&out.Similarity.OpenAI.APIKey)
	mask(&out.Ledger.PrivateKey)
	mask(&out.Ledger.IDSalt)
	return &out
}

func writeDefaultConfig(path string, force bool) (err error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing config file: %w", closeErr)
		}
	}()

	return encodeDefaultConfig(f)
}

func encodeDefaultConfig(w io.Writer) error {
	header := `# najdeno configuration
#
# Every key can be overridden by an environment variable, for example
# NAJDENO_LEDGER_PRIVATE_KEY for ledger.private_key.
#
# An empty ledger.endpoints list disables ledger recording.

`
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config.Default()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
