package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var (
	userEmail string
	userName  string
	tokenTTL  time.Duration
)

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmail == "" {
			return errors.New("--email is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		name := userName
		if name == "" {
			name = userEmail
		}
		u, err := store.CreateUser(cmd.Context(), database, userEmail, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s)\n", u.ID, u.Email)
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		u, err := store.GetUser(ctx, database, id)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d not found", id)
		}

		secret := cfg.Server.JWTSecret
		if secret == "" {
			if secret, err = store.JWTSecret(ctx, database); err != nil {
				return err
			}
		}
		token, err := auth.GenerateToken(secret, u.ID, u.Email, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name (default: the email)")
	userTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "token lifetime")

	userCmd.AddCommand(userAddCmd, userTokenCmd)
	rootCmd.AddCommand(userCmd)
}
