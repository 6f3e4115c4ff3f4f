package main

import (
	"context" // Context for the promotion queries
	"fmt"     // Error output
	"os"      // Exit codes

	"p2p_wallet/internal/config" // Custom import path (Config)
	"p2p_wallet/internal/db"     // Custom import path (Database)

	"github.com/sirupsen/logrus" // Structured logging
	"github.com/spf13/cobra"     // Command line parsing
)

// Main entry point for migration
func main() {
	var promote []string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the p2p_wallet schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig() // Load configuration
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.DBDriver, cfg.DSN(), true)
			if err != nil {
				return fmt.Errorf("connect to DB: %w", err)
			}
			if err := db.Migrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			// Administrators can only be appointed from here, never through the API
			for _, email := range promote {
				if err := db.PromoteAdmin(context.Background(), gdb, email); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&promote, "promote", nil, "Email of a registered user to grant administrator rights (repeatable)")

	if err := cmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
