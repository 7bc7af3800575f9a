package main

import (
	"fmt"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-forum-auth"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the users and revoked_tokens tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := auth.Migrate(cmd.Context(), db); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
