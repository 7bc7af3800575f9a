package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-forum-auth"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-revocations",
	Short: "Delete revocation entries whose token already expired",
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

		n, err := auth.NewRepositoryManager(db).Revocations().Purge(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "purged %d revocation entries\n", n)
		return nil
	},
}

// runPurger deletes expired revocations every interval until ctx is done
func runPurger(ctx context.Context, repo *auth.RevocationsRepository, interval time.Duration, logger auth.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Purge(ctx)
			if err != nil {
				logger.Warn("revocation purge failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged %d expired revocation entries", n)
			}
		}
	}
}
