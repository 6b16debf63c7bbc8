package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger.Info("Starting database migration", "database", cfg.Database.Path)

			// Open migrates as part of opening
			db, err := database.Open(ctx, cfg.Database.Path)
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(db, "database")

			logger.Info("Database migrations completed", "pool", db.GetPoolStats())
			return nil
		},
	}
}
