package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
)

func seedPricingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-pricing [file.yaml]",
		Short: "Load zone costs and repair history from a YAML file",
		Long: `Upserts the per-zone base cost table and appends historical repair
costs used for vehicle-specific pricing. Defaults to pricing.seed_file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSeedPricing,
	}
}

func runSeedPricing(cmd *cobra.Command, args []string) error {
	path := cfg.Pricing.SeedFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no seed file given and pricing.seed_file is empty")
	}

	seed, err := database.LoadSeedFile(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	if err := database.NewRepository(db).SeedPricing(ctx, seed); err != nil {
		return err
	}

	logger.Info("Pricing seeded",
		"file", path,
		"zones", len(seed.ZoneCosts),
		"repair_records", len(seed.RepairHistory))
	return nil
}
