package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/claimiq/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the claims HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// warm the pricing snapshot so the first claim does not pay for the load
	if err := a.catalog.Refresh(ctx); err != nil {
		logger.Warn("Initial pricing load failed, base table will be used", "error", err.Error())
	}

	srv := server.New(server.Dependencies{
		Claims:    a.repo,
		Processor: a.orchestrator,
		Vehicles:  a.catalog,
		Health:    a.health,
		Pool:      a.db,
		Pricing:   a.catalog,
		Metrics:   a.metrics,
		Logger:    logger,
	}, server.Config{
		Mode:           cfg.Server.Mode,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxImages:      cfg.Pipeline.MaxImages,
		ProcessTimeout: cfg.Pipeline.StageTimeout * 8,
		Version:        version,
	})

	port := cfg.Server.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}
	return srv.Run(ctx, fmt.Sprintf(":%d", port))
}
