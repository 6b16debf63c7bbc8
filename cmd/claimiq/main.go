package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/claimiq/internal/config"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
)

var (
	cfgFile string
	version = "dev"

	v      = config.New()
	cfg    *config.Config
	logger *monitoring.Logger

	rootCmd = &cobra.Command{
		Use:   "claimiq",
		Short: "Motor insurance claim pre-approval pipeline",
		Long: `claimiq turns vehicle damage photos into a priced, fraud-scored
pre-approval decision.

Run "claimiq serve" for the HTTP API or "claimiq process <claim-id>" to
process a single stored claim from the command line.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./claimiq.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(seedPricingCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logger = monitoring.NewLogger(monitoring.ParseLevel(cfg.Log.Level))
	logger.SystemLogger("config_loaded", v.ConfigFileUsed())
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "claimiq", version)
		},
	}
}
