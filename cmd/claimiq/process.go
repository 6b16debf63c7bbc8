package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <claim-id>",
		Short: "Process one stored claim and print the result",
		Long: `Runs detection, cost estimation, fraud scoring and the decision rules
for a claim in the uploaded or error state and prints the updated claim
as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orchestrator.Process(ctx, args[0])
	if err != nil {
		return fmt.Errorf("process claim %s: %w", args[0], err)
	}

	out, err := json.MarshalIndent(result.Claim, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	logger.Info("Claim processed",
		"claim_id", result.Claim.ID,
		"decision", result.Claim.Decision.Decision,
		"duration_ms", result.Duration.Milliseconds())
	return nil
}
