package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/engine"
	"github.com/finfold/reckon/internal/rules"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify unprocessed outflow entries",
		Long: `Run the rule classifier over every outflow ledger entry that has no
classification yet, apply the confidence gate, and run the timing
guardrail over the results.`,
		RunE: runClassify,
	}

	cmd.Flags().String("rules", "", "path to the ruleset YAML (default: rules.path from config)")

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	company, err := requireCompany()
	if err != nil {
		return err
	}

	rulesPath, _ := cmd.Flags().GetString("rules")
	if rulesPath == "" {
		rulesPath = viper.GetString("rules.path")
	}
	if rulesPath == "" {
		return common.NewUserError(
			"no ruleset configured; pass --rules or set rules.path in the config file",
			common.ErrMissingConfig)
	}

	rs, err := rules.LoadRuleset(expandPath(rulesPath))
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	stats, err := engine.New(store, slog.Default()).ClassifyRun(ctx, company, rs)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	fmt.Printf("\nClassification summary:\n")
	fmt.Printf("  entries:      %d\n", stats.TotalEntries)
	fmt.Printf("  auto-posted:  %d\n", stats.AutoPosted)
	fmt.Printf("  needs review: %d\n", stats.NeedsReview)
	fmt.Printf("  unmatched:    %d\n", stats.Unmatched)
	fmt.Printf("  exceptions:   %d\n", stats.Exceptions)
	fmt.Printf("  duration:     %s\n", stats.Duration.Round(time.Millisecond))

	return nil
}
