package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/finfold/reckon/internal/engine"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
)

func bucketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Show payment-urgency bucket totals",
		Long: `Aggregate classified outflow entries into MUST_PAY, CAN_DELAY,
DISCRETIONARY and OTHER totals, per currency.`,
		RunE: runBuckets,
	}

	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD, inclusive)")

	return cmd
}

func runBuckets(cmd *cobra.Command, _ []string) error {
	company, err := requireCompany()
	if err != nil {
		return err
	}

	filter, err := rangeFilter(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	report, err := engine.New(store, slog.Default()).BucketReport(ctx, company, filter)
	if err != nil {
		return fmt.Errorf("bucket aggregation failed: %w", err)
	}

	if len(report.ByCurrency) == 0 {
		fmt.Println("No classified outflows in range.")
		return nil
	}

	bucketOrder := []model.Policy{
		model.PolicyMustPay,
		model.PolicyCanDelay,
		model.PolicyDiscretionary,
		model.PolicyOther,
	}

	for _, currency := range report.Currencies() {
		totals := report.ByCurrency[currency]
		fmt.Printf("\n%s\n", currency)
		for _, policy := range bucketOrder {
			fmt.Printf("  %-14s %14s\n", policy, formatCents(totals[policy]))
		}
		fmt.Printf("  %-14s %14s\n", "TOTAL", formatCents(totals.Sum()))
	}

	return nil
}

// formatCents renders signed minor units as a decimal amount.
func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func rangeFilter(cmd *cobra.Command) (service.LedgerFilter, error) {
	var filter service.LedgerFilter

	if startStr, _ := cmd.Flags().GetString("start"); startStr != "" {
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return filter, fmt.Errorf("invalid start date %q: %w", startStr, err)
		}
		filter.Start = &start
	}
	if endStr, _ := cmd.Flags().GetString("end"); endStr != "" {
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return filter, fmt.Errorf("invalid end date %q: %w", endStr, err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
		filter.End = &end
	}

	return filter, nil
}
