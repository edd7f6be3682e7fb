package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func exceptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exceptions",
		Short: "List open review exceptions",
		Long:  `Show advisory exceptions the engine raised for human review, newest first.`,
		RunE:  runExceptions,
	}
}

func runExceptions(cmd *cobra.Command, _ []string) error {
	company, err := requireCompany()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	exceptions, err := store.ListExceptions(ctx, company)
	if err != nil {
		return fmt.Errorf("failed to list exceptions: %w", err)
	}

	if len(exceptions) == 0 {
		fmt.Println("No exceptions.")
		return nil
	}

	for _, exc := range exceptions {
		fmt.Printf("%s  [%s]  %s\n", exc.CreatedAt.Format("2006-01-02 15:04"), exc.Kind, exc.Reason)
		if exc.LedgerEntryID != "" {
			fmt.Printf("    ledger entry: %s\n", exc.LedgerEntryID)
		}
	}

	return nil
}
