package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/finfold/reckon/internal/engine"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/rail/ofx"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest OFX/QFX statement files",
		Long: `Parse OFX or QFX statement files into raw events and run them through
the reconciliation pipeline: fingerprint, identity resolution, evidence
links and ledger projection.

Examples:
  # Ingest a single file
  reckon ingest --company co-1 ~/Downloads/march.qfx

  # Ingest everything a bank exported
  reckon ingest --company co-1 ~/Downloads/statements/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Parse files without writing anything")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	company, err := requireCompany()
	if err != nil {
		return err
	}

	files, err := expandGlobs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to ingest")
	}

	slog.Info("Ingesting statement files", "files", len(files), "dry_run", dryRun)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Parsing statements..."),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	ctx := cmd.Context()
	adapter := ofx.NewAdapter()
	var events []model.RawEvent

	for _, path := range files {
		f, err := os.Open(path) // #nosec G304 -- operator-supplied statement file
		if err != nil {
			slog.Error("Failed to open file", "file", path, "error", err)
			_ = bar.Add(1)
			continue
		}

		fileEvents, err := adapter.ParseFile(ctx, company, f)
		_ = f.Close()
		if err != nil {
			slog.Error("Failed to parse file", "file", filepath.Base(path), "error", err)
			_ = bar.Add(1)
			continue
		}

		events = append(events, fileEvents...)
		_ = bar.Add(1)
	}

	if len(events) == 0 {
		slog.Warn("No events found in any file")
		return nil
	}

	if dryRun {
		slog.Info("Dry run complete, nothing written", "events", len(events))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	result, err := engine.New(store, slog.Default()).Ingest(ctx, company, events)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion summary:\n")
	fmt.Printf("  events:        %d\n", result.Stats.TotalEvents)
	fmt.Printf("  ingested:      %d\n", result.Stats.Ingested)
	fmt.Printf("  duplicates:    %d\n", result.Stats.Duplicates)
	fmt.Printf("  dead-lettered: %d\n", result.Stats.DeadLettered)
	fmt.Printf("  edges:         %d\n", result.Stats.Edges)
	fmt.Printf("  duration:      %s\n", result.Stats.Duration.Round(time.Millisecond))

	for _, dl := range result.DeadLetters {
		fmt.Printf("  dead letter: event %s (%s): %s\n", dl.Event.ID, dl.Event.Counterparty, dl.Err)
	}

	return nil
}

// expandGlobs resolves glob patterns and plain paths into a file list.
func expandGlobs(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}
