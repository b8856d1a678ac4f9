package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var storeImportCmd = &cobra.Command{
	Use:   "import <store-id>",
	Short: "Import records into a store from a file",
	Long: `Import records from an export file into an existing store.

The whole import runs as one transaction, so subscribers see a single
change event.

Merge strategies:
  skip    - Keep records that already exist (by ID) (default)
  replace - Overwrite existing records with imported versions

Format auto-detection:
  .json                   -> JSON format
  .db, .sqlite, .sqlite3  -> SQLite format

Examples:
  spanstore store import my-store -i backup.json
  spanstore store import my-store -i backup.json --merge-strategy replace
  spanstore store import my-store -i backup.db --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreImport,
}

var (
	importInputPath     string
	importMergeStrategy string
	importDryRun        bool
	importFormat        string
)

func init() {
	storeImportCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Input file path (required)")
	storeImportCmd.Flags().StringVar(&importMergeStrategy, "merge-strategy", "skip", "Merge strategy: skip, replace")
	storeImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview import without making changes")
	storeImportCmd.Flags().StringVar(&importFormat, "format", "", "Override format detection: json, sqlite")
	_ = storeImportCmd.MarkFlagRequired("input")

	storeCmd.AddCommand(storeImportCmd)
}

// ImportOutput for JSON output.
type ImportOutput struct {
	StoreID   string `json:"store_id"`
	InputFile string `json:"input_file"`
	Format    string `json:"format"`
	Strategy  string `json:"merge_strategy"`
	DryRun    bool   `json:"dry_run"`
	*spanstore.ImportResult
	Duration string `json:"duration"`
}

func runStoreImport(cmd *cobra.Command, args []string) error {
	storeID := args[0]
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	strategy, err := spanstore.ParseMergeStrategy(strings.ToLower(importMergeStrategy))
	if err != nil {
		return err
	}

	if _, err := os.Stat(importInputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", importInputPath)
	}

	format := detectImportFormat(importInputPath)
	if importFormat != "" {
		format = strings.ToLower(importFormat)
	}
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("cannot detect format for %q, use --format to specify", importInputPath)
	}

	s, _, err := openStoreByID(storeID)
	if err != nil {
		return fmt.Errorf("%w\n\nCreate it first with: spanstore store create %s", err, storeID)
	}
	defer s.Close()

	if !outputJSON {
		if importDryRun {
			printInfo(out, "Previewing import into store '%s' from %s...", storeID, importInputPath)
		} else {
			printInfo(out, "Importing into store '%s' from %s...", storeID, importInputPath)
		}
		fmt.Fprintf(out, "  Format: %s\n", strings.ToUpper(format))
		fmt.Fprintf(out, "  Strategy: %s\n", strategy)
	}

	start := time.Now()
	var result *spanstore.ImportResult
	switch format {
	case "json":
		result, err = importJSONFile(ctx, s, importInputPath, strategy, importDryRun)
	case "sqlite":
		result, err = importSQLiteFile(ctx, s, importInputPath, strategy, importDryRun)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	elapsed := time.Since(start)

	if outputJSON {
		return outputAsJSON(cmd, ImportOutput{
			StoreID:      storeID,
			InputFile:    importInputPath,
			Format:       format,
			Strategy:     string(strategy),
			DryRun:       importDryRun,
			ImportResult: result,
			Duration:     elapsed.Round(time.Millisecond).String(),
		})
	}

	verb := func(done, would string) string {
		if importDryRun {
			return would
		}
		return done
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Total records: %d\n", result.Total)
	fmt.Fprintf(out, "  %s: %d\n", verb("Created", "Would create"), result.Created)
	if strategy == spanstore.MergeStrategySkip {
		fmt.Fprintf(out, "  %s: %d\n", verb("Skipped", "Would skip"), result.Skipped)
	} else {
		fmt.Fprintf(out, "  %s: %d\n", verb("Replaced", "Would replace"), result.Replaced)
	}
	fmt.Fprintf(out, "  Errors: %d\n", len(result.Errors))

	if len(result.Errors) > 0 {
		fmt.Fprintln(out)
		printWarning(out, "Errors encountered:")
		const maxErrors = 10
		for i, e := range result.Errors {
			if i >= maxErrors {
				fmt.Fprintf(out, "  ... and %d more errors\n", len(result.Errors)-maxErrors)
				break
			}
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	fmt.Fprintln(out)
	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
	return nil
}

// detectImportFormat detects the format based on file extension.
func detectImportFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func importJSONFile(ctx context.Context, s *spanstore.Store, path string, strategy spanstore.MergeStrategy, dryRun bool) (*spanstore.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()
	return s.ImportJSON(ctx, f, strategy, dryRun)
}

// importSQLiteFile streams the source database through the JSON codec.
func importSQLiteFile(ctx context.Context, s *spanstore.Store, path string, strategy spanstore.MergeStrategy, dryRun bool) (*spanstore.ImportResult, error) {
	src, err := spanstore.Open(spanstore.Config{Path: path, DisableFileWatch: true})
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(src.ExportJSON(ctx, "import", pw))
	}()
	result, err := s.ImportJSON(ctx, pr, strategy, dryRun)
	// Unblocks the exporter if the import stopped early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	return result, err
}
