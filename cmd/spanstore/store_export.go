package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var storeExportCmd = &cobra.Command{
	Use:   "export <store-id>",
	Short: "Export store records to a file",
	Long: `Export every record of a store to a backup file.

JSON exports (default) are streamed in insertion order. SQLite exports
are a compacted copy of the database file.

Examples:
  spanstore store export my-store -o backup.json
  spanstore store export my-store -o backup.db --format sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreExport,
}

var (
	exportOutputPath string
	exportFormat     string
)

func init() {
	storeExportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	storeExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, sqlite")
	_ = storeExportCmd.MarkFlagRequired("output")

	storeCmd.AddCommand(storeExportCmd)
}

// ExportResult for JSON output.
type ExportResult struct {
	StoreID     string `json:"store_id"`
	Format      string `json:"format"`
	RecordCount int    `json:"record_count"`
	FilePath    string `json:"file_path"`
	FileSize    int64  `json:"file_size"`
	Duration    string `json:"duration"`
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	storeID := args[0]
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	format := strings.ToLower(exportFormat)
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'sqlite'", exportFormat)
	}

	s, _, err := openStoreByID(storeID)
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}

	if !outputJSON {
		printInfo(out, "Exporting store '%s' to %s...", storeID, exportOutputPath)
		fmt.Fprintf(out, "  Format: %s\n", strings.ToUpper(format))
	}

	start := time.Now()
	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}
	switch format {
	case "json":
		err = exportJSONFile(ctx, s, storeID, exportOutputPath)
	case "sqlite":
		err = s.ExportSQLite(ctx, exportOutputPath)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	elapsed := time.Since(start)

	var size int64
	if fi, statErr := os.Stat(exportOutputPath); statErr == nil {
		size = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, ExportResult{
			StoreID:     storeID,
			Format:      format,
			RecordCount: count,
			FilePath:    exportOutputPath,
			FileSize:    size,
			Duration:    elapsed.Round(time.Millisecond).String(),
		})
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Records:   %d\n", count)
	fmt.Fprintf(&summary, "File size: %s\n", formatBytes(size))
	fmt.Fprintf(&summary, "Duration:  %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(&summary, "Output:    %s", exportOutputPath)

	fmt.Fprintln(out, renderPanel("Export Summary", summary.String()))
	printSuccess(out, "Export complete")
	return nil
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}

func exportJSONFile(ctx context.Context, s *spanstore.Store, storeID, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := s.ExportJSON(ctx, storeID, f); err != nil {
		f.Close()
		_ = os.Remove(destPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	return f.Close()
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
