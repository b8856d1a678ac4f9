package main

import (
	"fmt"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert generated records",
	Long: `Insert evenly spaced records, one transaction per record.

Record i starts at base + i*spacing and lasts --duration. Every
--account-every'th record gets account_id 2.

Example:
  spanstore load
  spanstore load --count 2001 --duration 1500s --account-every 2
  spanstore load --count 100000 --batch --json`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

var (
	loadCount        int
	loadSpacing      time.Duration
	loadDuration     time.Duration
	loadAccountEvery int
	loadBase         string
	loadBatch        bool
)

func init() {
	loadCmd.Flags().IntVarP(&loadCount, "count", "n", spanstore.DefaultLoadCount, "Number of records")
	loadCmd.Flags().DurationVar(&loadSpacing, "spacing", spanstore.DefaultLoadSpacing, "Gap between consecutive start times")
	loadCmd.Flags().DurationVar(&loadDuration, "duration", 0, "Length of each record's span")
	loadCmd.Flags().IntVar(&loadAccountEvery, "account-every", spanstore.DefaultAccountEvery, "Assign account_id 2 to every n-th record (0 disables)")
	loadCmd.Flags().StringVar(&loadBase, "base", "", "Start time of the first record (default: now)")
	loadCmd.Flags().BoolVar(&loadBatch, "batch", false, "Insert everything in a single transaction")
}

func runLoad(cmd *cobra.Command, args []string) error {
	if loadCount <= 0 {
		return fmt.Errorf("--count must be positive, got %d", loadCount)
	}
	params := spanstore.LoadParams{
		Count:        loadCount,
		Spacing:      loadSpacing,
		Duration:     loadDuration,
		AccountEvery: loadAccountEvery,
		Batch:        loadBatch,
	}
	if loadBase != "" {
		base, err := parseTimeArg(loadBase)
		if err != nil {
			return err
		}
		params.Base = base
	}

	client, err := openClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result *spanstore.LoadResult
	err = runWithSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Loading %d records", loadCount), func() error {
		var loadErr error
		result, loadErr = client.LoadData(cmd.Context(), params)
		return loadErr
	})
	if err != nil {
		if result != nil && result.Inserted > 0 {
			printWarning(cmd.ErrOrStderr(), "%d records were committed before the failure", result.Inserted)
		}
		return fmt.Errorf("load: %w", err)
	}
	return outputLoadResult(cmd, result)
}
