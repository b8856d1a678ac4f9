package main

import (
	"fmt"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <overlap|containment|all>",
	Short: "Run a range query",
	Long: `Count and list records matching a range query.

  overlap      ended_at >= from AND started_at <= to
  containment  started_at >= from AND ended_at <= to
  all          every record

Times are RFC 3339 or Unix seconds.

Example:
  spanstore query overlap --from 2024-01-01T00:00:00Z --to 2024-01-01T02:30:00Z
  spanstore query containment --from 1704067200 --to 1704076200 --account 2
  spanstore query all --id 01HZX... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a series of range queries",
	Long: `Run --count range queries and report hits, misses and timing.

Query i (from 1) covers [base + i*step, base + i*step + window].

Example:
  spanstore sweep
  spanstore sweep --mode overlap --count 3000 --step 1000s --window 1000s
  spanstore sweep --account 2 --json`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	queryFrom    string
	queryTo      string
	queryAccount int64
	queryID      string
	queryLimit   int

	sweepCount  int
	sweepStep   time.Duration
	sweepWindow time.Duration
	sweepMode   string
	sweepBase   string
)

func init() {
	addFilterFlags(queryCmd)
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "Lower bound")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "Upper bound")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "k", 20, "Maximum records to list (0 lists none)")

	addFilterFlags(sweepCmd)
	sweepCmd.Flags().IntVarP(&sweepCount, "count", "n", spanstore.DefaultSweepCount, "Number of queries")
	sweepCmd.Flags().DurationVar(&sweepStep, "step", spanstore.DefaultSweepStep, "Offset between consecutive windows")
	sweepCmd.Flags().DurationVar(&sweepWindow, "window", spanstore.DefaultSweepWindow, "Width of each window")
	sweepCmd.Flags().StringVar(&sweepMode, "mode", "containment", "overlap or containment")
	sweepCmd.Flags().StringVar(&sweepBase, "base", "", "Base time (default: now)")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&queryAccount, "account", 0, "Only records with this account_id")
	cmd.Flags().StringVar(&queryID, "id", "", "Only the record with this ID")
}

// filtersFromFlags builds equality filters from the flags that were set.
func filtersFromFlags(cmd *cobra.Command) spanstore.Filters {
	filters := spanstore.Filters{}
	if cmd.Flags().Changed("account") {
		filters[spanstore.FieldAccountID] = queryAccount
	}
	if queryID != "" {
		filters[spanstore.FieldID] = queryID
	}
	return filters
}

// queryFromArgs builds a query from a mode argument and the bound flags.
func queryFromArgs(cmd *cobra.Command, modeArg string) (spanstore.Query, error) {
	mode, ok := spanstore.ParseQueryMode(modeArg)
	if !ok {
		return spanstore.Query{}, fmt.Errorf("unknown query mode %q: use overlap, containment or all", modeArg)
	}
	q := spanstore.Query{Mode: mode, Filters: filtersFromFlags(cmd)}
	if mode == spanstore.ModeAll {
		return q, nil
	}

	if queryFrom == "" || queryTo == "" {
		return q, fmt.Errorf("%s queries need --from and --to", mode)
	}
	var err error
	if q.Lower, err = parseTimeArg(queryFrom); err != nil {
		return q, err
	}
	if q.Upper, err = parseTimeArg(queryTo); err != nil {
		return q, err
	}
	return q, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	q, err := queryFromArgs(cmd, args[0])
	if err != nil {
		return err
	}

	client, err := openClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	res, err := client.Store().Where(q)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	count, err := res.Count(ctx)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	records := []spanstore.Record{}
	if queryLimit > 0 {
		for rec, err := range res.Records(ctx) {
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			records = append(records, rec)
			if len(records) == queryLimit {
				break
			}
		}
	}

	return outputQueryResult(cmd, QueryOutput{Query: res.Query().String(), Count: count, Records: records})
}

func runSweep(cmd *cobra.Command, args []string) error {
	mode, ok := spanstore.ParseQueryMode(sweepMode)
	if !ok || mode == spanstore.ModeAll {
		return fmt.Errorf("invalid --mode %q: use overlap or containment", sweepMode)
	}
	params := spanstore.SweepParams{
		Count:   sweepCount,
		Step:    sweepStep,
		Window:  sweepWindow,
		Mode:    mode,
		Filters: filtersFromFlags(cmd),
	}
	if sweepBase != "" {
		base, err := parseTimeArg(sweepBase)
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

	var result *spanstore.SweepResult
	err = runWithSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Running %d %s queries", sweepCount, mode), func() error {
		var sweepErr error
		result, sweepErr = client.RunQueries(cmd.Context(), params)
		return sweepErr
	})
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return outputSweepResult(cmd, result)
}
