package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText prints text to the command's stdout.
func outputText(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// outputError prints an error to stderr.
func outputError(w io.Writer, err error) {
	printError(w, "Error: %s", err.Error())
}

const timeLayout = "2006-01-02 15:04:05"

// recordRows renders records as table rows.
func recordRows(records []spanstore.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		account := "-"
		if r.AccountID != nil {
			account = strconv.FormatInt(*r.AccountID, 10)
		}
		notes := ""
		if r.Embedded != nil {
			notes = r.Embedded.Notes
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Local().Format(timeLayout),
			r.EndedAt.Local().Format(timeLayout),
			account,
			truncate(r.Title, 24),
			truncate(notes, 24),
		})
	}
	return rows
}

var recordHeaders = []string{"ID", "STARTED", "ENDED", "ACCOUNT", "TITLE", "NOTES"}

// QueryOutput for JSON output.
type QueryOutput struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Records []spanstore.Record `json:"records"`
}

// outputQueryResult prints query results in configured format.
func outputQueryResult(cmd *cobra.Command, result QueryOutput) error {
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if result.Count == 0 {
		printMuted(out, "No records match %s.", result.Query)
		return nil
	}

	printInfo(out, "%d records match %s", result.Count, result.Query)
	if len(result.Records) > 0 {
		fmt.Fprintln(out, renderTable(recordHeaders, recordRows(result.Records)))
	}
	if len(result.Records) < result.Count {
		printMuted(out, "(showing first %d, use --limit to see more)", len(result.Records))
	}
	return nil
}

// outputLoadResult prints a load summary.
func outputLoadResult(cmd *cobra.Command, result *spanstore.LoadResult) error {
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Inserted:     %d\n", result.Inserted)
	fmt.Fprintf(&summary, "Transactions: %d\n", result.Transactions)
	fmt.Fprintf(&summary, "Duration:     %s", result.Elapsed.Round(time.Millisecond))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderPanel("Load Summary", summary.String()))
	printSuccess(out, "Load complete")
	return nil
}

// outputSweepResult prints a sweep summary.
func outputSweepResult(cmd *cobra.Command, result *spanstore.SweepResult) error {
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Queries:  %d\n", result.Queries)
	fmt.Fprintf(&summary, "Hits:     %d\n", result.Hits)
	fmt.Fprintf(&summary, "Misses:   %d\n", result.Misses)
	fmt.Fprintf(&summary, "Matched:  %d\n", result.Matched)
	fmt.Fprintf(&summary, "Duration: %s", result.Elapsed.Round(time.Millisecond))
	if result.Queries > 0 {
		fmt.Fprintf(&summary, "\nPer query: %s", (result.Elapsed / time.Duration(result.Queries)).Round(time.Microsecond))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderPanel("Sweep Summary", summary.String()))
	if result.First != nil {
		printMuted(out, "First hit:")
		fmt.Fprintln(out, renderTable(recordHeaders, recordRows([]spanstore.Record{*result.First})))
	}
	return nil
}

// formatChange renders one change event on a single line.
func formatChange(c spanstore.Change) string {
	switch c.Kind {
	case spanstore.ChangeInitial:
		return fmt.Sprintf("initial: %d records", c.Count)
	case spanstore.ChangeError:
		return fmt.Sprintf("error: %v", c.Err)
	}
	return fmt.Sprintf("update: %d records (deleted %s, inserted %s, modified %s)",
		c.Count, formatIndexes(c.Deleted), formatIndexes(c.Inserted), formatIndexes(c.Modified))
}

// formatIndexes shortens long index lists.
func formatIndexes(idx []int) string {
	if len(idx) == 0 {
		return "[]"
	}
	const show = 8
	parts := make([]string, 0, show+1)
	for i, n := range idx {
		if i == show {
			parts = append(parts, fmt.Sprintf("... +%d", len(idx)-show))
			break
		}
		parts = append(parts, strconv.Itoa(n))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ChangeOutput is the JSON form of a change event.
type ChangeOutput struct {
	spanstore.Change
	Error string `json:"error,omitempty"`
}

func changeOutput(c spanstore.Change) ChangeOutput {
	out := ChangeOutput{Change: c}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseTimeArg accepts RFC 3339 timestamps or Unix seconds.
func parseTimeArg(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or Unix seconds", s)
}
