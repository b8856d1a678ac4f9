package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long: `Display statistics about the store.

Example:
  spanstore stats
  spanstore stats --health`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
}

// StatsOutput for JSON output.
type StatsOutput struct {
	*spanstore.StoreStats
	Health *spanstore.HealthStatus `json:"health,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := openClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	stats, err := client.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	result := StatsOutput{StoreStats: stats}
	if statsHealth {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		health := client.HealthCheck(ctx)
		result.Health = &health
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Path:           %s\n", stats.Path)
	fmt.Fprintf(&b, "Records:        %d\n", stats.RecordCount)
	fmt.Fprintf(&b, "Schema version: %s\n", stats.SchemaVersion)
	if !stats.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created:        %s (%s)", stats.CreatedAt.Local().Format(timeLayout), formatRelativeTime(stats.CreatedAt))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderPanel("Store Statistics", b.String()))

	if result.Health != nil {
		fmt.Fprintln(out)
		if result.Health.Healthy {
			printSuccess(out, "Healthy")
		} else {
			printError(out, "Unhealthy: %s", result.Health.Error)
		}
	}
	return nil
}
