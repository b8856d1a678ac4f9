package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/hyperengineering/spanstore/internal/store"
)

// handleStats handles the spanstore_stats tool call.
func (s *Server) handleStats(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats(ctx)
	if err != nil {
		return toolError("get stats failed: %v", err), nil
	}
	health := s.client.HealthCheck(ctx)
	return &ToolResult{Content: formatStats(stats, health, len(s.client.Observers()))}, nil
}

// handleStoreList handles the spanstore_store_list tool call. Stores other
// than the open one are opened read-only for their counts and closed again.
func (s *Server) handleStoreList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	prefix, _ := args["prefix"].(string)

	entries, err := store.ListStores(store.DefaultStoreRoot())
	if err != nil {
		return toolError("list stores failed: %v", err), nil
	}

	openPath := s.client.Store().Path()
	var sb strings.Builder
	listed := 0
	for _, e := range entries {
		if prefix != "" && !strings.HasPrefix(e.ID, prefix) {
			continue
		}
		listed++

		if e.DBPath == openPath {
			n, err := s.client.Store().Count(ctx)
			sb.WriteString(formatStoreLine(e.ID, n, err, true))
			continue
		}
		n, err := countStore(ctx, e.DBPath)
		sb.WriteString(formatStoreLine(e.ID, n, err, false))
	}

	if listed == 0 {
		if prefix != "" {
			return &ToolResult{Content: fmt.Sprintf("No stores found with prefix %q.", prefix)}, nil
		}
		return &ToolResult{Content: "No stores found."}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Local stores (%d):\n%s", listed, sb.String())}, nil
}

func countStore(ctx context.Context, path string) (int, error) {
	st, err := spanstore.Open(spanstore.Config{Path: path, DisableFileWatch: true})
	if err != nil {
		return 0, err
	}
	defer st.Close()
	return st.Count(ctx)
}

func formatStoreLine(id string, n int, err error, open bool) string {
	marker := " "
	if open {
		marker = "*"
	}
	if err != nil {
		return fmt.Sprintf("%s %s (unreadable: %v)\n", marker, id, err)
	}
	return fmt.Sprintf("%s %s: %d records\n", marker, id, n)
}

// formatStats formats store statistics for display.
func formatStats(stats *spanstore.StoreStats, health spanstore.HealthStatus, observers int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Store: %s\n", stats.Path)
	if !stats.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created: %s\n", formatTimestamp(stats.CreatedAt))
	}
	sb.WriteString("\nStatistics:\n")
	fmt.Fprintf(&sb, "  Records: %d\n", stats.RecordCount)
	fmt.Fprintf(&sb, "  Schema version: %s\n", stats.SchemaVersion)
	fmt.Fprintf(&sb, "  Commits this session: %d\n", stats.Commits)
	fmt.Fprintf(&sb, "  Subscriptions: %d (%d observers)\n", stats.Subscriptions, observers)
	if health.Healthy {
		sb.WriteString("  Health: ok\n")
	} else {
		fmt.Fprintf(&sb, "  Health: %s\n", health.Error)
	}
	return sb.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
