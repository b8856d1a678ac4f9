package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with spanstore tools.
type Server struct {
	client    *spanstore.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

type toolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// NewServer creates a new MCP server with spanstore tools registered.
func NewServer(client *spanstore.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"spanstore",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "spanstore_load", Description: "Insert generated records, one transaction per record unless batch is set"},
		{Name: "spanstore_query", Description: "Count and list records matching an overlap, containment or all query"},
		{Name: "spanstore_sweep", Description: "Run a series of range queries and report hits and misses"},
		{Name: "spanstore_delete_all", Description: "Delete every record in one transaction"},
		{Name: "spanstore_observe", Description: "Subscribe to a live query and get an observer reference"},
		{Name: "spanstore_changes", Description: "Read the change events an observer collected"},
		{Name: "spanstore_unobserve", Description: "Stop an observer"},
		{Name: "spanstore_stats", Description: "Show statistics for the open store"},
		{Name: "spanstore_store_list", Description: "List local stores"},
	}
}

func (s *Server) handlers() map[string]toolHandler {
	return map[string]toolHandler{
		"spanstore_load":       s.handleLoad,
		"spanstore_query":      s.handleQuery,
		"spanstore_sweep":      s.handleSweep,
		"spanstore_delete_all": s.handleDeleteAll,
		"spanstore_observe":    s.handleObserve,
		"spanstore_changes":    s.handleChanges,
		"spanstore_unobserve":  s.handleUnobserve,
		"spanstore_stats":      s.handleStats,
		"spanstore_store_list": s.handleStoreList,
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	h, ok := s.handlers()[name]
	if !ok {
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return h(ctx, args)
}

// Shared argument descriptions for query-shaped tools.
func queryToolOptions(modeRequired bool) []mcp.ToolOption {
	mode := []mcp.PropertyOption{
		mcp.Description("Query mode: overlap, containment or all"),
		mcp.Enum("overlap", "containment", "all"),
	}
	if modeRequired {
		mode = append(mode, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithString("mode", mode...),
		mcp.WithString("from",
			mcp.Description("Lower bound, RFC 3339 or Unix seconds (required unless mode is all)"),
		),
		mcp.WithString("to",
			mcp.Description("Upper bound, RFC 3339 or Unix seconds (required unless mode is all)"),
		),
		mcp.WithNumber("account_id",
			mcp.Description("Only records with this account_id"),
		),
		mcp.WithString("id",
			mcp.Description("Only the record with this ID"),
		),
	}
}

func (s *Server) registerTools() {
	h := s.handlers()

	s.addTool(mcp.NewTool("spanstore_load",
		mcp.WithDescription("Insert generated records. Record i starts at base + i*spacing_seconds and every account_every-th record gets account_id 2. Each record is its own transaction unless batch is true."),
		mcp.WithNumber("count", mcp.Description("Number of records (default: 2001)")),
		mcp.WithNumber("spacing_seconds", mcp.Description("Seconds between start times (default: 2000)")),
		mcp.WithNumber("duration_seconds", mcp.Description("Length of each span in seconds (default: 0)")),
		mcp.WithNumber("account_every", mcp.Description("Assign account_id 2 to every n-th record (default: 2, 0 disables)")),
		mcp.WithString("base", mcp.Description("Start of the first record, RFC 3339 or Unix seconds (default: now)")),
		mcp.WithBoolean("batch", mcp.Description("Insert everything in a single transaction")),
	), h["spanstore_load"])

	s.addTool(mcp.NewTool("spanstore_query",
		append([]mcp.ToolOption{
			mcp.WithDescription("Count records matching a range query and list the first few in insertion order."),
			mcp.WithNumber("limit", mcp.Description("Maximum records to list (default: 10)")),
		}, queryToolOptions(true)...)...,
	), h["spanstore_query"])

	s.addTool(mcp.NewTool("spanstore_sweep",
		append([]mcp.ToolOption{
			mcp.WithDescription("Run count range queries; query i covers [base + i*step_seconds, + window_seconds]. Reports hits, misses and total matches."),
			mcp.WithNumber("count", mcp.Description("Number of queries (default: 3000)")),
			mcp.WithNumber("step_seconds", mcp.Description("Offset between windows (default: 1000)")),
			mcp.WithNumber("window_seconds", mcp.Description("Width of each window (default: 1000)")),
			mcp.WithString("base", mcp.Description("Base time, RFC 3339 or Unix seconds (default: now)")),
		}, queryToolOptions(false)...)...,
	), h["spanstore_sweep"])

	s.addTool(mcp.NewTool("spanstore_delete_all",
		mcp.WithDescription("Delete every record in one transaction. Observers see a single change."),
		mcp.WithBoolean("confirm", mcp.Description("Must be true"), mcp.Required()),
	), h["spanstore_delete_all"])

	s.addTool(mcp.NewTool("spanstore_observe",
		append([]mcp.ToolOption{
			mcp.WithDescription("Subscribe to a live query. Returns an observer reference (O1, O2, ...) for spanstore_changes and spanstore_unobserve."),
			mcp.WithArray("key_paths",
				mcp.Description("Only report modifications touching these fields (e.g. embedded.notes)"),
				mcp.WithStringItems(),
			),
		}, queryToolOptions(false)...)...,
	), h["spanstore_observe"])

	s.addTool(mcp.NewTool("spanstore_changes",
		mcp.WithDescription("Return the change events collected since the last call. Without ref, lists every observer."),
		mcp.WithString("ref", mcp.Description("Observer reference (O1 or 1)")),
	), h["spanstore_changes"])

	s.addTool(mcp.NewTool("spanstore_unobserve",
		mcp.WithDescription("Stop an observer. Its reference becomes invalid."),
		mcp.WithString("ref", mcp.Description("Observer reference (O1 or 1)"), mcp.Required()),
	), h["spanstore_unobserve"])

	s.addTool(mcp.NewTool("spanstore_stats",
		mcp.WithDescription("Show record count, schema version, commits and health of the open store."),
	), h["spanstore_stats"])

	s.addTool(mcp.NewTool("spanstore_store_list",
		mcp.WithDescription("List local stores with their record counts. Read-only."),
		mcp.WithString("prefix", mcp.Description("Only stores whose ID starts with this prefix")),
	), h["spanstore_store_list"])
}

// addTool registers a tool whose handler reports failures as tool errors.
func (s *Server) addTool(tool mcp.Tool, h toolHandler) {
	s.mcpServer.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	})
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func toolError(format string, args ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Internal handlers

func (s *Server) handleLoad(ctx context.Context, args map[string]any) (*ToolResult, error) {
	p := spanstore.LoadParams{
		Count:        spanstore.DefaultLoadCount,
		Spacing:      spanstore.DefaultLoadSpacing,
		AccountEvery: spanstore.DefaultAccountEvery,
	}
	if n, ok := numberArg(args, "count"); ok {
		if n <= 0 {
			return toolError("count must be positive"), nil
		}
		p.Count = int(n)
	}
	if n, ok := numberArg(args, "spacing_seconds"); ok {
		p.Spacing = seconds(n)
	}
	if n, ok := numberArg(args, "duration_seconds"); ok {
		p.Duration = seconds(n)
	}
	if n, ok := numberArg(args, "account_every"); ok {
		p.AccountEvery = int(n)
	}
	if b, ok := args["batch"].(bool); ok {
		p.Batch = b
	}
	base, err := timeArg(args, "base")
	if err != nil {
		return toolError("%v", err), nil
	}
	p.Base = base

	result, err := s.client.LoadData(ctx, p)
	if err != nil {
		inserted := 0
		if result != nil {
			inserted = result.Inserted
		}
		return toolError("load failed after %d records: %v", inserted, err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Loaded %d records in %d transactions (%s).",
		result.Inserted, result.Transactions, result.Elapsed.Round(time.Millisecond))}, nil
}

func (s *Server) handleQuery(ctx context.Context, args map[string]any) (*ToolResult, error) {
	q, err := queryArg(args, true)
	if err != nil {
		return toolError("%v", err), nil
	}
	limit := 10
	if n, ok := numberArg(args, "limit"); ok {
		limit = int(n)
	}

	res, err := s.client.Store().Where(q)
	if err != nil {
		return toolError("query failed: %v", err), nil
	}
	count, err := res.Count(ctx)
	if err != nil {
		return toolError("query failed: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d records match %s\n", count, res.Query())
	shown := 0
	for rec, err := range res.Records(ctx) {
		if shown >= limit {
			break
		}
		if err != nil {
			return toolError("query failed: %v", err), nil
		}
		sb.WriteString(formatRecord(shown, rec))
		shown++
	}
	if shown < count {
		fmt.Fprintf(&sb, "(showing %d of %d)\n", shown, count)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleSweep(ctx context.Context, args map[string]any) (*ToolResult, error) {
	q, err := queryArg(args, false)
	if err != nil {
		return toolError("%v", err), nil
	}
	if q.Mode == spanstore.ModeAll {
		q.Mode = spanstore.ModeContainment
	}
	p := spanstore.SweepParams{Mode: q.Mode, Filters: q.Filters}
	if n, ok := numberArg(args, "count"); ok {
		p.Count = int(n)
	}
	if n, ok := numberArg(args, "step_seconds"); ok {
		p.Step = seconds(n)
	}
	if n, ok := numberArg(args, "window_seconds"); ok {
		p.Window = seconds(n)
	}
	if p.Base, err = timeArg(args, "base"); err != nil {
		return toolError("%v", err), nil
	}

	result, err := s.client.RunQueries(ctx, p)
	if err != nil {
		return toolError("sweep failed: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s queries in %s\n", result.Queries, p.Mode, result.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Hits: %d\n  Misses: %d\n  Matched: %d\n", result.Hits, result.Misses, result.Matched)
	if result.First != nil {
		sb.WriteString("First hit:\n")
		sb.WriteString(formatRecord(0, *result.First))
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleDeleteAll(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if confirm, _ := args["confirm"].(bool); !confirm {
		return toolError("confirm must be true to delete every record"), nil
	}
	n, err := s.client.DeleteAll(ctx)
	if err != nil {
		return toolError("delete all failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Deleted %d records.", n)}, nil
}

func (s *Server) handleObserve(ctx context.Context, args map[string]any) (*ToolResult, error) {
	q, err := queryArg(args, false)
	if err != nil {
		return toolError("%v", err), nil
	}
	// The subscription outlives this call.
	ref, err := s.client.StartObserving(context.WithoutCancel(ctx), q, toStringSlice(args["key_paths"])...)
	if err != nil {
		return toolError("observe failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Observing %s as %s.\nUse spanstore_changes with ref %s to read events.", q, ref, ref)}, nil
}

func (s *Server) handleChanges(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref, _ := args["ref"].(string)
	if ref == "" {
		return &ToolResult{Content: formatObservers(s.client.Observers())}, nil
	}

	changes, err := s.client.Changes(ref)
	if err != nil {
		return toolError("%v", err), nil
	}
	if len(changes) == 0 {
		return &ToolResult{Content: "No new changes."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d changes:\n", len(changes))
	for _, c := range changes {
		sb.WriteString("  " + formatChange(c) + "\n")
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleUnobserve(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref, _ := args["ref"].(string)
	if ref == "" {
		return toolError("ref is required"), nil
	}
	if err := s.client.StopObserving(ref); err != nil {
		return toolError("%v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Stopped observer %s.", ref)}, nil
}

// Argument parsing

// numberArg reads a JSON number argument.
func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

// timeArg reads an RFC 3339 string or Unix seconds. A missing argument
// yields the zero time.
func timeArg(args map[string]any, key string) (time.Time, error) {
	switch v := args[key].(type) {
	case nil:
		return time.Time{}, nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid %s %q: use RFC 3339 or Unix seconds", key, v)
	}
	return time.Time{}, fmt.Errorf("invalid %s: use RFC 3339 or Unix seconds", key)
}

// queryArg builds a query from mode, from, to, account_id and id.
func queryArg(args map[string]any, modeRequired bool) (spanstore.Query, error) {
	modeName, _ := args["mode"].(string)
	if modeName == "" && modeRequired {
		return spanstore.Query{}, fmt.Errorf("mode is required")
	}
	mode, ok := spanstore.ParseQueryMode(modeName)
	if !ok {
		return spanstore.Query{}, fmt.Errorf("unknown mode %q: use overlap, containment or all", modeName)
	}

	q := spanstore.Query{Mode: mode, Filters: spanstore.Filters{}}
	if n, ok := numberArg(args, "account_id"); ok {
		q.Filters[spanstore.FieldAccountID] = n
	}
	if id, _ := args["id"].(string); id != "" {
		q.Filters[spanstore.FieldID] = id
	}
	if mode == spanstore.ModeAll {
		return q, nil
	}

	var err error
	if q.Lower, err = timeArg(args, "from"); err != nil {
		return q, err
	}
	if q.Upper, err = timeArg(args, "to"); err != nil {
		return q, err
	}
	if q.Lower.IsZero() || q.Upper.IsZero() {
		return q, fmt.Errorf("%s queries need from and to", mode)
	}
	return q, nil
}

// Formatting functions

func formatRecord(i int, r spanstore.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s %s\n", i, r.ID, r.Title)
	fmt.Fprintf(&sb, "    %s -> %s", r.StartedAt.UTC().Format(time.RFC3339), r.EndedAt.UTC().Format(time.RFC3339))
	if r.AccountID != nil {
		fmt.Fprintf(&sb, " | account %d", *r.AccountID)
	}
	sb.WriteString("\n")
	if r.Embedded != nil && r.Embedded.Notes != "" {
		fmt.Fprintf(&sb, "    %s\n", truncate(r.Embedded.Notes, 100))
	}
	return sb.String()
}

func formatChange(c spanstore.Change) string {
	switch c.Kind {
	case spanstore.ChangeInitial:
		return fmt.Sprintf("initial: %d records", c.Count)
	case spanstore.ChangeError:
		return fmt.Sprintf("error: %v", c.Err)
	}
	return fmt.Sprintf("update: %d records, deleted %v, inserted %v, modified %v",
		c.Count, orEmpty(c.Deleted), orEmpty(c.Inserted), orEmpty(c.Modified))
}

func orEmpty(idx []int) []int {
	if idx == nil {
		return []int{}
	}
	return idx
}

func formatObservers(infos []spanstore.ObserverInfo) string {
	if len(infos) == 0 {
		return "No observers. Start one with spanstore_observe."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Observers (%d):\n", len(infos))
	for _, o := range infos {
		state := "active"
		if !o.Active {
			state = "ended"
		}
		fmt.Fprintf(&sb, "  %s %s: %s, %d received, %d pending", o.Ref, state, o.Query, o.Received, o.Pending)
		if len(o.KeyPaths) > 0 {
			fmt.Fprintf(&sb, ", key paths %s", strings.Join(o.KeyPaths, ","))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// toStringSlice converts various array types to []string.
// Handles []any, []string, and nil.
func toStringSlice(v any) []string {
	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
