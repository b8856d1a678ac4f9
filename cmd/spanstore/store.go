package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/spanstore"
	"github.com/hyperengineering/spanstore/internal/store"
	"github.com/spf13/cobra"
)

const descriptionKey = "description"

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage local stores",
	Long: `Manage local stores, each holding its own database file.

Subcommands:
  list    List all local stores
  create  Create a new store
  delete  Delete an existing store
  info    Show store details and statistics
  export  Export a store to a file
  import  Import records into a store

Example:
  spanstore store list
  spanstore store create my-project --description "Load test data"
  spanstore store info my-project`,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local stores",
	Long: `List all local stores with record counts.

Example:
  spanstore store list
  spanstore store list --json`,
	Args: cobra.NoArgs,
	RunE: runStoreList,
}

var storeCreateCmd = &cobra.Command{
	Use:   "create <store-id>",
	Short: "Create a new store",
	Long: `Create a new local store.

Store ID format:
  - Lowercase alphanumeric characters and hyphens
  - 1 to 4 path segments separated by '/'
  - Each segment 1-64 characters
  - No leading/trailing hyphens, no consecutive hyphens

Example:
  spanstore store create my-project
  spanstore store create team/bench --description "Benchmark data"`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreCreate,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <store-id>",
	Short: "Delete a store",
	Long: `Delete a local store and all its records.

Requires --confirm flag for safety. Use --force to skip interactive prompt.
Cannot delete the 'default' store.

Example:
  spanstore store delete my-project --confirm
  spanstore store delete my-project --confirm --force`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreDelete,
}

var storeInfoCmd = &cobra.Command{
	Use:   "info [store-id]",
	Short: "Show store details",
	Long: `Display detailed information and statistics for a store.

If store-id is not provided, uses the resolved store from --store or
SPANSTORE_STORE.

Example:
  spanstore store info my-project
  spanstore store info --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStoreInfo,
}

var (
	storeDescription   string
	storeDeleteConfirm bool
	storeDeleteForce   bool
)

func init() {
	storeCreateCmd.Flags().StringVar(&storeDescription, "description", "", "Store description")
	storeDeleteCmd.Flags().BoolVar(&storeDeleteConfirm, "confirm", false, "Confirm deletion (required)")
	storeDeleteCmd.Flags().BoolVar(&storeDeleteForce, "force", false, "Skip interactive prompt")

	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeCreateCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeInfoCmd)
}

// openStoreByID opens an existing store without watching its file.
func openStoreByID(storeID string) (*spanstore.Store, string, error) {
	if err := store.ValidateStoreID(storeID); err != nil {
		return nil, "", fmt.Errorf("invalid store ID %q: %w", storeID, err)
	}
	dbPath := store.StoreDBPath(storeID)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, dbPath, fmt.Errorf("store %q not found", storeID)
	}
	s, err := spanstore.Open(spanstore.Config{Path: dbPath, DisableFileWatch: true})
	if err != nil {
		return nil, dbPath, fmt.Errorf("open store: %w", err)
	}
	return s, dbPath, nil
}

// StoreListEntry represents a store in list output.
type StoreListEntry struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// StoreListResult for JSON output.
type StoreListResult struct {
	Stores []StoreListEntry `json:"stores"`
	Total  int              `json:"total"`
}

func runStoreList(cmd *cobra.Command, args []string) error {
	entries, err := store.ListStores(store.DefaultStoreRoot())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stores := make([]StoreListEntry, 0, len(entries))
	for _, e := range entries {
		listEntry := StoreListEntry{ID: e.ID}

		s, err := spanstore.Open(spanstore.Config{Path: e.DBPath, DisableFileWatch: true})
		if err != nil {
			// Listed with the reason rather than hidden.
			listEntry.Error = err.Error()
			stores = append(stores, listEntry)
			continue
		}
		listEntry.Description, _ = s.GetMetadata(ctx, descriptionKey)
		if stats, err := s.Stats(ctx); err == nil {
			listEntry.RecordCount = stats.RecordCount
			listEntry.CreatedAt = stats.CreatedAt
		}
		_ = s.Close()

		stores = append(stores, listEntry)
	}

	if outputJSON {
		return outputAsJSON(cmd, StoreListResult{Stores: stores, Total: len(stores)})
	}

	out := cmd.OutOrStdout()
	if len(stores) == 0 {
		printWarning(out, "No stores found.")
		printMuted(out, "Create one with: spanstore store create <store-id>")
		return nil
	}

	printInfo(out, "Local Stores (%d):", len(stores))
	rows := make([][]string, 0, len(stores))
	for _, s := range stores {
		desc := s.Description
		if s.Error != "" {
			desc = "unreadable: " + s.Error
		}
		rows = append(rows, []string{s.ID, truncate(desc, 35), strconv.Itoa(s.RecordCount), formatRelativeTime(s.CreatedAt)})
	}
	fmt.Fprintln(out, renderTable([]string{"STORE ID", "DESCRIPTION", "RECORDS", "CREATED"}, rows))
	return nil
}

// StoreCreateResult for JSON output.
type StoreCreateResult struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location"`
}

func runStoreCreate(cmd *cobra.Command, args []string) error {
	storeID := args[0]

	if err := store.ValidateStoreIDForCreation(storeID); err != nil {
		return errors.New(renderErrorPanel(
			fmt.Sprintf("Invalid store ID %q", storeID),
			err.Error(),
			"Use lowercase alphanumeric with hyphens, 1-4 segments separated by '/' (my-project, team/bench)",
		))
	}

	dbPath := store.StoreDBPath(storeID)
	storeDir := filepath.Dir(dbPath)
	if _, err := os.Stat(dbPath); err == nil {
		return fmt.Errorf("store %q already exists at %s", storeID, storeDir)
	}

	s, err := spanstore.Open(spanstore.Config{Path: dbPath, DisableFileWatch: true})
	if err != nil {
		_ = os.RemoveAll(storeDir)
		return fmt.Errorf("initialize store: %w", err)
	}

	if storeDescription != "" {
		if err := s.SetMetadata(cmd.Context(), descriptionKey, storeDescription); err != nil {
			_ = s.Close()
			_ = os.RemoveAll(storeDir)
			return fmt.Errorf("set description: %w", err)
		}
	}

	if err := s.Close(); err != nil {
		_ = os.RemoveAll(storeDir)
		return fmt.Errorf("close store: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, StoreCreateResult{
			ID:          storeID,
			Description: storeDescription,
			Location:    storeDir,
		})
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Store created: %s", storeID)
	if storeDescription != "" {
		printField(out, "Description", storeDescription)
	}
	printField(out, "Location", storeDir)
	return nil
}

// StoreDeleteResult for JSON output.
type StoreDeleteResult struct {
	ID          string `json:"id"`
	RecordCount int    `json:"records_deleted"`
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	storeID := args[0]

	if err := store.ValidateStoreID(storeID); err != nil {
		return fmt.Errorf("invalid store ID %q: %w", storeID, err)
	}
	if !storeDeleteConfirm {
		return fmt.Errorf("--confirm flag is required for delete\n\nUsage: spanstore store delete <store-id> --confirm [--force]")
	}
	if storeID == store.DefaultStoreID {
		return fmt.Errorf("cannot delete protected store 'default'\n\nUse 'spanstore delete-all --confirm' to empty it")
	}

	dbPath := store.StoreDBPath(storeID)
	storeDir := filepath.Dir(dbPath)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("store %q not found", storeID)
	}

	var recordCount int
	if s, err := spanstore.Open(spanstore.Config{Path: dbPath, DisableFileWatch: true}); err == nil {
		recordCount, _ = s.Count(cmd.Context())
		_ = s.Close()
	}

	out := cmd.OutOrStdout()
	if !storeDeleteForce {
		fmt.Fprintln(out, renderConfirmation(
			fmt.Sprintf("This will permanently delete store '%s' and all %d records.", storeID, recordCount),
			fmt.Sprintf("Type '%s' to confirm: ", storeID),
		))

		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(response) != storeID {
			printMuted(out, "Aborted.")
			return nil
		}
	}

	if err := os.RemoveAll(storeDir); err != nil {
		return fmt.Errorf("delete store: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, StoreDeleteResult{ID: storeID, RecordCount: recordCount})
	}

	printSuccess(out, "Store deleted: %s", storeID)
	if recordCount > 0 {
		fmt.Fprintf(out, "  Deleted %d records\n", recordCount)
	}
	return nil
}

// StoreInfoResult for JSON output.
type StoreInfoResult struct {
	ID            string    `json:"id"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	SchemaVersion string    `json:"schema_version"`
	RecordCount   int       `json:"record_count"`
	WithAccount   int       `json:"with_account"`
	Earliest      time.Time `json:"earliest,omitempty"`
	Latest        time.Time `json:"latest,omitempty"`
	Resolved      bool      `json:"resolved,omitempty"`
}

func runStoreInfo(cmd *cobra.Command, args []string) error {
	var storeID string
	var resolved bool
	if len(args) > 0 {
		storeID = args[0]
	} else {
		var err error
		storeID, err = store.ResolveStore(cfgStore)
		if err != nil {
			return fmt.Errorf("resolve store: %w", err)
		}
		resolved = true
	}

	s, dbPath, err := openStoreByID(storeID)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	desc, _ := s.GetMetadata(ctx, descriptionKey)

	info := StoreInfoResult{
		ID:            storeID,
		Description:   desc,
		Location:      filepath.Dir(dbPath),
		CreatedAt:     stats.CreatedAt,
		SchemaVersion: stats.SchemaVersion,
		RecordCount:   stats.RecordCount,
		Resolved:      resolved,
	}
	if err := fillSpanStats(ctx, s, &info); err != nil {
		return err
	}

	if outputJSON {
		return outputAsJSON(cmd, info)
	}

	out := cmd.OutOrStdout()
	if resolved {
		printInfo(out, "Store: %s (resolved from environment)", storeID)
	} else {
		printInfo(out, "Store: %s", storeID)
	}
	if desc != "" {
		fmt.Fprintln(out, renderMarkdown(desc))
	}
	printField(out, "Location", info.Location)
	if !info.CreatedAt.IsZero() {
		printField(out, "Created", info.CreatedAt.Local().Format("2006-01-02 15:04:05 MST"))
	}
	printField(out, "Schema", info.SchemaVersion)

	var b strings.Builder
	fmt.Fprintf(&b, "Records:      %d\n", info.RecordCount)
	fmt.Fprintf(&b, "With account: %d", info.WithAccount)
	if !info.Earliest.IsZero() {
		fmt.Fprintf(&b, "\nEarliest:     %s", info.Earliest.Local().Format(timeLayout))
		fmt.Fprintf(&b, "\nLatest:       %s", info.Latest.Local().Format(timeLayout))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderPanel("Statistics", b.String()))
	return nil
}

// fillSpanStats counts account-tagged records and finds the first and
// last record by insertion order.
func fillSpanStats(ctx context.Context, s *spanstore.Store, info *StoreInfoResult) error {
	res, err := s.Where(spanstore.Query{Filters: spanstore.Filters{spanstore.FieldAccountID: spanstore.LoadAccountID}})
	if err != nil {
		return err
	}
	if info.WithAccount, err = res.Count(ctx); err != nil {
		return err
	}

	first, ok, err := s.Objects().First(ctx)
	if err != nil || !ok {
		return err
	}
	info.Earliest = first.StartedAt
	for rec, err := range s.Objects().Records(ctx) {
		if err != nil {
			return err
		}
		info.Latest = rec.StartedAt
	}
	return nil
}

// formatRelativeTime formats a time as a relative string (e.g., "2h ago")
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
