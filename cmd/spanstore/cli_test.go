package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// 2024-01-01T00:00:00Z
const testBase = "1704067200"

// testEnv points the CLI at a temporary store root and database, pins
// non-TTY output and restores every flag to its default afterwards.
// It returns the database path.
func testEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	t.Setenv("SPANSTORE_HOME", filepath.Join(tmpDir, "stores"))
	t.Setenv("SPANSTORE_DB_PATH", dbPath)
	t.Setenv("SPANSTORE_STORE", "")
	t.Setenv("SPANSTORE_DEBUG", "")
	t.Setenv("SPANSTORE_RESET_INCOMPATIBLE", "")

	resetFlags(rootCmd)
	restoreTTY := setMockTTY(false)
	t.Cleanup(func() {
		restoreTTY()
		resetFlags(rootCmd)
	})
	return dbPath
}

// resetFlags returns every flag in the command tree to its default value
// and clears its Changed mark, since cobra keeps both between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command and returns what it wrote to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("spanstore %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// loadFive loads records at base+0s, 2000s, ... 8000s, each lasting 1500s,
// with account 2 on the even ones.
func loadFive(t *testing.T) {
	t.Helper()
	mustRunCLI(t, "load", "-n", "5", "--base", testBase, "--duration", "1500s", "--json")
}

func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
}

func TestCLI_Help_ListsAllCommands(t *testing.T) {
	testEnv(t)

	output := mustRunCLI(t, "--help")
	for _, cmd := range []string{"load", "query", "sweep", "delete-all", "watch", "stats", "store", "version", "mcp"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("--help output should contain %q command", cmd)
		}
	}
}

func TestCLI_Help_Environment(t *testing.T) {
	testEnv(t)
	initHelp(rootCmd)

	output := mustRunCLI(t, "--help")
	if !strings.Contains(output, "Environment:") {
		t.Fatalf("root help should list environment variables:\n%s", output)
	}
	for _, v := range envVars {
		if !strings.Contains(output, v[0]) {
			t.Errorf("root help missing %s", v[0])
		}
	}

	sub := mustRunCLI(t, "load", "--help")
	if strings.Contains(sub, "Environment:") {
		t.Error("subcommand help should not repeat the environment section")
	}
}

func TestCLI_Load_JSON(t *testing.T) {
	testEnv(t)

	out := mustRunCLI(t, "load", "-n", "5", "--base", testBase, "--json")

	var result struct {
		Inserted     int `json:"inserted"`
		Transactions int `json:"transactions"`
	}
	decodeJSON(t, out, &result)
	if result.Inserted != 5 || result.Transactions != 5 {
		t.Errorf("got %+v, want 5 records in 5 transactions", result)
	}
}

func TestCLI_Load_Batch(t *testing.T) {
	testEnv(t)

	out := mustRunCLI(t, "load", "-n", "4", "--batch", "--json")

	var result struct {
		Inserted     int `json:"inserted"`
		Transactions int `json:"transactions"`
	}
	decodeJSON(t, out, &result)
	if result.Inserted != 4 || result.Transactions != 1 {
		t.Errorf("got %+v, want 4 records in 1 transaction", result)
	}
}

func TestCLI_Load_Text(t *testing.T) {
	testEnv(t)

	out := mustRunCLI(t, "load", "-n", "3")
	if !strings.Contains(out, "Load Summary") || !strings.Contains(out, "Inserted:     3") {
		t.Errorf("unexpected load output:\n%s", out)
	}
}

func TestCLI_Load_InvalidCount(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "load", "-n", "0")
	if err == nil || !strings.Contains(err.Error(), "--count") {
		t.Fatalf("expected --count error, got %v", err)
	}
}

func TestCLI_Query_Modes(t *testing.T) {
	testEnv(t)
	loadFive(t)

	from := "2024-01-01T00:50:00Z" // base + 3000s
	to := "2024-01-01T02:30:00Z"   // base + 9000s

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"all", []string{"query", "all"}, 5},
		{"overlap", []string{"query", "overlap", "--from", from, "--to", to}, 4},
		{"overlap with account", []string{"query", "overlap", "--from", from, "--to", to, "--account", "2"}, 2},
		{"containment", []string{"query", "containment", "--from", from, "--to", to}, 2},
		{"containment with account", []string{"query", "containment", "--from", from, "--to", to, "--account", "2"}, 1},
		{"all with account", []string{"query", "all", "--account", "2"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustRunCLI(t, append(tt.args, "--json")...)
			var result QueryOutput
			decodeJSON(t, out, &result)
			if result.Count != tt.want {
				t.Errorf("Count = %d, want %d", result.Count, tt.want)
			}
			if len(result.Records) != tt.want {
				t.Errorf("listed %d records, want %d", len(result.Records), tt.want)
			}
		})
	}
}

func TestCLI_Query_LimitAndID(t *testing.T) {
	testEnv(t)
	loadFive(t)

	var all QueryOutput
	decodeJSON(t, mustRunCLI(t, "query", "all", "-k", "2", "--json"), &all)
	if all.Count != 5 || len(all.Records) != 2 {
		t.Fatalf("got count %d with %d records, want 5 with 2", all.Count, len(all.Records))
	}
	if all.Records[0].Title != "Record 0" {
		t.Errorf("first record = %q, want insertion order", all.Records[0].Title)
	}

	var byID QueryOutput
	decodeJSON(t, mustRunCLI(t, "query", "all", "--id", all.Records[1].ID, "--json"), &byID)
	if byID.Count != 1 || byID.Records[0].Title != "Record 1" {
		t.Errorf("ID filter returned %+v", byID)
	}
}

func TestCLI_Query_Text(t *testing.T) {
	testEnv(t)
	loadFive(t)

	out := mustRunCLI(t, "query", "all", "-k", "1")
	if !strings.Contains(out, "5 records match") {
		t.Errorf("missing count line:\n%s", out)
	}
	if !strings.Contains(out, "Record 0") || strings.Contains(out, "Record 1") {
		t.Errorf("expected only the first record listed:\n%s", out)
	}
	if !strings.Contains(out, "showing first 1") {
		t.Errorf("missing truncation hint:\n%s", out)
	}
}

func TestCLI_Query_Errors(t *testing.T) {
	testEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing bounds", []string{"query", "overlap", "--from", testBase}, "--from and --to"},
		{"unknown mode", []string{"query", "nearby"}, "unknown query mode"},
		{"bad time", []string{"query", "overlap", "--from", "yesterday", "--to", testBase}, "invalid time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCLI_Sweep(t *testing.T) {
	testEnv(t)
	loadFive(t)

	// Windows [base+2000i, base+2000i+1000] for i = 1..3 each overlap one record.
	out := mustRunCLI(t, "sweep", "--mode", "overlap", "-n", "3", "--step", "2000s", "--window", "1000s", "--base", testBase, "--json")

	var result struct {
		Queries int `json:"queries"`
		Hits    int `json:"hits"`
		Misses  int `json:"misses"`
		Matched int `json:"matched"`
		First   struct {
			Title string `json:"title"`
		} `json:"first"`
	}
	decodeJSON(t, out, &result)
	if result.Queries != 3 || result.Hits != 3 || result.Misses != 0 || result.Matched != 3 {
		t.Errorf("unexpected sweep result %+v", result)
	}
	if result.First.Title != "Record 1" {
		t.Errorf("first hit = %q, want Record 1", result.First.Title)
	}
}

func TestCLI_Sweep_ContainmentMisses(t *testing.T) {
	testEnv(t)
	loadFive(t)

	// 1500s spans never fit in a 1000s window.
	out := mustRunCLI(t, "sweep", "-n", "3", "--step", "2000s", "--base", testBase, "--json")

	var result struct {
		Hits   int `json:"hits"`
		Misses int `json:"misses"`
	}
	decodeJSON(t, out, &result)
	if result.Hits != 0 || result.Misses != 3 {
		t.Errorf("unexpected sweep result %+v", result)
	}
}

func TestCLI_Sweep_InvalidMode(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "sweep", "--mode", "all")
	if err == nil || !strings.Contains(err.Error(), "invalid --mode") {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestCLI_DeleteAll_RequiresConfirm(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "delete-all")
	if err == nil || !strings.Contains(err.Error(), "--confirm") {
		t.Fatalf("expected --confirm error, got %v", err)
	}
}

func TestCLI_DeleteAll_Force(t *testing.T) {
	testEnv(t)
	loadFive(t)

	var result DeleteAllResult
	decodeJSON(t, mustRunCLI(t, "delete-all", "--confirm", "--force", "--json"), &result)
	if result.Deleted != 5 {
		t.Errorf("Deleted = %d, want 5", result.Deleted)
	}

	var after QueryOutput
	decodeJSON(t, mustRunCLI(t, "query", "all", "--json"), &after)
	if after.Count != 0 {
		t.Errorf("Count after delete-all = %d, want 0", after.Count)
	}

	decodeJSON(t, mustRunCLI(t, "delete-all", "--confirm", "--force", "--json"), &result)
	if result.Deleted != 0 {
		t.Errorf("second delete-all Deleted = %d, want 0", result.Deleted)
	}
}

func TestCLI_Watch_InitialEvent(t *testing.T) {
	testEnv(t)
	loadFive(t)

	out := mustRunCLI(t, "watch", "--account", "2", "--limit", "1", "--json")

	var change struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	}
	decodeJSON(t, strings.TrimSpace(out), &change)
	if change.Kind != "initial" || change.Count != 3 {
		t.Errorf("got %+v, want initial event with 3 records", change)
	}
}

func TestCLI_Watch_Text(t *testing.T) {
	testEnv(t)
	loadFive(t)

	out := mustRunCLI(t, "watch", "--limit", "1")
	if !strings.Contains(out, "Watching") || !strings.Contains(out, "initial: 5 records") {
		t.Errorf("unexpected watch output:\n%s", out)
	}
}

func TestCLI_Stats_JSON(t *testing.T) {
	dbPath := testEnv(t)
	loadFive(t)

	var result struct {
		Path          string `json:"path"`
		RecordCount   int    `json:"record_count"`
		SchemaVersion string `json:"schema_version"`
		Health        *struct {
			Healthy bool `json:"healthy"`
		} `json:"health"`
	}
	decodeJSON(t, mustRunCLI(t, "stats", "--health", "--json"), &result)
	if result.Path != dbPath {
		t.Errorf("Path = %q, want %q", result.Path, dbPath)
	}
	if result.RecordCount != 5 {
		t.Errorf("RecordCount = %d, want 5", result.RecordCount)
	}
	if result.SchemaVersion != "2" {
		t.Errorf("SchemaVersion = %q, want 2", result.SchemaVersion)
	}
	if result.Health == nil || !result.Health.Healthy {
		t.Errorf("expected healthy status, got %+v", result.Health)
	}
}

func TestCLI_Stats_Text(t *testing.T) {
	testEnv(t)

	out := mustRunCLI(t, "stats")
	if !strings.Contains(out, "Store Statistics") || !strings.Contains(out, "Records:        0") {
		t.Errorf("unexpected stats output:\n%s", out)
	}
}

func TestCLI_Config_FlagOverridesEnv(t *testing.T) {
	testEnv(t)
	flagPath := filepath.Join(t.TempDir(), "flag.db")

	var result struct {
		Path string `json:"path"`
	}
	decodeJSON(t, mustRunCLI(t, "stats", "--db-path", flagPath, "--json"), &result)
	if result.Path != flagPath {
		t.Errorf("Path = %q, want flag value %q", result.Path, flagPath)
	}
}

func TestCLI_Config_File(t *testing.T) {
	testEnv(t)
	t.Setenv("SPANSTORE_DB_PATH", "")

	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.db")
	cfgPath := filepath.Join(dir, "spanstore.yaml")
	if err := os.WriteFile(cfgPath, []byte("path: "+filePath+"\ndisable_file_watch: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var result struct {
		Path string `json:"path"`
	}
	decodeJSON(t, mustRunCLI(t, "stats", "--config", cfgPath, "--json"), &result)
	if result.Path != filePath {
		t.Errorf("Path = %q, want config file value %q", result.Path, filePath)
	}
}

func TestCLI_Config_UnknownKeyRejected(t *testing.T) {
	testEnv(t)

	cfgPath := filepath.Join(t.TempDir(), "spanstore.yaml")
	if err := os.WriteFile(cfgPath, []byte("remote_url: http://example\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "stats", "--config", cfgPath); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestCLI_InvalidStoreID(t *testing.T) {
	testEnv(t)
	t.Setenv("SPANSTORE_DB_PATH", "")

	_, err := runCLI(t, "stats", "--store", "Bad_Store")
	if err == nil {
		t.Fatal("expected error for invalid store ID")
	}
}

func TestParseTimeArg(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1704067200", 1704067200, false},
		{"2024-01-01T00:00:00Z", 1704067200, false},
		{"2024-01-01T01:00:00+01:00", 1704067200, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTimeArg(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimeArg(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.Unix() != tt.want {
			t.Errorf("parseTimeArg(%q) = %d, want %d", tt.in, got.Unix(), tt.want)
		}
	}
}

func TestFormatIndexes(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, "[]"},
		{[]int{0, 2}, "[0 2]"},
		{[]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, "[0 1 2 3 4 5 6 7 ... +2]"},
	}
	for _, tt := range tests {
		if got := formatIndexes(tt.in); got != tt.want {
			t.Errorf("formatIndexes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
