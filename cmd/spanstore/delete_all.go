package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var deleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every record",
	Long: `Delete every record in one transaction.

Requires --confirm. Without --force the store ID must be typed to proceed.

Example:
  spanstore delete-all --confirm
  spanstore delete-all --confirm --force --json`,
	Args: cobra.NoArgs,
	RunE: runDeleteAll,
}

var (
	deleteAllConfirm bool
	deleteAllForce   bool
)

func init() {
	deleteAllCmd.Flags().BoolVar(&deleteAllConfirm, "confirm", false, "Confirm deletion (required)")
	deleteAllCmd.Flags().BoolVar(&deleteAllForce, "force", false, "Skip interactive prompt")
}

// DeleteAllResult for JSON output.
type DeleteAllResult struct {
	Store   string `json:"store"`
	Deleted int    `json:"deleted"`
}

func runDeleteAll(cmd *cobra.Command, args []string) error {
	if !deleteAllConfirm {
		return fmt.Errorf("--confirm flag is required for delete-all\n\nUsage: spanstore delete-all --confirm [--force]")
	}

	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, err := spanstore.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !deleteAllForce {
		count, err := client.Store().Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderConfirmation(
			fmt.Sprintf("This will permanently delete all %d records in store '%s'.", count, cfg.Store),
			fmt.Sprintf("Type '%s' to confirm: ", cfg.Store),
		))

		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(response) != cfg.Store {
			printMuted(out, "Aborted.")
			return nil
		}
	}

	n, err := client.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("delete all: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, DeleteAllResult{Store: cfg.Store, Deleted: n})
	}
	printSuccess(out, "Deleted %d records", n)
	return nil
}
