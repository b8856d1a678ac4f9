package main

import (
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [overlap|containment|all]",
	Short: "Stream changes to a live query",
	Long: `Subscribe to a query and print every change until interrupted.

The first event is the current match count. Each later event reports
one committed transaction: the indexes deleted from the previous result
and those inserted or modified in the new one.

Example:
  spanstore watch
  spanstore watch overlap --from 1704067200 --to 1704076200 --account 2
  spanstore watch --key-path embedded.notes --json
  spanstore watch --limit 2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var (
	watchKeyPaths []string
	watchLimit    int
)

func init() {
	addFilterFlags(watchCmd)
	watchCmd.Flags().StringVar(&queryFrom, "from", "", "Lower bound")
	watchCmd.Flags().StringVar(&queryTo, "to", "", "Upper bound")
	watchCmd.Flags().StringSliceVar(&watchKeyPaths, "key-path", nil, "Only report modifications touching these fields")
	watchCmd.Flags().IntVar(&watchLimit, "limit", 0, "Exit after this many events (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	mode := "all"
	if len(args) > 0 {
		mode = args[0]
	}
	q, err := queryFromArgs(cmd, mode)
	if err != nil {
		return err
	}

	client, err := openClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	sub, err := client.Store().Subscribe(ctx, q, watchKeyPaths...)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer sub.Unsubscribe()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	if !outputJSON {
		printInfo(out, "Watching %s (Ctrl-C to stop)", q.String())
	}

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-sub.Changes():
			if !ok {
				return nil
			}
			seen++
			if outputJSON {
				if err := enc.Encode(changeOutput(change)); err != nil {
					return err
				}
			} else if change.Kind == spanstore.ChangeError {
				printError(out, "%s", formatChange(change))
			} else {
				fmt.Fprintln(out, formatChange(change))
			}

			if change.Kind == spanstore.ChangeError {
				return fmt.Errorf("watch ended: %w", change.Err)
			}
			if watchLimit > 0 && seen >= watchLimit {
				return nil
			}
		}
	}
}
