package main

import (
	"github.com/hyperengineering/spanstore"
	spanmcp "github.com/hyperengineering/spanstore/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

Agents can then load data, run range queries, delete records and
observe live queries through spanstore tools.

Example client configuration:

  {
    "mcpServers": {
      "spanstore": {
        "command": "spanstore",
        "args": ["mcp"],
        "env": {
          "SPANSTORE_STORE": "my-project"
        }
      }
    }
  }

Environment variables:
  SPANSTORE_DB_PATH   Path to the database file
  SPANSTORE_STORE     Store ID (default: "default")
  SPANSTORE_DEBUG     Log store operations to SPANSTORE_DEBUG_LOG or stderr`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}

	// The client lives as long as the server.
	client, err := spanstore.New(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return spanmcp.NewServer(client).Run()
}
