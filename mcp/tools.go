// Package mcp exposes a spanstore Client to MCP (Model Context Protocol)
// agents.
//
// NewServer builds a complete stdio MCP server on mcp-go. RegisterTools
// registers the same tools with a caller-supplied Registry for agent
// frameworks that already host their own MCP plumbing.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/spanstore"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Default     any               `json:"default,omitempty"`
	Items       map[string]string `json:"items,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations. It returns the
// tool's text output.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

var queryParams = Schema{
	"mode":       {Type: "string", Description: "Query mode", Enum: []string{"overlap", "containment", "all"}},
	"from":       {Type: "string", Description: "Lower bound, RFC 3339 or Unix seconds"},
	"to":         {Type: "string", Description: "Upper bound, RFC 3339 or Unix seconds"},
	"account_id": {Type: "integer", Description: "Only records with this account_id"},
	"id":         {Type: "string", Description: "Only the record with this ID"},
}

func withParams(base Schema, extra Schema) Schema {
	out := make(Schema, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// RegisterTools registers spanstore tools with an MCP registry. The tools
// and their behavior match NewServer.
func RegisterTools(registry Registry, client *spanstore.Client) {
	s := NewServer(client)

	schemas := map[string]Schema{
		"spanstore_load": {
			"count":            {Type: "integer", Description: "Number of records", Default: spanstore.DefaultLoadCount},
			"spacing_seconds":  {Type: "number", Description: "Seconds between start times", Default: 2000},
			"duration_seconds": {Type: "number", Description: "Length of each span in seconds", Default: 0},
			"account_every":    {Type: "integer", Description: "Assign account_id 2 to every n-th record", Default: spanstore.DefaultAccountEvery},
			"base":             {Type: "string", Description: "Start of the first record"},
			"batch":            {Type: "boolean", Description: "Insert everything in a single transaction"},
		},
		"spanstore_query": withParams(queryParams, Schema{
			"mode":  {Type: "string", Description: "Query mode", Required: true, Enum: []string{"overlap", "containment", "all"}},
			"limit": {Type: "integer", Description: "Maximum records to list", Default: 10},
		}),
		"spanstore_sweep": withParams(queryParams, Schema{
			"count":          {Type: "integer", Description: "Number of queries", Default: spanstore.DefaultSweepCount},
			"step_seconds":   {Type: "number", Description: "Offset between windows", Default: 1000},
			"window_seconds": {Type: "number", Description: "Width of each window", Default: 1000},
			"base":           {Type: "string", Description: "Base time"},
		}),
		"spanstore_delete_all": {
			"confirm": {Type: "boolean", Description: "Must be true", Required: true},
		},
		"spanstore_observe": withParams(queryParams, Schema{
			"key_paths": {Type: "array", Description: "Only report modifications touching these fields", Items: map[string]string{"type": "string"}},
		}),
		"spanstore_changes": {
			"ref": {Type: "string", Description: "Observer reference"},
		},
		"spanstore_unobserve": {
			"ref": {Type: "string", Description: "Observer reference", Required: true},
		},
		"spanstore_stats":      {},
		"spanstore_store_list": {"prefix": {Type: "string", Description: "Store ID prefix"}},
	}

	for _, info := range s.ListTools() {
		registry.Register(Tool{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  schemas[info.Name],
			Handler:     makeHandler(s, info.Name),
		})
	}
}

func makeHandler(s *Server, name string) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (any, error) {
		args := map[string]any{}
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &args); err != nil {
				return nil, fmt.Errorf("parse params: %w", err)
			}
		}

		result, err := s.CallTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, errors.New(result.Content)
		}
		return result.Content, nil
	}
}
