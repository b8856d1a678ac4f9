package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	spanmcp "github.com/hyperengineering/spanstore/mcp"
)

type fakeRegistry struct {
	tools map[string]spanmcp.Tool
}

func (r *fakeRegistry) Register(tool spanmcp.Tool) {
	if r.tools == nil {
		r.tools = make(map[string]spanmcp.Tool)
	}
	r.tools[tool.Name] = tool
}

func TestRegisterTools_MatchesServer(t *testing.T) {
	server, client := newTestServer(t)

	reg := &fakeRegistry{}
	spanmcp.RegisterTools(reg, client)

	for _, info := range server.ListTools() {
		tool, ok := reg.tools[info.Name]
		if !ok {
			t.Errorf("tool %q not registered", info.Name)
			continue
		}
		if tool.Handler == nil {
			t.Errorf("tool %q has no handler", info.Name)
		}
		if tool.Parameters == nil {
			t.Errorf("tool %q has no parameter schema", info.Name)
		}
	}
	if !reg.tools["spanstore_query"].Parameters["mode"].Required {
		t.Error("spanstore_query mode should be required")
	}
}

func TestRegisterTools_Handlers(t *testing.T) {
	_, client := newTestServer(t)
	reg := &fakeRegistry{}
	spanmcp.RegisterTools(reg, client)
	ctx := context.Background()

	out, err := reg.tools["spanstore_load"].Handler(ctx, json.RawMessage(`{"count": 4, "account_every": 0}`))
	if err != nil {
		t.Fatalf("load handler failed: %v", err)
	}
	if !strings.HasPrefix(out.(string), "Loaded 4 records") {
		t.Errorf("got %v", out)
	}

	out, err = reg.tools["spanstore_query"].Handler(ctx, json.RawMessage(`{"mode": "all", "account_id": 2}`))
	if err != nil {
		t.Fatalf("query handler failed: %v", err)
	}
	if !strings.HasPrefix(out.(string), "0 records match") {
		t.Errorf("got %v", out)
	}

	out, err = reg.tools["spanstore_stats"].Handler(ctx, nil)
	if err != nil {
		t.Fatalf("stats handler failed: %v", err)
	}
	if !strings.Contains(out.(string), "Records: 4") {
		t.Errorf("got %v", out)
	}
}

func TestRegisterTools_Errors(t *testing.T) {
	_, client := newTestServer(t)
	reg := &fakeRegistry{}
	spanmcp.RegisterTools(reg, client)
	ctx := context.Background()

	if _, err := reg.tools["spanstore_query"].Handler(ctx, json.RawMessage(`{`)); err == nil || !strings.Contains(err.Error(), "parse params") {
		t.Errorf("expected parse error, got %v", err)
	}
	if _, err := reg.tools["spanstore_delete_all"].Handler(ctx, json.RawMessage(`{}`)); err == nil || !strings.Contains(err.Error(), "confirm") {
		t.Errorf("expected confirm error, got %v", err)
	}
}
