package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/versionsql/internal/query"
	"github.com/kalambet/versionsql/internal/web"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	schema, err := web.LoadSchema()
	if err != nil {
		t.Fatal(err)
	}
	return MCPDeps{
		Engine:  seededEngine(t, nil),
		Schema:  schema,
		Version: "test",
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(newTestMCPDeps(t))
	if s == nil {
		t.Fatal("expected server")
	}
}

func TestMCPTool_Query_ReturnsRows(t *testing.T) {
	handler := mcpQuery(newTestMCPDeps(t))

	result, err := handler(context.Background(), makeCallToolRequest("query", map[string]interface{}{
		"sql": "SELECT id, name FROM versions",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &rows); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "1.20.1" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestMCPTool_Query_MissingSQL(t *testing.T) {
	handler := mcpQuery(newTestMCPDeps(t))

	result, err := handler(context.Background(), makeCallToolRequest("query", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_Query_UserError(t *testing.T) {
	handler := mcpQuery(newTestMCPDeps(t))

	result, err := handler(context.Background(), makeCallToolRequest("query", map[string]interface{}{
		"sql": "SELECT * FROM nope",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if text := toolText(t, result); !strings.Contains(text, "nope") || strings.HasPrefix(text, "query failed") {
		t.Fatalf("unexpected message: %s", text)
	}
}

func TestMCPTool_Query_InternalError(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Engine = failingQuerier{err: &query.Error{Kind: query.KindInternal, Err: errors.New("upstream unavailable")}}

	result, err := mcpQuery(deps)(context.Background(), makeCallToolRequest("query", map[string]interface{}{
		"sql": "SELECT 1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || toolText(t, result) != "query failed: upstream unavailable" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestMCPResource_Schema(t *testing.T) {
	handler := mcpResourceSchema(newTestMCPDeps(t))

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: SchemaURI},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != SchemaURI || tc.MIMEType != "application/json" {
		t.Fatalf("unexpected content: %+v", tc)
	}

	var s web.Schema
	if err := json.Unmarshal([]byte(tc.Text), &s); err != nil {
		t.Fatalf("decoding schema: %v", err)
	}
	if len(s.Tables) != 2 || s.Tables[0].Name != "versions" {
		t.Fatalf("unexpected schema: %+v", s)
	}
}
