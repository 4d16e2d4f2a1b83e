package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/versionsql/internal/query"
	"github.com/kalambet/versionsql/internal/web"
)

// SchemaURI names the schema reference resource.
const SchemaURI = "schema://tables"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine  Querier
	Schema  web.Schema
	Version string
}

// NewMCPServer creates an MCP server exposing the query tool and the schema
// reference.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"versionsql",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("versionsql: read-only SQL over the CurseForge game version catalog. Read "+SchemaURI+" for the tables."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription("Run a read-only SQLite query against the versions and versionTypes tables. Returns a JSON array of row objects."),
			mcp.WithString("sql", mcp.Description("SQL text, sent to the database as-is"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpQuery(deps),
	)

	s.AddResource(
		mcp.NewResource(
			SchemaURI,
			"Table reference",
			mcp.WithResourceDescription("Columns of the queryable tables as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchema(deps),
	)

	return s
}

func mcpQuery(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcpError("sql is required"), nil
		}

		rows, err := deps.Engine.Execute(ctx, sql)
		if err != nil {
			var qe *query.Error
			if errors.As(err, &qe) && qe.Kind == query.KindUser {
				return mcpError(err.Error()), nil
			}
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal rows: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSchema(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
