package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/pipeline"
	"github.com/datasage-io/datasage/internal/session"
)

// MCPDeps holds dependencies for the MCP tool surface.
type MCPDeps struct {
	Store    *session.Store
	Pipeline *pipeline.Pipeline
}

// NewMCPServer creates an MCP server exposing the dataset query operations as
// tools, so agent clients can upload and interrogate tabular data.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"datasage",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("datasage serves session-scoped tabular datasets for SQL and natural-language querying."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_session",
			mcp.WithDescription("Create a new empty dataset session and return its id."),
		),
		mcpCreateSession(deps),
	)

	s.AddTool(
		mcp.NewTool("upload_dataset",
			mcp.WithDescription("Attach a CSV dataset to a session."),
			mcp.WithString("session_id", mcp.Description("Target session id"), mcp.Required()),
			mcp.WithString("csv", mcp.Description("CSV text, header row first"), mcp.Required()),
			mcp.WithString("filename", mcp.Description("Original filename for the metadata record")),
		),
		mcpUploadDataset(deps),
	)

	s.AddTool(
		mcp.NewTool("get_schema",
			mcp.WithDescription("Return the column names and types of a session's dataset."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGetSchema(deps),
	)

	s.AddTool(
		mcp.NewTool("run_sql",
			mcp.WithDescription("Execute a SQL query against a session's dataset (table name: user_data)."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("SQL query text"), mcp.Required()),
		),
		mcpRunSQL(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_data",
			mcp.WithDescription("Ask a natural-language question about a session's dataset; returns the generated SQL and its results."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
			mcp.WithBoolean("use_remote", mcp.Description("Attempt the remote model translation path (default false)")),
		),
		mcpAskData(deps),
	)

	return s
}

func mcpCreateSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := deps.Store.Create(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create session: %v", err)), nil
		}
		return mcpText(id), nil
	}
}

func mcpUploadDataset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		csvText, err := req.RequireString("csv")
		if err != nil {
			return mcpError("csv is required"), nil
		}
		filename := req.GetString("filename", "upload.csv")

		frame, err := dataset.ReadCSV(strings.NewReader(csvText))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to parse csv: %v", err)), nil
		}
		if err := deps.Store.AttachDataset(ctx, id, frame, filename); err != nil {
			return mcpError(fmt.Sprintf("failed to attach dataset: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Attached %d rows x %d columns to session %s",
			frame.RowCount(), frame.ColumnCount(), id)), nil
	}
}

func mcpGetSchema(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		schema, err := deps.Pipeline.Schema(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get schema: %v", err)), nil
		}

		type columnInfo struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		out := make([]columnInfo, len(schema))
		for i, c := range schema {
			out[i] = columnInfo{Name: c.Name, Type: c.Type.SQLType()}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal schema: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRunSQL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		queryText, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		result, err := deps.Pipeline.ExecuteSQL(ctx, id, queryText)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskData(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		useRemote := req.GetBool("use_remote", false)

		out, err := deps.Pipeline.RunNaturalLanguage(ctx, id, question, useRemote)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
