package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

const operationsURI = "propmatch://operations"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store        *storage.Store
	Matcher      MatchRunner
	MatchTimeout time.Duration
}

// NewMCPServer creates an MCP server with the propmatch tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"propmatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("propmatch: ranks available property listings for real-estate clients and tracks what was offered."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("match_client",
			mcp.WithDescription("Rank available listings for a client, persist the matches to the ledger and return them with the client's intent score and recommended next actions."),
			mcp.WithString("client_id", mcp.Description("Client identifier"), mcp.Required()),
			mcp.WithBoolean("refresh_score", mcp.Description("Recompute the intent score instead of reusing the stored one")),
			mcp.WithNumber("min_score", mcp.Description("Minimum match score 0-100 (default 70)")),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of matches 1-100 (default 10)")),
		),
		mcpMatchClient(deps),
	)

	s.AddTool(
		mcp.NewTool("record_interaction",
			mcp.WithDescription("Record a client activity event such as a listing view, inquiry or call."),
			mcp.WithString("client_id", mcp.Description("Client identifier"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("Event kind, e.g. view, inquiry, call"), mcp.Required()),
		),
		mcpRecordInteraction(deps),
	)

	s.AddTool(
		mcp.NewTool("record_response",
			mcp.WithDescription("Mark a matched listing as sent to the client and record the client's response."),
			mcp.WithString("client_id", mcp.Description("Client identifier"), mcp.Required()),
			mcp.WithString("property_id", mcp.Description("Listing identifier"), mcp.Required()),
			mcp.WithString("response",
				mcp.Description("Client response; omit when the listing was only sent"),
				mcp.Enum("interested", "not_interested", "no_response"),
			),
		),
		mcpRecordResponse(deps),
	)

	s.AddResource(
		mcp.NewResource(
			operationsURI,
			"Operation Log",
			mcp.WithResourceDescription("Last 20 match invocation outcomes"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOperations(deps),
	)

	return s
}

func mcpMatchClient(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID, err := req.RequireString("client_id")
		if err != nil {
			return mcpError("client_id is required"), nil
		}

		preq := pipeline.Request{
			ClientID:     clientID,
			RefreshScore: req.GetBool("refresh_score", false),
		}
		args := req.GetArguments()
		if _, ok := args["min_score"]; ok {
			v := req.GetInt("min_score", 0)
			preq.MinScore = &v
		}
		if _, ok := args["max_results"]; ok {
			v := req.GetInt("max_results", 0)
			preq.MaxResults = &v
		}

		resp, err := runMatch(ctx, deps.Matcher, deps.MatchTimeout, preq)
		if err != nil {
			return mcpError(fmt.Sprintf("%s: %v", pipeline.KindOf(err), err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordInteraction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID, err := req.RequireString("client_id")
		if err != nil {
			return mcpError("client_id is required"), nil
		}
		kind, err := req.RequireString("kind")
		if err != nil || strings.TrimSpace(kind) == "" {
			return mcpError("kind is required"), nil
		}

		if _, err := deps.Store.GetClient(ctx, clientID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("client %s not found", clientID)), nil
			}
			return mcpError(fmt.Sprintf("failed to get client: %v", err)), nil
		}

		in := storage.Interaction{
			ID:        uuid.New().String(),
			ClientID:  clientID,
			Kind:      strings.TrimSpace(kind),
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveInteraction(ctx, in); err != nil {
			return mcpError(fmt.Sprintf("failed to save interaction: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s for client %s", in.Kind, clientID)), nil
	}
}

func mcpRecordResponse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID, err := req.RequireString("client_id")
		if err != nil {
			return mcpError("client_id is required"), nil
		}
		propertyID, err := req.RequireString("property_id")
		if err != nil {
			return mcpError("property_id is required"), nil
		}
		response := req.GetString("response", "")
		if response != "" && !validResponse(response) {
			return mcpError(fmt.Sprintf("invalid response %q", response)), nil
		}

		err = deps.Store.MarkMatchDelivered(ctx, clientID, propertyID, response)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no match record for client %s and property %s", clientID, propertyID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record response: %v", err)), nil
		}

		if response == "" {
			return mcpText(fmt.Sprintf("Marked %s as sent to %s", propertyID, clientID)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s from %s on %s", response, clientID, propertyID)), nil
	}
}

func mcpResourceOperations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		logs, err := deps.Store.ListOperationLogs(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to list operations: %w", err)
		}

		b, err := json.Marshal(logs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal operations: %w", err)
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
