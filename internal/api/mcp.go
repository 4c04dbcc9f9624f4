package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/assusa/viabot/internal/conversation"
	"github.com/assusa/viabot/internal/identifier"
)

// MCPDeps holds dependencies for the operator MCP server.
type MCPDeps struct {
	Store  *conversation.MemoryStore
	Finder conversation.TitleFinder
	Hasher *identifier.Hasher
}

// NewMCPServer creates an MCP server with the operator tools registered:
// masking helpers, conversation inspection, and direct title lookup for
// support diagnostics.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"viabot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("viabot — operator tools for the bank-bill assistant: mask identifiers, inspect live conversations, look up open titles."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("mask_text",
			mcp.WithDescription("Redact document numbers from free text before sharing it in a support channel."),
			mcp.WithString("text", mcp.Description("The text to redact"), mcp.Required()),
		),
		mcpMaskText(),
	)

	s.AddTool(
		mcp.NewTool("validate_identifier",
			mcp.WithDescription("Check a document number and return its masked form and lookup hash."),
			mcp.WithString("identifier", mcp.Description("Document number, digits or formatted"), mcp.Required()),
		),
		mcpValidateIdentifier(deps),
	)

	s.AddTool(
		mcp.NewTool("inspect_state",
			mcp.WithDescription("Show the live conversation state for a user identity."),
			mcp.WithString("identity", mcp.Description("WhatsApp identity (phone number)"), mcp.Required()),
		),
		mcpInspectState(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup_titles",
			mcp.WithDescription("Query both banks for open titles of a document number. The raw number is used for the query only; the response is privacy-safe."),
			mcp.WithString("identifier", mcp.Description("Document number, digits or formatted"), mcp.Required()),
		),
		mcpLookupTitles(deps),
	)

	return s
}

func mcpMaskText() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpText(identifier.MaskText(text)), nil
	}
}

func mcpValidateIdentifier(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("identifier")
		if err != nil {
			return mcpError("identifier is required"), nil
		}
		normalized := identifier.Normalize(raw)
		if !identifier.Validate(normalized) {
			return mcpText(`{"valid": false}`), nil
		}
		out, _ := json.Marshal(map[string]any{
			"valid":  true,
			"masked": identifier.MaskDisplay(normalized),
			"hash":   deps.Hasher.Hash(normalized),
		})
		return mcpText(string(out)), nil
	}
}

func mcpInspectState(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity, err := req.RequireString("identity")
		if err != nil {
			return mcpError("identity is required"), nil
		}
		st := deps.Store.Snapshot(identity)
		if st == nil {
			return mcpText(`{"conversation": null}`), nil
		}
		out, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding state: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpLookupTitles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("identifier")
		if err != nil {
			return mcpError("identifier is required"), nil
		}
		normalized := identifier.Normalize(raw)
		if !identifier.Validate(normalized) {
			return mcpError("invalid identifier"), nil
		}

		result := deps.Finder.FindOpenTitles(ctx, normalized, deps.Hasher.Hash(normalized))
		if result.AllFailed() {
			return mcpError("all bank providers failed"), nil
		}

		type titleView struct {
			Bank    string  `json:"bank"`
			Amount  float64 `json:"amount"`
			DueDate string  `json:"dueDate"`
			Status  string  `json:"status"`
		}
		views := make([]titleView, 0, len(result.Titles))
		for _, t := range result.Titles {
			views = append(views, titleView{
				Bank:    string(t.Bank),
				Amount:  t.Amount,
				DueDate: t.DueDate.Format("2006-01-02"),
				Status:  t.Status,
			})
		}
		out, _ := json.Marshal(map[string]any{
			"masked": identifier.MaskDisplay(normalized),
			"titles": views,
		})
		return mcpText(string(out)), nil
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
