// Package mcp exposes the orchestrator to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kailas-cloud/omnidex/internal/domain"
)

// Chat abstracts the orchestration facade for the MCP layer.
type Chat interface {
	HandleTurn(ctx context.Context, q domain.Query) (domain.FusedResult, error)
	Search(ctx context.Context, q domain.Query) (domain.FusedResult, error)
}

// NewServer creates an MCP server with the ask and search tools registered.
func NewServer(chat Chat, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"omnidex",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("omnidex — hybrid retrieval over keyword, vector/graph and generative backends."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Run one conversational turn: retrieve across backends, fuse, and answer. Pass the returned conversation_id to keep context."),
			mcp.WithString("query", mcp.Description("The question, search text, or command"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue; omit to start a new one")),
		),
		askTool(chat),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Stateless retrieval across the keyword and graph backends. No conversation memory, no generated narrative."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		searchTool(chat),
	)

	return s
}

type resultItem struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Title   string   `json:"title,omitempty"`
	Snippet string   `json:"snippet,omitempty"`
	Source  string   `json:"source,omitempty"`
	Related []string `json:"related,omitempty"`
}

type askResponse struct {
	ConversationID string       `json:"conversation_id"`
	Narrative      string       `json:"narrative,omitempty"`
	Items          []resultItem `json:"items"`
	Partial        bool         `json:"partial,omitempty"`
}

type searchResponse struct {
	Items   []resultItem `json:"items"`
	Partial bool         `json:"partial,omitempty"`
}

func askTool(chat Chat) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		conversationID := req.GetString("conversation_id", "")
		if conversationID == "" {
			conversationID = uuid.NewString()
		}

		q, err := domain.NewQuery(conversationID, query, "", 0)
		if err != nil {
			return toolError(err.Error()), nil
		}

		res, err := chat.HandleTurn(ctx, q)
		if err != nil {
			return toolError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(askResponse{
			ConversationID: conversationID,
			Narrative:      res.Narrative,
			Items:          toItems(res.Items),
			Partial:        res.Partial,
		})
		if err != nil {
			return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return toolText(string(b)), nil
	}
}

func searchTool(chat Chat) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		limit := req.GetInt("limit", 0)

		// Поисковый вызов без памяти, идентификатор беседы одноразовый.
		q, err := domain.NewQuery(uuid.NewString(), query, "", limit)
		if err != nil {
			return toolError(err.Error()), nil
		}

		res, err := chat.Search(ctx, q)
		if err != nil {
			return toolError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(searchResponse{
			Items:   toItems(res.Items),
			Partial: res.Partial,
		})
		if err != nil {
			return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return toolText(string(b)), nil
	}
}

func toItems(items []domain.FusedItem) []resultItem {
	out := make([]resultItem, len(items))
	for i := range items {
		it := &items[i]
		out[i] = resultItem{
			ID:      it.ID(),
			Score:   it.Score(),
			Title:   it.Title(),
			Snippet: it.Snippet(),
			Source:  it.Source(),
			Related: it.Related(),
		}
	}
	return out
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
