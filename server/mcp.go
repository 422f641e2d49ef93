package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatmd/kit"
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// NewMCP creates an MCP server with the chatmd tools registered.
func (s *Server) NewMCP(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "chatmd", Version: version}, nil)
	s.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers the chatmd tools on srv.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	modeProp := map[string]any{
		"type":        "string",
		"enum":        []string{"normal", "research", "skip"},
		"description": "Filename policy for single-message exports",
	}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "export_conversation",
		Description: "Export the current conversation, or one message of it, as Markdown and deliver it to the configured sinks.",
		InputSchema: inputSchema(map[string]any{
			"index":   map[string]any{"type": "integer", "description": "Zero-based message index; omit for the whole conversation"},
			"control": map[string]any{"type": "string", "description": "ID of an injected export control"},
			"mode":    modeProp,
		}, nil),
	}, s.wrap("export", s.exportEndpoint), kit.DecodeArgs[ExportRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "list_messages",
		Description: "List the messages located in the current document with their role and Markdown.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.wrap("messages", s.messagesEndpoint), func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "render_html",
		Description: "Convert an HTML fragment to Markdown with the chat renderer.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "HTML fragment"},
		}, []string{"html"}),
	}, s.wrap("render", func(ctx context.Context, req any) (any, error) {
		md, err := s.renderEndpoint(ctx, req)
		if err != nil {
			return nil, err
		}
		return md.(map[string]string)["markdown"], nil
	}), kit.DecodeArgs[RenderRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "load_html",
		Description: "Use a saved conversation page as the current document.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "Full page HTML"},
			"url":  map[string]any{"type": "string", "description": "Page URL, for logs"},
		}, []string{"html"}),
	}, s.wrap("load", s.loadEndpoint), kit.DecodeArgs[LoadRequest])
}
