// Package mcpserver exposes the Othala vault tools over the Model
// Context Protocol via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/query"
	"github.com/starford/othala/internal/vaultservice"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp *server.MCPServer
	svc *vaultservice.Service
}

// New creates an MCP server with all Othala tools registered.
func New(svc *vaultservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Hybrid search over the vault: keyword relevance plus structured filters. "+
			"Empty query with empty filter lists all notes. Filter is a JSON object; see the "+
			"othala://search-filters resource for the recognized fields."),
		mcp.WithString("query", mcp.Description("Keywords; quoted phrases rank higher")),
		mcp.WithString("filter", mcp.Description("JSON filter object (tags, dates, folders, word/link counts, has_tasks)")),
		mcp.WithString("sort", mcp.Description("relevance (default), modified, created, title, or size")),
		mcp.WithNumber("limit", mcp.Description("Page size, default 20")),
		mcp.WithNumber("offset", mcp.Description("Results to skip, default 0")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("resolve_note",
		mcp.WithDescription("Resolve a note title to its document. Duplicate titles return the "+
			"folder-qualified candidates; retry with one of them (e.g. \"projects/Draft\"). "+
			"Unknown titles return fuzzy suggestions."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Bare title or folder-qualified \"folder/title\"")),
	), s.resolveNote)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Get the indexed metadata of a note (record, tags, link neighborhood) without content."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path (e.g. folder/note.md)")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full Markdown content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the whole index from disk. Searches keep answering from the "+
			"previous index until the rebuilt one is swapped in."),
	), s.rebuildIndex)

	s.mcp.AddResource(
		mcp.NewResource("othala://search-filters", "Search Filter Reference",
			mcp.WithResourceDescription("Recognized fields of the search_notes filter object."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFilterResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Listen serves stdio until ctx is cancelled or stdin closes.
func (s *Server) Listen(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := req.GetString("query", "")
	sortKey := req.GetString("sort", "")
	limit := req.GetInt("limit", 20)
	offset := req.GetInt("offset", 0)

	var spec query.FilterSpec
	if raw := req.GetString("filter", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("filter is not valid JSON: %v", err)), nil
		}
	}

	res, err := s.svc.Search(ctx, keywords, spec, sortKey, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) resolveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ResolveTitle(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetDocumentMetadata(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.ReadDocument(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) rebuildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.RebuildIndex(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.DocumentCount(ctx)
	if err != nil {
		return mcp.NewToolResultText("rebuild complete"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("rebuild complete: %d documents", n)), nil
}

func (s *Server) readFilterResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://search-filters",
			MIMEType: "text/markdown",
			Text:     FilterReference,
		},
	}, nil
}
