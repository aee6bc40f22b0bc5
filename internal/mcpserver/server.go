// Package mcpserver exposes the memory store to LLM clients as an MCP
// (Model Context Protocol) server over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/recordstore"
	"github.com/starford/lettamem/internal/report"
)

// Records is the store the tools operate on.
type Records interface {
	recordstore.Store
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with memory tools.
type Server struct {
	mcp     *server.MCPServer
	records Records
}

// New creates an MCP server with every tool registered.
func New(records Records, version string) *Server {
	s := &Server{records: records}

	s.mcp = server.NewMCPServer(
		"lettamem",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_memory",
		mcp.WithDescription("Store a new memory record. Read the record schema first via "+
			"get_record_schema or the "+RecordSchemaURI+" resource."),
		mcp.WithObject("content", mcp.Required(), mcp.Description("Memory content as a JSON object; a plain string is stored under \"text\"")),
		mcp.WithString("topic", mcp.Description("Short human-readable topic")),
		mcp.WithString("entry_type", mcp.Description("Record type, e.g. user_memory, conversation, code_context")),
		mcp.WithString("domain", mcp.Description("Optional domain such as work or health")),
		mcp.WithArray("tags", mcp.Description("Tags for exact-match filtering"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("metadata", mcp.Description("Additional JSON metadata")),
	), s.createMemory)

	s.mcp.AddTool(mcp.NewTool("get_memory",
		mcp.WithDescription("Fetch one memory record by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id returned by create_memory")),
	), s.getMemory)

	s.mcp.AddTool(mcp.NewTool("list_memories",
		mcp.WithDescription("List memory records, newest first. All filters are optional and combined with AND."),
		mcp.WithString("tag", mcp.Description("Exact tag")),
		mcp.WithString("topic", mcp.Description("Case-insensitive topic substring")),
		mcp.WithString("entry_type", mcp.Description("Exact record type")),
		mcp.WithObject("metadata", mcp.Description("Metadata key/value pairs that must all match")),
	), s.listMemories)

	s.mcp.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Full-text search over memory topics, content and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchMemories)

	s.mcp.AddTool(mcp.NewTool("memory_report",
		mcp.WithDescription("Count memories by type, topic, tags and domain."),
		mcp.WithString("dimension", mcp.Description("Restrict to one dimension"), mcp.Enum("type", "topic", "tags", "domain")),
	), s.memoryReport)

	s.mcp.AddTool(mcp.NewTool("get_record_schema",
		mcp.WithDescription("Returns the memory record format. Call this before creating memories."),
	), s.getRecordSchema)

	s.mcp.AddResource(
		mcp.NewResource(RecordSchemaURI, "Memory Record Schema",
			mcp.WithResourceDescription("Format of stored memory records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordSchema,
	)

	return s
}

// Serve speaks MCP over in/out until the client disconnects or ctx is
// cancelled. Transport errors go to logger.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func objectArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", key)
	}
	return m, nil
}

func (s *Server) createMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var content map[string]any
	switch c := args["content"].(type) {
	case map[string]any:
		content = c
	case string:
		content = map[string]any{"text": c}
	case nil:
		return mcp.NewToolResultError("content is required"), nil
	default:
		return mcp.NewToolResultError("content must be an object or a string"), nil
	}
	metadata, err := objectArg(args, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.records.Create(ctx, models.NewRecord{
		RecordType: req.GetString("entry_type", ""),
		Topic:      req.GetString("topic", ""),
		Domain:     req.GetString("domain", ""),
		Content:    content,
		Tags:       req.GetStringSlice("tags", nil),
		Metadata:   metadata,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"memory_id": id})
}

func (s *Server) getMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.records.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) listMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metadata, err := objectArg(req.GetArguments(), "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := s.records.List(ctx, recordstore.Filter{
		Tag:           req.GetString("tag", ""),
		TopicContains: req.GetString("topic", ""),
		RecordType:    req.GetString("entry_type", ""),
		Metadata:      metadata,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(records)
}

func (s *Server) searchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.records.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) memoryReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.records.List(ctx, recordstore.Filter{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if raw := req.GetString("dimension", ""); raw != "" {
		dim, err := report.ParseDimension(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report.Tally(records, dim))
	}
	return jsonResult(report.Build(records))
}

func (s *Server) getRecordSchema(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordSchema), nil
}

func (s *Server) readRecordSchema(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordSchemaURI,
			MIMEType: "text/markdown",
			Text:     RecordSchema,
		},
	}, nil
}
