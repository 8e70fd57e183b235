package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSchemaTools() {
	s.mcp.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Get the inferred schema of a source: fields with type, nullability and confidence, compatible engines and relational table groups"),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithNumber("version", mcp.Description("Schema version (default latest)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleGetSchema)

	s.mcp.AddTool(mcp.NewTool("schema_history",
		mcp.WithDescription("List every schema version of a source, oldest first"),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSchemaHistory)

	s.mcp.AddTool(mcp.NewTool("diff_schema",
		mcp.WithDescription("Compare two schema versions of a source: added, removed and type-changed fields"),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithNumber("from", mcp.Description("Older version"), mcp.Required()),
		mcp.WithNumber("to", mcp.Description("Newer version"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleDiffSchema)
}

func (s *Server) handleGetSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "get_schema", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		version, err := intArg(args, "version", 0)
		if err != nil {
			return nil, err
		}
		return s.schemas.Get(ctx, sourceID, version)
	})
}

func (s *Server) handleSchemaHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "schema_history", func(ctx context.Context) (any, error) {
		sourceID, err := requireString(req.GetArguments(), "sourceId")
		if err != nil {
			return nil, err
		}
		return s.schemas.History(ctx, sourceID)
	})
}

func (s *Server) handleDiffSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "diff_schema", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		from, err := intArg(args, "from", 0)
		if err != nil {
			return nil, err
		}
		to, err := intArg(args, "to", 0)
		if err != nil {
			return nil, err
		}
		return s.schemas.Diff(ctx, sourceID, from, to)
	})
}
