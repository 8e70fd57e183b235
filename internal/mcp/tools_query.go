package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"dynetl/internal/domain"
	"dynetl/internal/query"
)

func (s *Server) registerQueryTools() {
	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription(`Run one strict query against a source. The query object selects its engine:
- document: {"engine":"document","filter":{...},"sort":[["field",1|-1|"asc"|"desc"]],"limit":100}; limit 0 returns only the count
- relational: {"engine":"relational","table":"<table>","select":["col"],"where":{"col":value | {"$eq|$ne|$gt|$gte|$lt|$lte|$in|$like": value}},"order_by":[["col","asc"|"desc"]],"limit":100}
Relational table names are listed in the source's schema (tabular_groups).`),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithString("queryJSON", mcp.Description("Query object as JSON"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleQuery)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("Return documents of the source's latest schema version"),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithNumber("limit", describe("Maximum documents (1..%d, default %d)", query.MaxLimit, query.DefaultLimit)),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListRecords)
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "query", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		var q domain.QueryRequest
		ok, err := jsonArg(args, "queryJSON", &q)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidArg("queryJSON is required")
		}
		return s.queries.Execute(ctx, sourceID, q)
	})
}

func (s *Server) handleListRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "list_records", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		limit, err := intArg(args, "limit", 0)
		if err != nil {
			return nil, err
		}
		return s.queries.Records(ctx, sourceID, limit)
	})
}
