package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"dynetl/internal/domain"
	"dynetl/internal/etl"
)

func (s *Server) registerIngestTools() {
	s.mcp.AddTool(mcp.NewTool("ingest_records",
		mcp.WithDescription("Ingest a JSON array of flat or nested records for a source. The schema is inferred, versioned and each record is routed to the document or relational store."),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithString("recordsJSON", mcp.Description("JSON array of objects"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("Record shape tag: json, kv, csv_block, html_table, yaml_block (default json)")),
		mcp.WithNumber("version", mcp.Description("Explicit version; must exceed the latest. Omit for the next version.")),
	), s.handleIngestRecords)

	s.mcp.AddTool(mcp.NewTool("ingest_source",
		mcp.WithDescription("Read a registered source (file, HTTP endpoint, database) once and ingest its records"),
		mcp.WithString("sourceId", mcp.Description("Logical source id"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("version", mcp.Description("Explicit version; omit for the next version")),
	), s.handleIngestSource)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available source types with their configuration fields"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Preview records from a source without ingesting anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Maximum records to return (default 10)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables and columns an external database source can read"),
		mcp.WithString("sourceType", mcp.Description("Source type (default database)")),
		mcp.WithString("sourceConfigJSON", mcp.Description("Connection configuration as JSON"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListTables)
}

func (s *Server) handleIngestRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "ingest_records", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		// Value keeps integral JSON numbers as integers.
		var rows []map[string]domain.Value
		ok, err := jsonArg(args, "recordsJSON", &rows)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidArg("recordsJSON is required")
		}
		version, err := intArg(args, "version", 0)
		if err != nil {
			return nil, err
		}
		sourceType := req.GetString("sourceType", "json")

		records := make([]domain.NormalizedRecord, 0, len(rows))
		for i, row := range rows {
			if row == nil {
				return nil, invalidArg("record %d is not an object", i)
			}
			records = append(records, domain.NewRecord(sourceType, row, nil))
		}
		return s.ingest.Upload(ctx, sourceID, version, records)
	})
}

func (s *Server) handleIngestSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "ingest_source", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceID, err := requireString(args, "sourceId")
		if err != nil {
			return nil, err
		}
		sourceType, err := requireString(args, "sourceType")
		if err != nil {
			return nil, err
		}
		var cfg etl.SourceConfig
		if _, err := jsonArg(args, "sourceConfigJSON", &cfg); err != nil {
			return nil, err
		}
		version, err := intArg(args, "version", 0)
		if err != nil {
			return nil, err
		}
		return s.ingest.IngestSource(ctx, sourceID, sourceType, cfg, version)
	})
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ingest.ListSources())
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "preview_source", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		sourceType, err := requireString(args, "sourceType")
		if err != nil {
			return nil, err
		}
		var cfg etl.SourceConfig
		if _, err := jsonArg(args, "sourceConfigJSON", &cfg); err != nil {
			return nil, err
		}
		maxRows, err := intArg(args, "maxRows", 10)
		if err != nil {
			return nil, err
		}
		return s.ingest.Preview(ctx, sourceType, cfg, maxRows)
	})
}

func (s *Server) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "list_tables", func(ctx context.Context) (any, error) {
		var cfg etl.SourceConfig
		ok, err := jsonArg(req.GetArguments(), "sourceConfigJSON", &cfg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidArg("sourceConfigJSON is required")
		}
		return s.ingest.ListTables(ctx, req.GetString("sourceType", "database"), cfg)
	})
}
