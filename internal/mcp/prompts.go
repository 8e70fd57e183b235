package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("explore_source",
		mcp.WithPromptDescription("Inspect an ingested source and answer a question with strict queries"),
		mcp.WithArgument("sourceId",
			mcp.ArgumentDescription("Logical source id"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("What to find out"),
			mcp.RequiredArgument(),
		),
	), s.handleExploreSourcePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("data_pipeline",
		mcp.WithPromptDescription("Set up a repeatable ingest job for a file, endpoint or database"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Source type (e.g. json_file, csv_file, http, database)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What this pipeline does"),
			mcp.RequiredArgument(),
		),
	), s.handleDataPipelinePrompt)
}

func (s *Server) handleExploreSourcePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceID := req.Params.Arguments["sourceId"]
	question := req.Params.Arguments["question"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Explore source %s", sourceID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Answer this question about source "%s": %s

1. Call get_schema for the source. Note each field's type and confidence, the compatible_engines and any tabular_groups.
2. If the fields you need live in a tabular group, use the query tool with engine "relational" and that group's table_name. Only reference columns listed for the table.
3. Otherwise use engine "document" with a filter on the fields; nested fields use dotted paths.
4. Start with a small limit, then refine. A document query with limit 0 returns only the count.`, sourceID, question),
				},
			},
		},
	}, nil
}

func (s *Server) handleDataPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	description := req.Params.Arguments["description"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Set up a %s data pipeline", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Set up a data pipeline: %s. Follow these steps:

1. Call list_sources and read the config fields of source type "%s"
2. Call preview_source with a candidate configuration and check the records look right (for a database source, list_tables shows what can be read)
3. Create the job with create_job, adding transforms (filter, rename, select, dedupe, limit) if needed
4. Run it once with run_job and check job_logs
5. Call get_schema on the job's source id to see what was inferred`, description, sourceType),
				},
			},
		},
	}, nil
}
