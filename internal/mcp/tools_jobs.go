package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"dynetl/internal/domain"
	"dynetl/internal/service"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("create_job",
		mcp.WithDescription("Create a repeatable ingest job. Triggers: manual, schedule (cron expression) or file_watch (file path)."),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("sourceId", mcp.Description("Logical source id the job ingests into"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("transformsJSON", mcp.Description(`Optional JSON array of transforms applied to each source record before ingestion. Each has {type, config}:
- filter: {field, op (eq|neq|gt|lt|contains), value}
- rename: {mapping: {old: new}}
- select: {fields: ["a","b"]}
- dedupe: {key}
- limit: {count}`)),
		mcp.WithString("triggerType", mcp.Description("manual | schedule | file_watch (default manual)")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, file path for file_watch")),
		mcp.WithBoolean("enabled", mcp.Description("Whether triggers fire (default true)")),
	), s.handleCreateJob)

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List ingest jobs with their last run status"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run an ingest job now. May create a new schema version for its source."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
	), s.handleRunJob)

	s.mcp.AddTool(mcp.NewTool("job_logs",
		mcp.WithDescription("Recent run logs of a job, newest first"),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum logs (default 50)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleJobLogs)

	s.mcp.AddTool(mcp.NewTool("delete_job",
		mcp.WithDescription("Delete an ingest job and its run logs. Ingested data is kept."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteJob)
}

func (s *Server) handleCreateJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "create_job", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		input := service.CreateJobInput{
			Name:          req.GetString("name", ""),
			SourceID:      req.GetString("sourceId", ""),
			SourceType:    req.GetString("sourceType", ""),
			TriggerType:   req.GetString("triggerType", domain.TriggerManual),
			TriggerConfig: req.GetString("triggerConfig", ""),
			Enabled:       req.GetBool("enabled", true),
		}
		if _, err := jsonArg(args, "sourceConfigJSON", &input.SourceConfig); err != nil {
			return nil, err
		}
		if _, err := jsonArg(args, "transformsJSON", &input.Transforms); err != nil {
			return nil, err
		}
		return s.ingest.CreateJob(ctx, input)
	})
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "list_jobs", func(ctx context.Context) (any, error) {
		return s.ingest.ListJobs(ctx)
	})
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "run_job", func(ctx context.Context) (any, error) {
		jobID, err := requireString(req.GetArguments(), "jobId")
		if err != nil {
			return nil, err
		}
		return s.ingest.RunJob(ctx, jobID)
	})
}

func (s *Server) handleJobLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "job_logs", func(ctx context.Context) (any, error) {
		args := req.GetArguments()
		jobID, err := requireString(args, "jobId")
		if err != nil {
			return nil, err
		}
		limit, err := intArg(args, "limit", 50)
		if err != nil {
			return nil, err
		}
		return s.ingest.ListRunLogs(ctx, jobID, limit)
	})
}

func (s *Server) handleDeleteJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "delete_job", func(ctx context.Context) (any, error) {
		jobID, err := requireString(req.GetArguments(), "jobId")
		if err != nil {
			return nil, err
		}
		if err := s.ingest.DeleteJob(ctx, jobID); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": jobID}, nil
	})
}
