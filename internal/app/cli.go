package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"dynetl/internal/config"
	"dynetl/internal/domain"
	"dynetl/internal/etl"
	"dynetl/internal/logging"
	mcpserver "dynetl/internal/mcp"
	"dynetl/internal/service"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// ─────────────────────────────────────────────────────────────
// CLI
// ─────────────────────────────────────────────────────────────

// NewCommand builds the root command. out receives command results as JSON.
func NewCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "dynetl",
		Usage: "Infer, version and store weakly-structured records; query them with one strict language",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", Value: "dynetl.yaml", Sources: cli.EnvVars("ETL_CONFIG")},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Read a file, URL or database once and ingest its records",
				ArgsUsage: "<path|url>",
				Flags: []cli.Flag{
					sourceFlag(),
					versionFlag(),
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "source type; guessed from the file extension when empty"},
					setFlag(),
				},
				Action: withApp(out, runIngest),
			},
			{
				Name:      "preview",
				Usage:     "Show the first records of a source without ingesting",
				ArgsUsage: "<path|url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "source type; guessed from the file extension when empty"},
					&cli.IntFlag{Name: "rows", Value: 10, Usage: "records to show"},
					setFlag(),
				},
				Action: withApp(out, runPreview),
			},
			{
				Name:  "tables",
				Usage: "List the tables of an external database (--set driver=... --set host=...)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "database", Usage: "source type"},
					setFlag(),
				},
				Action: withApp(out, runTables),
			},
			{
				Name:      "query",
				Usage:     "Run a strict query (JSON) against a source",
				ArgsUsage: "<query-json>",
				Flags:     []cli.Flag{sourceFlag()},
				Action:    withApp(out, runQuery),
			},
			{
				Name:  "records",
				Usage: "List documents of the latest schema version",
				Flags: []cli.Flag{sourceFlag(), &cli.IntFlag{Name: "limit", Usage: "1..1000, default 100"}},
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Queries.Records(ctx, cmd.String("source"), int(cmd.Int("limit")))
				}),
			},
			{
				Name:  "schema",
				Usage: "Show a schema version of a source",
				Flags: []cli.Flag{sourceFlag(), versionFlag()},
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Schemas.Get(ctx, cmd.String("source"), int(cmd.Int("version")))
				}),
			},
			{
				Name:  "history",
				Usage: "List every schema version of a source",
				Flags: []cli.Flag{sourceFlag()},
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Schemas.History(ctx, cmd.String("source"))
				}),
			},
			{
				Name:  "diff",
				Usage: "Compare two schema versions of a source",
				Flags: []cli.Flag{
					sourceFlag(),
					&cli.IntFlag{Name: "from", Required: true},
					&cli.IntFlag{Name: "to", Required: true},
				},
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Schemas.Diff(ctx, cmd.String("source"), int(cmd.Int("from")), int(cmd.Int("to")))
				}),
			},
			{
				Name:  "sources",
				Usage: "List registered source types",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return printJSON(out, etl.ListSources())
				},
			},
			jobsCommand(out),
			{
				Name:  "health",
				Usage: "Ping the document store and the catalog",
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Health(ctx)
				}),
			},
			{
				Name:  "version",
				Usage: "Print the build version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(out, Version)
					return err
				},
			},
			{
				Name:   "serve",
				Usage:  "Run scheduled and file-watch ingest jobs until interrupted",
				Action: withApp(out, runServe),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tool server on stdin/stdout",
				Action: withApp(out, runMCP),
			},
		},
	}
}

func jobsCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Manage repeatable ingest jobs",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create an ingest job",
				ArgsUsage: "<path|url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					sourceFlag(),
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "source type; guessed from the file extension when empty"},
					&cli.StringFlag{Name: "trigger", Value: domain.TriggerManual, Usage: "manual | schedule | file_watch"},
					&cli.StringFlag{Name: "cron", Usage: "cron expression for schedule triggers"},
					&cli.StringFlag{Name: "transforms", Usage: "JSON array of {type, config} transforms"},
					&cli.BoolFlag{Name: "disabled", Usage: "create the job without arming its trigger"},
					setFlag(),
				},
				Action: withApp(out, runCreateJob),
			},
			{
				Name:  "list",
				Usage: "List ingest jobs",
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					return a.Ingest.ListJobs(ctx)
				}),
			},
			{
				Name:      "run",
				Usage:     "Run a job now",
				ArgsUsage: "<job-id>",
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					id, err := firstArg(cmd, "job id")
					if err != nil {
						return nil, err
					}
					return a.Ingest.RunJob(ctx, id)
				}),
			},
			{
				Name:      "logs",
				Usage:     "Show recent runs of a job",
				ArgsUsage: "<job-id>",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					id, err := firstArg(cmd, "job id")
					if err != nil {
						return nil, err
					}
					return a.Ingest.ListRunLogs(ctx, id, int(cmd.Int("limit")))
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a job and its run logs",
				ArgsUsage: "<job-id>",
				Action: withApp(out, func(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
					id, err := firstArg(cmd, "job id")
					if err != nil {
						return nil, err
					}
					if err := a.Ingest.DeleteJob(ctx, id); err != nil {
						return nil, err
					}
					return map[string]string{"deleted": id}, nil
				}),
			},
		},
	}
}

// ── Plumbing ───────────────────────────────────────────────

// Flags are built per command; a flag value holds parse state.
func sourceFlag() cli.Flag {
	return &cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "logical source id", Required: true}
}

func versionFlag() cli.Flag {
	return &cli.IntFlag{Name: "version", Usage: "schema version (0 means next for ingest, latest for reads)"}
}

func setFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "set", Usage: "extra source config as key=value (repeatable)"}
}

type appAction func(ctx context.Context, a *App, cmd *cli.Command) (any, error)

// withApp loads config, opens the App for the duration of one command and
// prints the action's result as JSON.
func withApp(out io.Writer, fn appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.Load(cmd.String("config"))
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		a, err := Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Sugar().Warnf("shutdown: %v", err)
			}
		}()

		result, err := fn(ctx, a, cmd)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		return printJSON(out, result)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly 1 argument (%s), got %d", what, cmd.Args().Len())
	}
	return cmd.Args().First(), nil
}

// sourceTypeByExt maps file extensions to file source types.
var sourceTypeByExt = map[string]string{
	".json": "json_file",
	".csv":  "csv_file",
	".yaml": "yaml_file",
	".yml":  "yaml_file",
	".html": "html_table",
	".htm":  "html_table",
	".txt":  "kv_file",
	".env":  "kv_file",
	".conf": "kv_file",
}

// SourceConfigFromArgs resolves the source type and builds its config from
// the positional target and key=value overrides.
func SourceConfigFromArgs(sourceType, target string, sets []string) (string, etl.SourceConfig, error) {
	if sourceType == "" {
		switch {
		case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
			sourceType = "http"
		default:
			sourceType = sourceTypeByExt[strings.ToLower(filepath.Ext(target))]
		}
		if sourceType == "" {
			return "", nil, fmt.Errorf("cannot guess source type of %q; pass --type", target)
		}
	}

	cfg := etl.SourceConfig{}
	if target != "" {
		switch sourceType {
		case "http":
			cfg["url"] = target
		case "database":
			cfg["query"] = target
		default:
			abs, err := filepath.Abs(target)
			if err != nil {
				return "", nil, fmt.Errorf("resolve %s: %w", target, err)
			}
			cfg["filePath"] = abs
		}
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		cfg[k] = v
	}
	return sourceType, cfg, nil
}

// ── Actions ────────────────────────────────────────────────

func runIngest(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	target, err := firstArg(cmd, "path or url")
	if err != nil {
		return nil, err
	}
	sourceType, cfg, err := SourceConfigFromArgs(cmd.String("type"), target, cmd.StringSlice("set"))
	if err != nil {
		return nil, err
	}
	return a.Ingest.IngestSource(ctx, cmd.String("source"), sourceType, cfg, int(cmd.Int("version")))
}

func runPreview(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	target, err := firstArg(cmd, "path or url")
	if err != nil {
		return nil, err
	}
	sourceType, cfg, err := SourceConfigFromArgs(cmd.String("type"), target, cmd.StringSlice("set"))
	if err != nil {
		return nil, err
	}
	return a.Ingest.Preview(ctx, sourceType, cfg, int(cmd.Int("rows")))
}

func runTables(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	sourceType, cfg, err := SourceConfigFromArgs(cmd.String("type"), "", cmd.StringSlice("set"))
	if err != nil {
		return nil, err
	}
	return a.Ingest.ListTables(ctx, sourceType, cfg)
}

func runQuery(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	raw, err := firstArg(cmd, "query json")
	if err != nil {
		return nil, err
	}
	var req domain.QueryRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return a.Queries.Execute(ctx, cmd.String("source"), req)
}

func runCreateJob(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	target := ""
	if cmd.Args().Len() > 0 {
		target = cmd.Args().First()
	}
	sourceType, cfg, err := SourceConfigFromArgs(cmd.String("type"), target, cmd.StringSlice("set"))
	if err != nil {
		return nil, err
	}
	input := service.CreateJobInput{
		Name:         cmd.String("name"),
		SourceID:     cmd.String("source"),
		SourceType:   sourceType,
		SourceConfig: cfg,
		TriggerType:  cmd.String("trigger"),
		Enabled:      !cmd.Bool("disabled"),
	}
	switch input.TriggerType {
	case domain.TriggerSchedule:
		input.TriggerConfig = cmd.String("cron")
	case domain.TriggerFileWatch:
		if p, ok := cfg["filePath"].(string); ok {
			input.TriggerConfig = p
		}
	}
	if raw := cmd.String("transforms"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Transforms); err != nil {
			return nil, fmt.Errorf("parse transforms: %w", err)
		}
	}
	return a.Ingest.CreateJob(ctx, input)
}

func runServe(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Ingest.RestartWatchers(ctx)
	a.Logger.Info("serving ingest triggers; press Ctrl+C to stop")
	<-ctx.Done()
	a.Logger.Info("shutting down")
	return nil, nil
}

// runMCP runs the app as a standalone MCP server on stdin/stdout. Scheduled
// jobs keep firing while it serves.
func runMCP(ctx context.Context, a *App, cmd *cli.Command) (any, error) {
	a.Ingest.RestartWatchers(ctx)
	srv := mcpserver.New(mcpserver.Deps{
		Ingest:  a.Ingest,
		Queries: a.Queries,
		Schemas: a.Schemas,
		Logger:  a.Logger,
		Version: Version,
	})
	if err := srv.ServeStdio(); err != nil {
		return nil, fmt.Errorf("mcp server: %w", err)
	}
	return nil, nil
}
