package etl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/inference"
)

// ── Engine ─────────────────────────────────────────────────
// One ingestion pass: route → infer → version → evolve → write → persist.
// A pass is a single synchronous unit of work. Callers must serialise
// passes for the same source; version allocation is not locked here.

// Options tunes an Engine.
type Options struct {
	BatchSize       int
	MaxSchemaFields int
}

// Engine runs ingestion passes against a schema store and both engines.
type Engine struct {
	schemas domain.SchemaStore
	docs    domain.DocumentStore
	rel     domain.RelationalStore
	gen     *inference.Generator
	grouper *TabularGrouper
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine wires an Engine. A nil logger disables logging.
func NewEngine(schemas domain.SchemaStore, docs domain.DocumentStore, rel domain.RelationalStore, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxSchemaFields <= 0 {
		opts.MaxSchemaFields = 500
	}
	return &Engine{
		schemas: schemas,
		docs:    docs,
		rel:     rel,
		gen:     inference.NewGenerator(),
		grouper: NewTabularGrouper(),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest runs one ingestion pass.
func (e *Engine) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.UploadResult, error) {
	start := e.now()
	res := &domain.UploadResult{
		UploadID:          uuid.NewString(),
		SourceID:          req.SourceID,
		RecordsReceived:   len(req.Records),
		CompatibleEngines: []string{},
		StartedAt:         start.UTC(),
	}
	log := e.logger.With(zap.String("source_id", req.SourceID), zap.String("upload_id", res.UploadID))

	if req.SourceID == "" {
		return nil, apperrors.Invalid(apperrors.KindSchemaInference, "ingest", "source_id is required")
	}
	if req.Version < 0 {
		return nil, apperrors.Invalid(apperrors.KindSchemaInference, "ingest", "version must be positive, got %d", req.Version)
	}
	if len(req.Records) == 0 {
		res.Status = domain.StatusNoop
		res.Warnings = append(res.Warnings, "no records to ingest")
		res.DurationMS = sinceMS(e.now, start)
		log.Warn("empty ingestion pass")
		return res, nil
	}

	// 1. Route.
	routed := Categorize(req.Records)

	// 2. Prior version.
	latest, err := e.schemas.Latest(ctx, req.SourceID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Storage("load latest schema", req.SourceID, err)
		}
		latest = nil
	}

	// 3. Infer.
	schema := e.gen.Generate(fieldMaps(req.Records), req.SourceID)
	var relSchema *domain.SchemaMetadata
	if len(routed.Relational) > 0 {
		relSchema = e.gen.Generate(fieldMaps(routed.Relational), req.SourceID)
	}
	schema.CompatibleEngines = CompatibleEngines(schema, relSchema)

	// 4. Version.
	duplicate := latest != nil && inference.IsDuplicate(latest, schema)
	var version int
	switch {
	case duplicate:
		version = latest.Version
		schema.SchemaID = latest.SchemaID
	case req.Version > 0:
		if latest != nil && req.Version <= latest.Version {
			return nil, apperrors.Invalid(apperrors.KindSchemaInference, "ingest",
				"requested version %d must exceed current version %d", req.Version, latest.Version)
		}
		version = req.Version
		schema.SchemaID = inference.SchemaID(req.SourceID, version)
	case latest != nil:
		version = latest.Version + 1
		schema.SchemaID = inference.SchemaID(req.SourceID, version)
	default:
		version = 1
	}
	schema.Version = version
	res.Version = version
	res.SchemaID = schema.SchemaID
	res.Duplicate = duplicate
	log = log.With(zap.Int("version", version))

	// 5. Evolve. Failure aborts before anything is persisted.
	if latest != nil && !duplicate {
		diff := inference.DetectSchemaChange(latest, schema)
		res.Diff = &diff
		if !diff.IsEmpty() {
			if err := e.docs.Evolve(ctx, req.SourceID, &diff); err != nil {
				return nil, apperrors.Storage("evolve schema", req.SourceID, err)
			}
			log.Info("schema evolved", zap.String("note", diff.MigrationNote))
		}
	}

	// 6. Document arm.
	if len(routed.Document) > 0 {
		n, d, err := e.writeDocuments(ctx, req.SourceID, version, res.UploadID, routed.Document)
		res.DocumentsInserted, res.DocumentsDropped = n, d
		if err != nil {
			return nil, err
		}
		if d > 0 {
			log.Warn("documents dropped", zap.Int("dropped", d))
		}
	}

	// 7. Relational arm.
	var groups []domain.TabularSchemaGroup
	if len(routed.Relational) > 0 {
		plans := e.grouper.Group(routed.Relational, req.SourceID, version)
		for i := range plans {
			markIndexes(&plans[i].Group, relSchema)
			groups = append(groups, plans[i].Group)
		}
		tables, n, d, err := e.writeTables(ctx, req.SourceID, version, plans)
		res.Tables, res.RowsInserted, res.RowsDropped = tables, n, d
		if err != nil {
			return nil, err
		}
		if d > 0 {
			log.Warn("rows dropped", zap.Int("dropped", d))
		}
	}
	if len(groups) > 0 {
		schema.TabularGroups = groups
		if !slices.Contains(schema.CompatibleEngines, domain.EngineRelational) {
			schema.CompatibleEngines = append(schema.CompatibleEngines, domain.EngineRelational)
		}
	}
	res.CompatibleEngines = schema.CompatibleEngines

	// 8. Persist.
	schema.ExtractionStats["document_records"] = len(routed.Document)
	schema.ExtractionStats["relational_records"] = len(routed.Relational)
	schema.ExtractionStats["tabular_groups"] = len(groups)
	if !duplicate || len(groups) > 0 {
		if err := e.schemas.Put(ctx, schema); err != nil {
			return nil, apperrors.Storage("persist schema", req.SourceID, err)
		}
	}

	// 9. Status.
	if res.DocumentsInserted+res.RowsInserted > 0 {
		res.Status = domain.StatusSuccess
	} else {
		res.Status = domain.StatusNoop
		res.Warnings = append(res.Warnings, "no documents or rows were inserted")
		log.Warn("ingestion inserted nothing")
	}
	res.DurationMS = sinceMS(e.now, start)

	log.Info("ingestion finished",
		zap.String("status", res.Status),
		zap.Bool("duplicate", duplicate),
		zap.Int("documents", res.DocumentsInserted),
		zap.Int("rows", res.RowsInserted),
		zap.Float64("duration_ms", res.DurationMS),
	)
	return res, nil
}

// SourceRun describes one pass fed by a registered source.
type SourceRun struct {
	SourceID   string
	SourceType string
	Config     SourceConfig
	Transforms []TransformConfig
	Version    int
}

// RunSource reads a registered source, applies transforms and ingests the
// result. It also reports how many records the source produced.
func (e *Engine) RunSource(ctx context.Context, run SourceRun) (*domain.UploadResult, int, error) {
	src, err := GetSource(run.SourceType)
	if err != nil {
		return nil, 0, apperrors.Invalid(apperrors.KindSchemaInference, "run source", "%v", err)
	}
	ts, err := BuildTransformers(run.Transforms)
	if err != nil {
		return nil, 0, apperrors.Invalid(apperrors.KindSchemaInference, "run source", "%v", err)
	}
	records, read, err := ReadAll(ctx, src, run.Config, ts)
	if err != nil {
		return nil, read, fmt.Errorf("source %s: %w", run.SourceType, err)
	}
	normalized, err := Normalize(records)
	if err != nil {
		return nil, read, apperrors.SchemaInference("normalize records", run.SourceType, err)
	}
	res, err := e.Ingest(ctx, domain.IngestRequest{SourceID: run.SourceID, Version: run.Version, Records: normalized})
	return res, read, err
}

// Preview reads up to maxRows records from a source without ingesting them.
func Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	src, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	schema, err := src.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := src.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			cancel()
			break
		}
	}
	// Drain so the source goroutine can exit.
	for range recCh {
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return records, schema, err
	}
	return records, schema, nil
}

// markIndexes flags group columns that are primary-key candidates in the
// relational schema.
func markIndexes(group *domain.TabularSchemaGroup, relSchema *domain.SchemaMetadata) {
	if relSchema == nil {
		return
	}
	for i, f := range group.Fields {
		if sf, ok := relSchema.Field(f.Name); ok && sf.PrimaryKeyCandidate {
			group.Fields[i].PrimaryKeyCandidate = true
			group.Fields[i].SuggestedIndex = true
		}
	}
}

func fieldMaps(records []domain.NormalizedRecord) []map[string]domain.Value {
	out := make([]map[string]domain.Value, len(records))
	for i, r := range records {
		out[i] = r.Fields
	}
	return out
}

func sinceMS(now func() time.Time, start time.Time) float64 {
	return float64(now().Sub(start).Microseconds()) / 1000
}
