package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

// ── Destinations ────────────────────────────────────────────
// Both engines are written in batches of Options.BatchSize. A document or
// row that fails validation or insertion is dropped and counted; only
// store-level failures abort the pass.

// ValidateDocument checks a document before it reaches the document store:
// it must be non-empty, have at most maxFields top-level keys, and every key
// must be non-empty, not start with "$" and not contain ".".
func ValidateDocument(doc map[string]domain.Value, maxFields int) error {
	if len(doc) == 0 {
		return fmt.Errorf("empty document")
	}
	if maxFields > 0 && len(doc) > maxFields {
		return fmt.Errorf("document has %d fields, limit is %d", len(doc), maxFields)
	}
	for k := range doc {
		switch {
		case k == "":
			return fmt.Errorf("empty field name")
		case strings.HasPrefix(k, "$"):
			return fmt.Errorf("field %q starts with $", k)
		case strings.Contains(k, "."):
			return fmt.Errorf("field %q contains a dot", k)
		}
	}
	return nil
}

// writeDocuments prepares the source collection, validates each record and
// inserts the valid ones with bookkeeping fields attached.
func (e *Engine) writeDocuments(ctx context.Context, sourceID string, version int, uploadID string, records []domain.NormalizedRecord) (inserted, dropped int, err error) {
	if err := e.docs.Prepare(ctx, sourceID); err != nil {
		return 0, 0, apperrors.Storage("prepare collection", sourceID, err)
	}

	ingestedAt := e.now().UTC().Format(time.RFC3339Nano)
	valid := make([]map[string]domain.Value, 0, len(records))
	for i, rec := range records {
		doc := rec.Document()
		if verr := ValidateDocument(doc, e.opts.MaxSchemaFields); verr != nil {
			dropped++
			e.logger.Warn("dropping invalid document",
				zap.String("source_id", sourceID),
				zap.Int("index", i),
				zap.Error(verr),
			)
			continue
		}
		doc[domain.DocFieldSchemaVersion] = domain.Int(int64(version))
		doc[domain.DocFieldUploadID] = domain.String(uploadID)
		doc[domain.DocFieldIngestedAt] = domain.String(ingestedAt)
		valid = append(valid, doc)
	}

	for start := 0; start < len(valid); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(valid))
		n, err := e.docs.InsertBatch(ctx, sourceID, valid[start:end])
		inserted += n
		dropped += (end - start) - n
		if err != nil {
			return inserted, dropped, apperrors.Storage("insert documents", sourceID, err)
		}
	}
	return inserted, dropped, nil
}

// writeTables creates one table per group and inserts its records.
func (e *Engine) writeTables(ctx context.Context, sourceID string, version int, plans []GroupPlan) (tables []string, inserted, dropped int, err error) {
	for _, plan := range plans {
		group := plan.Group
		if err := e.rel.EnsureTable(ctx, sourceID, version, group); err != nil {
			return tables, inserted, dropped, apperrors.Storage("create table", group.TableName, err)
		}
		tables = append(tables, group.TableName)

		columns := make([]string, len(group.Fields))
		for i, f := range group.Fields {
			columns[i] = f.Name
		}

		for start := 0; start < len(plan.Records); start += e.opts.BatchSize {
			end := min(start+e.opts.BatchSize, len(plan.Records))
			rows := make([]map[string]domain.Value, 0, end-start)
			for _, rec := range plan.Records[start:end] {
				rows = append(rows, RowFor(rec, columns))
			}
			n, d, err := e.rel.InsertRows(ctx, sourceID, version, group.TableName, rows)
			inserted += n
			dropped += d
			if err != nil {
				return tables, inserted, dropped, apperrors.Storage("insert rows", group.TableName, err)
			}
		}

		e.logger.Info("inserted rows",
			zap.String("source_id", sourceID),
			zap.Int("version", version),
			zap.String("table", group.TableName),
			zap.Int("records", len(plan.Records)),
		)
	}
	return tables, inserted, dropped, nil
}
