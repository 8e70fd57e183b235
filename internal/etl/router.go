package etl

import (
	"dynetl/internal/domain"
	"dynetl/internal/inference"
)

// ── Storage routing ─────────────────────────────────────────
// Declared source shape decides first; unknown tags fall back to a flatness
// test on the record itself.

var sourceTypeEngines = map[string]string{
	"json":       domain.EngineDocument,
	"yaml_block": domain.EngineDocument,
	"html_table": domain.EngineRelational,
	"csv_block":  domain.EngineRelational,
	"kv":         domain.EngineRelational,
}

// Routed is the result of Categorize.
type Routed struct {
	Document   []domain.NormalizedRecord
	Relational []domain.NormalizedRecord
}

// Route returns the engine a single record belongs to.
func Route(rec domain.NormalizedRecord) string {
	if engine, ok := sourceTypeEngines[rec.SourceType]; ok {
		return engine
	}
	if rec.IsFlat() {
		return domain.EngineRelational
	}
	return domain.EngineDocument
}

// Categorize splits records between the two engines, keeping input order.
func Categorize(records []domain.NormalizedRecord) Routed {
	var out Routed
	for _, rec := range records {
		if Route(rec) == domain.EngineRelational {
			out.Relational = append(out.Relational, rec)
		} else {
			out.Document = append(out.Document, rec)
		}
	}
	return out
}

// CompatibleEngines lists the engines that can hold data of the given shape.
// The document engine is always listed. The relational engine is listed when
// the relational schema (or the main schema when there is none) has no
// object or array fields.
func CompatibleEngines(schema, relational *domain.SchemaMetadata) []string {
	engines := []string{domain.EngineDocument}
	target := relational
	if target == nil {
		target = schema
	}
	if target != nil && inference.IsRelationalCompatible(target.Fields) {
		engines = append(engines, domain.EngineRelational)
	}
	return engines
}
