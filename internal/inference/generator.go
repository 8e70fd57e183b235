package inference

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dynetl/internal/domain"
)

// Generator builds SchemaMetadata from record batches.
type Generator struct {
	// ApplySemanticBoost adds the semantic-hint boost to string field
	// confidences. Off by default: confidence is plain type consistency.
	ApplySemanticBoost bool
	// MarkIndexes sets SuggestedIndex on primary-key candidates.
	MarkIndexes bool

	now func() time.Time
}

// NewGenerator returns a Generator with index suggestions enabled.
func NewGenerator() *Generator {
	return &Generator{MarkIndexes: true, now: time.Now}
}

// SchemaID derives a schema id from source id, version and a random suffix.
func SchemaID(sourceID string, version int) string {
	return fmt.Sprintf("%s_v%d_%s", sourceID, version, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Generate infers a version-1 schema over records. The caller assigns the
// final version and schema id once duplicate detection has run. An empty
// batch yields a valid zero-field schema.
func (g *Generator) Generate(records []map[string]domain.Value, sourceID string) *domain.SchemaMetadata {
	c := CollectStats(records)
	total := c.Records()

	fields := make([]domain.SchemaField, 0, len(c.Paths()))
	for _, path := range c.Paths() {
		fs := c.Stats(path)
		ratio := c.PresenceRatio(path)
		dominant := fs.DominantType()

		conf := ComputeConfidence(fs.TypeCounts, fs.PresenceCount)
		if g.ApplySemanticBoost {
			conf = SemanticBoost(conf, fs.Hints(), dominant)
		}

		f := domain.SchemaField{
			Name:         path,
			Type:         dominant,
			Nullable:     fs.RecordCount < total || fs.SawNull,
			ExampleValue: fs.FirstNonNullExample(),
			Confidence:   conf,
			CoercionHint: SuggestCoercion(fs),
		}
		if isNested(path) {
			f.Path = path
		}
		if IsPrimaryKeyCandidate(fs, ratio) {
			f.PrimaryKeyCandidate = true
			f.SuggestedIndex = g.MarkIndexes
		}
		f.Enum = SuggestEnum(fs, ratio)
		fields = append(fields, f)
	}

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	semanticFailures := 0
	for _, path := range c.Paths() {
		semanticFailures += c.Stats(path).Semantics.Failed
	}

	schema := &domain.SchemaMetadata{
		SchemaID:          SchemaID(sourceID, 1),
		SourceID:          sourceID,
		Version:           1,
		Fields:            fields,
		GeneratedAt:       now().UTC(),
		CompatibleEngines: []string{domain.EngineDocument},
		RecordCount:       total,
		ExtractionStats: map[string]int{
			"total_records":     total,
			"field_paths":       len(fields),
			"semantic_failures": semanticFailures,
		},
	}
	schema.Signature = Signature(schema.Fields)
	return schema
}

func isNested(path string) bool {
	return strings.Contains(path, ".") || strings.Contains(path, "[]")
}

// IsRelationalCompatible reports whether no field resolved to object or array.
func IsRelationalCompatible(fields []domain.SchemaField) bool {
	for _, f := range fields {
		if f.Type == domain.TypeObject || f.Type == domain.TypeArray {
			return false
		}
	}
	return true
}
