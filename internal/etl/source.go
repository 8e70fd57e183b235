package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source turns a file, endpoint or database into tagged records.
// Implementations live in etl/sources/, one file per source type.

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "password" | "file" | "int"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type, the record tag it emits and its
// config fields.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	RecordTag    string        `json:"record_tag"`
	ConfigFields []ConfigField `json:"config_fields"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover introspects the source and returns the expected schema.
	Discover(ctx context.Context, cfg SourceConfig) (*Schema, error)

	// Read streams records into a channel that is closed when the source is
	// exhausted or ctx is cancelled. Errors go to the error channel
	// (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// Table is one table or collection a source can read.
type Table struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// TableLister is implemented by sources backed by a database, which can
// report what they hold before a query is written.
type TableLister interface {
	ListTables(ctx context.Context, cfg SourceConfig) ([]Table, error)
}

// ListTables lists the tables of a source that supports it.
func ListTables(ctx context.Context, sourceType string, cfg SourceConfig) ([]Table, error) {
	src, err := GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	lister, ok := src.(TableLister)
	if !ok {
		return nil, fmt.Errorf("source type %q cannot list tables", sourceType)
	}
	return lister.ListTables(ctx, cfg)
}

// ReadAll drains a source, applying the transform chain to each record.
func ReadAll(ctx context.Context, src Source, cfg SourceConfig, ts []Transformer) ([]Record, int, error) {
	recCh, errCh := src.Read(ctx, cfg)
	var (
		records []Record
		read    int
	)
	for rec := range recCh {
		read++
		if out, keep := ApplyTransformers(rec, ts); keep {
			records = append(records, out)
		}
	}
	if err := <-errCh; err != nil {
		return records, read, fmt.Errorf("read: %w", err)
	}
	return records, read, nil
}
