package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dynetl/internal/domain"
	"dynetl/internal/etl"
	"dynetl/internal/inference"
)

// ── Shared helpers ──────────────────────────────────────────

// streamRecords runs load in a goroutine and streams its records until ctx
// is cancelled.
func streamRecords(ctx context.Context, load func() ([]etl.Record, error)) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := load()
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func stringOpt(cfg etl.SourceConfig, key string) string {
	s, _ := cfg[key].(string)
	return strings.TrimSpace(s)
}

func intOpt(cfg etl.SourceConfig, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// decodeJSON decodes with json.Number so integers survive as integers.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// navigatePath walks a dot-separated path into nested maps.
func navigatePath(obj any, path string) (any, error) {
	if path == "" {
		return obj, nil
	}
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
	}
	return current, nil
}

// toRecords turns a decoded document into records. Arrays yield one record
// per object element; a single object yields one record. Nested values are
// kept as they are.
func toRecords(raw any, tag string, provenance map[string]string) []etl.Record {
	switch v := raw.(type) {
	case []any:
		records := make([]etl.Record, 0, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, etl.Record{
					Data:       m,
					SourceType: tag,
					Provenance: withIndex(provenance, "record_index", i),
				})
			}
		}
		return records
	case map[string]any:
		return []etl.Record{{Data: v, SourceType: tag, Provenance: withIndex(provenance, "record_index", 0)}}
	default:
		return nil
	}
}

func withIndex(base map[string]string, key string, i int) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = strconv.Itoa(i)
	return out
}

// inferSchema reports the first inferred type of every field seen.
func inferSchema(records []etl.Record) *etl.Schema {
	fieldSet := make(map[string]string)
	for _, rec := range records {
		for k, v := range rec.Data {
			if typ, seen := fieldSet[k]; seen && typ != domain.TypeNull {
				continue
			}
			val, err := domain.FromAny(v)
			if err != nil {
				fieldSet[k] = domain.TypeUnknown
				continue
			}
			fieldSet[k] = inference.InferType(val)
		}
	}

	names := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := &etl.Schema{Fields: make([]etl.Field, 0, len(names))}
	for _, name := range names {
		schema.Fields = append(schema.Fields, etl.Field{Name: name, Type: fieldSet[name]})
	}
	return schema
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// standardizeKey lower-cases a column label and replaces runs of
// punctuation and spaces with "_".
func standardizeKey(key string) string {
	key = nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "_")
	key = strings.Trim(key, "_")
	if key == "" {
		return "unknown"
	}
	return key
}

// inferScalar turns a text cell into null, integer, number, boolean or
// string.
func inferScalar(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "na":
		return nil
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	if !strings.ContainsAny(s, ".,eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXnN") {
		return f
	}
	return s
}
