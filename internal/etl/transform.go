package etl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dynetl/internal/domain"
)

// ── Row shaping ─────────────────────────────────────────────
// Relational rows are flat: nested objects are joined with "_", lists stay
// whole and serialise to JSON.

// Flatten joins nested object keys with sep. Lists are kept as values.
func Flatten(fields map[string]domain.Value, sep string) map[string]domain.Value {
	out := make(map[string]domain.Value, len(fields))
	flattenInto(out, "", fields, sep)
	return out
}

func flattenInto(out map[string]domain.Value, prefix string, fields map[string]domain.Value, sep string) {
	for k, v := range fields {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if obj, ok := v.AsObject(); ok && len(obj) > 0 {
			flattenInto(out, key, obj, sep)
			continue
		}
		out[key] = v
	}
}

// SerializeValue converts a value into a relational column value: booleans
// become 0/1, objects and lists become JSON text, null becomes nil.
func SerializeValue(v domain.Value) (any, error) {
	switch v.Kind() {
	case domain.KindNull:
		return nil, nil
	case domain.KindBool:
		b, _ := v.AsBool()
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case domain.KindObject, domain.KindArray:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serialise %s: %w", v.Kind(), err)
		}
		return string(data), nil
	default:
		return v.Any(), nil
	}
}

// RowFor shapes a record into the given columns. A column is taken from the
// record's own top-level field when present, otherwise from the "_"-joined
// flattened form; absent columns are null.
func RowFor(rec domain.NormalizedRecord, columns []string) map[string]domain.Value {
	var flat map[string]domain.Value
	row := make(map[string]domain.Value, len(columns))
	for _, col := range columns {
		if v, ok := rec.Fields[col]; ok {
			row[col] = v
			continue
		}
		if flat == nil {
			flat = Flatten(rec.Fields, "_")
		}
		if v, ok := flat[col]; ok {
			row[col] = v
		} else {
			row[col] = domain.Null()
		}
	}
	return row
}

// ── Transformer ────────────────────────────────────────────
// Job-level transforms applied to source records before ingestion. Each
// takes a record and returns a (possibly modified) record and whether to
// keep it.

// Transformer processes a single record.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// TransformConfig is a declarative transform definition stored with a job.
type TransformConfig = domain.TransformConfig

// FilterTransform drops records where the field does not match.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	case "gt":
		return r, toFloat(v) > toFloat(t.Value)
	case "lt":
		return r, toFloat(v) < toFloat(t.Value)
	default:
		return r, true
	}
}

// RenameTransform renames fields.
type RenameTransform struct {
	Mapping map[string]string // old → new
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	for from, to := range t.Mapping {
		if v, ok := r.Data[from]; ok {
			r.Data[to] = v
			delete(r.Data, from)
		}
	}
	return r, true
}

// SelectTransform keeps only the listed fields.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	kept := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			kept[f] = v
		}
	}
	r.Data = kept
	return r, true
}

// DedupeTransform drops records repeating a key value.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	v := fmt.Sprint(r.Data[t.Key])
	if t.seen[v] {
		return r, false
	}
	t.seen[v] = true
	return r, true
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// BuildTransformers turns declarative configs into a transformer chain.
// Unknown types and incomplete entries are rejected.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	var ts []Transformer
	for i, tc := range configs {
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			switch op {
			case "eq", "neq", "gt", "lt", "contains":
			default:
				return nil, fmt.Errorf("transform %d: unsupported filter op %q", i, op)
			}
			if field == "" {
				return nil, fmt.Errorf("transform %d: filter requires field", i)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})
		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("transform %d: rename requires mapping", i)
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})
		case "select":
			fields, ok := tc.Config["fields"].([]any)
			if !ok {
				return nil, fmt.Errorf("transform %d: select requires fields", i)
			}
			ff := make([]string, 0, len(fields))
			for _, f := range fields {
				ff = append(ff, fmt.Sprint(f))
			}
			ts = append(ts, &SelectTransform{Fields: ff})
		case "dedupe":
			key, _ := tc.Config["key"].(string)
			if key == "" {
				return nil, fmt.Errorf("transform %d: dedupe requires key", i)
			}
			ts = append(ts, NewDedupeTransform(key))
		case "limit":
			n := int(toFloat(tc.Config["count"]))
			if n <= 0 {
				return nil, fmt.Errorf("transform %d: limit requires a positive count", i)
			}
			ts = append(ts, &LimitTransform{Count: n})
		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}
	return ts, nil
}

// ApplyTransformers runs a chain on one record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
