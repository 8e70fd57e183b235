package storage

import (
	"context"
	"encoding/json"
	"maps"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"dynetl/internal/domain"
)

// ── In-memory document store ────────────────────────────────
// MemoryStore is a DocumentStore kept in process memory. It understands the
// subset of the Mongo filter language the query layer produces and applies
// the same evolution rules as MongoStore. Selected with the "memory" URI.

type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
}

var _ domain.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string][]map[string]any{}}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Prepare(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[sourceID]; !ok {
		s.collections[sourceID] = nil
	}
	return nil
}

func (s *MemoryStore) InsertBatch(_ context.Context, sourceID string, docs []map[string]domain.Value) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		doc := domain.ToMap(d)
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = bson.NewObjectID().Hex()
		}
		s.collections[sourceID] = append(s.collections[sourceID], doc)
	}
	return len(docs), nil
}

func (s *MemoryStore) Evolve(_ context.Context, sourceID string, diff *domain.SchemaDiff) error {
	if diff.IsEmpty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.collections[sourceID] {
		for _, f := range diff.AddedFields {
			if !topLevelField(f) {
				continue
			}
			if _, ok := doc[f]; !ok {
				doc[f] = nil
			}
		}
		for f, tc := range diff.TypeChanges {
			if strings.Contains(f, "[]") {
				continue
			}
			v, ok := lookupPath(doc, f)
			if !ok || v == nil || typeMatches(v, tc.New) {
				continue
			}
			if _, marked := lookupPath(doc, f+LegacySuffix); marked {
				continue
			}
			setPath(doc, f+LegacySuffix, tc.Old)
		}
	}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, sourceID string, q domain.DocumentQuery) ([]map[string]any, error) {
	s.mu.RLock()
	var matched []map[string]any
	for _, doc := range s.collections[sourceID] {
		if matchFilter(doc, q.Filter) {
			matched = append(matched, cloneDoc(doc))
		}
	}
	s.mu.RUnlock()

	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, k := range q.Sort {
				a, _ := lookupPath(matched[i], k.Field)
				b, _ := lookupPath(matched[j], k.Field)
				if c := compareAny(a, b); c != 0 {
					if k.Direction < 0 {
						return c > 0
					}
					return c < 0
				}
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if matched == nil {
		matched = []map[string]any{}
	}
	return matched, nil
}

func (s *MemoryStore) Count(_ context.Context, sourceID string, filter map[string]any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.collections[sourceID] {
		if matchFilter(doc, filter) {
			n++
		}
	}
	return n, nil
}

// ── Filter matching ─────────────────────────────────────────

func matchFilter(doc, filter map[string]any) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range asFilters(cond) {
				if !matchFilter(doc, sub) {
					return false
				}
			}
		case "$or":
			hit := false
			for _, sub := range asFilters(cond) {
				if matchFilter(doc, sub) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		default:
			v, present := lookupPath(doc, key)
			if !matchCondition(v, present, cond) {
				return false
			}
		}
	}
	return true
}

func asFilters(x any) []map[string]any {
	items, _ := x.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// matchCondition evaluates either an operator object or a literal equality.
func matchCondition(v any, present bool, cond any) bool {
	ops, ok := cond.(map[string]any)
	if !ok || !isOperatorObject(ops) {
		return valueEquals(v, cond)
	}
	for op, arg := range ops {
		var pass bool
		switch op {
		case "$eq":
			pass = valueEquals(v, arg)
		case "$ne":
			pass = !valueEquals(v, arg)
		case "$gt":
			pass = present && ordered(v, arg, func(c int) bool { return c > 0 })
		case "$gte":
			pass = present && ordered(v, arg, func(c int) bool { return c >= 0 })
		case "$lt":
			pass = present && ordered(v, arg, func(c int) bool { return c < 0 })
		case "$lte":
			pass = present && ordered(v, arg, func(c int) bool { return c <= 0 })
		case "$in":
			items, _ := arg.([]any)
			for _, it := range items {
				if valueEquals(v, it) {
					pass = true
					break
				}
			}
		case "$nin":
			items, _ := arg.([]any)
			pass = true
			for _, it := range items {
				if valueEquals(v, it) {
					pass = false
					break
				}
			}
		case "$exists":
			want, _ := arg.(bool)
			pass = present == want
		default:
			pass = false
		}
		if !pass {
			return false
		}
	}
	return true
}

func isOperatorObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// valueEquals matches scalars by value and arrays by any element, as the
// document store does.
func valueEquals(v, want any) bool {
	if arr, ok := v.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			for _, it := range arr {
				if valueEquals(it, want) {
					return true
				}
			}
			return false
		}
	}
	if a, ok := toNumber(v); ok {
		b, ok := toNumber(want)
		return ok && a == b
	}
	return reflect.DeepEqual(v, want)
}

func ordered(v, arg any, test func(int) bool) bool {
	if arr, ok := v.([]any); ok {
		for _, it := range arr {
			if ordered(it, arg, test) {
				return true
			}
		}
		return false
	}
	if typeRank(v) != typeRank(arg) {
		return false
	}
	return test(compareAny(v, arg))
}

func toNumber(x any) (float64, bool) {
	switch n := x.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// typeRank follows the document store's cross-type sort order.
func typeRank(x any) int {
	if x == nil {
		return 0
	}
	if _, ok := toNumber(x); ok {
		return 1
	}
	switch x.(type) {
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	}
	return 6
}

func compareAny(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		x, _ := toNumber(a)
		y, _ := toNumber(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		x, y := a.(bool), b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
	}
	return 0
}

func typeMatches(v any, schemaType string) bool {
	switch schemaType {
	case domain.TypeString:
		_, ok := v.(string)
		return ok
	case domain.TypeInteger:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case domain.TypeNumber:
		_, ok := toNumber(v)
		return ok
	case domain.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case domain.TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case domain.TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return v == nil
}

// ── Paths ───────────────────────────────────────────────────

func lookupPath(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func cloneDoc(doc map[string]any) map[string]any {
	out := maps.Clone(doc)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = cloneValue(it)
		}
		return out
	}
	return v
}
