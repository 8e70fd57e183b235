package query

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
	"dynetl/internal/storage"
)

// ── Translator ──────────────────────────────────────────────
// Turns an undecoded query object into an engine-specific form. Every
// malformed input is a client error; nothing here touches a store.

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Translator holds the limit policy shared by both engines.
type Translator struct {
	DefaultLimit int
	MaxLimit     int
}

// NewTranslator returns a Translator with the given limits, falling back to
// 100 and 1000 for non-positive values.
func NewTranslator(defaultLimit, maxLimit int) *Translator {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	return &Translator{DefaultLimit: defaultLimit, MaxLimit: maxLimit}
}

func invalid(format string, args ...any) error {
	return apperrors.Invalid(apperrors.KindQueryExecution, "translate query", format, args...)
}

// ── Document engine ─────────────────────────────────────────

// Document translates {filter, sort, limit}. The filter is passed through;
// limit is clamped to [0, MaxLimit] where 0 asks for a count only.
func (t *Translator) Document(req domain.QueryRequest) (*domain.DocumentQuery, error) {
	q := &domain.DocumentQuery{Filter: map[string]any{}, Limit: t.DefaultLimit}

	if raw, ok := req["filter"]; ok && raw != nil {
		filter, isMap := raw.(map[string]any)
		if !isMap {
			return nil, invalid("filter must be an object, got %T", raw)
		}
		q.Filter = filter
	}

	if raw, ok := req["sort"]; ok && raw != nil {
		items, isList := raw.([]any)
		if !isList {
			return nil, invalid("sort must be a list of [field, direction] pairs")
		}
		for i, item := range items {
			field, dir, err := sortPair(item)
			if err != nil {
				return nil, invalid("sort[%d]: %v", i, err)
			}
			q.Sort = append(q.Sort, domain.SortKey{Field: field, Direction: dir})
		}
	}

	limit, err := t.limit(req, 0)
	if err != nil {
		return nil, err
	}
	q.Limit = limit
	return q, nil
}

// sortPair parses [field, direction].
func sortPair(item any) (string, int, error) {
	pair, ok := item.([]any)
	if !ok || len(pair) != 2 {
		return "", 0, fmt.Errorf("expected [field, direction]")
	}
	field, ok := pair[0].(string)
	if !ok || field == "" {
		return "", 0, fmt.Errorf("field must be a non-empty string")
	}
	dir, err := direction(pair[1])
	if err != nil {
		return "", 0, err
	}
	return field, dir, nil
}

// direction accepts 1, -1, "asc", "desc", "ascending" and "descending".
func direction(x any) (int, error) {
	if s, ok := x.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending", "1":
			return 1, nil
		case "desc", "descending", "-1":
			return -1, nil
		}
		return 0, fmt.Errorf("invalid sort direction %q", s)
	}
	if n, ok := asInt(x); ok && (n == 1 || n == -1) {
		return n, nil
	}
	return 0, fmt.Errorf("invalid sort direction %v", x)
}

// limit reads req["limit"], applying the default and clamping to
// [floor, MaxLimit]. A non-integer limit is a client error.
func (t *Translator) limit(req domain.QueryRequest, floor int) (int, error) {
	raw, ok := req["limit"]
	if !ok || raw == nil {
		return t.DefaultLimit, nil
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, invalid("limit must be an integer, got %v", raw)
	}
	return min(max(n, floor), t.MaxLimit), nil
}

// asInt accepts integral numbers in any of the decoded numeric forms.
// Magnitudes beyond the int range saturate instead of wrapping.
func asInt(x any) (int, bool) {
	switch n := x.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return 0, false
		}
		return floatToInt(f)
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	switch {
	case math.IsNaN(f), f != math.Trunc(f) && !math.IsInf(f, 0):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt, true
	case f <= math.MinInt64:
		return math.MinInt, true
	}
	return int(f), true
}

// ── Relational engine ───────────────────────────────────────

// Table returns the relational target table.
func Table(req domain.QueryRequest) (string, error) {
	raw, ok := req["table"]
	if !ok || raw == nil {
		return "", invalid("table is required")
	}
	table, isStr := raw.(string)
	if !isStr || table == "" {
		return "", invalid("table must be a non-empty string")
	}
	return table, nil
}

var whereOps = map[string]string{
	"$eq":   "=",
	"$ne":   "!=",
	"$gt":   ">",
	"$gte":  ">=",
	"$lt":   "<",
	"$lte":  "<=",
	"$in":   "IN",
	"$like": "LIKE",
}

// Relational translates {table, select, where, order_by, limit} into one
// parameterised SELECT. Every column is checked against columns before any
// SQL is built.
func (t *Translator) Relational(req domain.QueryRequest, columns []string) (*domain.RelationalQuery, error) {
	table, err := Table(req)
	if err != nil {
		return nil, err
	}
	known := func(col string) error {
		if !slices.Contains(columns, col) {
			return invalid("unknown column %q in table %s", col, table)
		}
		return nil
	}

	selectList := "*"
	if raw, ok := req["select"]; ok && raw != nil {
		items, isList := raw.([]any)
		if !isList {
			return nil, invalid("select must be a list of column names")
		}
		if len(items) > 0 {
			cols := make([]string, 0, len(items))
			for i, item := range items {
				col, isStr := item.(string)
				if !isStr {
					return nil, invalid("select[%d] must be a string, got %T", i, item)
				}
				if err := known(col); err != nil {
					return nil, err
				}
				cols = append(cols, storage.QuoteIdent(col))
			}
			selectList = strings.Join(cols, ", ")
		}
	}

	var (
		clauses []string
		params  []any
	)
	if raw, ok := req["where"]; ok && raw != nil {
		where, isMap := raw.(map[string]any)
		if !isMap {
			return nil, invalid("where must be an object, got %T", raw)
		}
		for _, col := range sortedKeys(where) {
			if err := known(col); err != nil {
				return nil, err
			}
			c, p, err := condition(col, where[col])
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c...)
			params = append(params, p...)
		}
	}

	var orderBy []string
	if raw, ok := req["order_by"]; ok && raw != nil {
		items, isList := raw.([]any)
		if !isList {
			return nil, invalid("order_by must be a list")
		}
		for i, item := range items {
			col, desc, err := orderTerm(item)
			if err != nil {
				return nil, invalid("order_by[%d]: %v", i, err)
			}
			if err := known(col); err != nil {
				return nil, err
			}
			term := storage.QuoteIdent(col) + " ASC"
			if desc {
				term = storage.QuoteIdent(col) + " DESC"
			}
			orderBy = append(orderBy, term)
		}
	}

	limit, err := t.limit(req, 1)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList, storage.QuoteIdent(table))
	if len(clauses) > 0 {
		b.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(orderBy, ", "))
	}
	b.WriteString(" LIMIT ?")
	params = append(params, limit)

	return &domain.RelationalQuery{Table: table, SQL: b.String(), Params: params, Limit: limit}, nil
}

// condition renders the predicates for one where entry.
func condition(col string, cond any) ([]string, []any, error) {
	qcol := storage.QuoteIdent(col)
	ops, isMap := cond.(map[string]any)
	if !isMap {
		return literal(qcol, "=", col, cond)
	}
	if len(ops) == 0 {
		return nil, nil, invalid("empty operator object for column %q", col)
	}

	var (
		clauses []string
		params  []any
	)
	for _, op := range sortedKeys(ops) {
		sqlOp, ok := whereOps[op]
		if !ok {
			return nil, nil, invalid("unsupported operator %q for column %q", op, col)
		}
		arg := ops[op]
		switch op {
		case "$in":
			items, isList := arg.([]any)
			if !isList || len(items) == 0 {
				return nil, nil, invalid("$in for column %q requires a non-empty list", col)
			}
			marks := make([]string, len(items))
			for i, it := range items {
				v, err := bindValue(col, it)
				if err != nil {
					return nil, nil, err
				}
				marks[i] = "?"
				params = append(params, v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", qcol, strings.Join(marks, ", ")))
		case "$like":
			s, isStr := arg.(string)
			if !isStr {
				return nil, nil, invalid("$like for column %q requires a string pattern", col)
			}
			clauses = append(clauses, qcol+" LIKE ?")
			params = append(params, s)
		default:
			c, p, err := literal(qcol, sqlOp, col, arg)
			if err != nil {
				return nil, nil, err
			}
			clauses = append(clauses, c...)
			params = append(params, p...)
		}
	}
	return clauses, params, nil
}

// literal renders "<col> <op> ?". Null equality becomes IS [NOT] NULL.
func literal(qcol, op, col string, v any) ([]string, []any, error) {
	if v == nil {
		switch op {
		case "=":
			return []string{qcol + " IS NULL"}, nil, nil
		case "!=":
			return []string{qcol + " IS NOT NULL"}, nil, nil
		}
		return nil, nil, invalid("null is not comparable with %s for column %q", op, col)
	}
	bound, err := bindValue(col, v)
	if err != nil {
		return nil, nil, err
	}
	return []string{fmt.Sprintf("%s %s ?", qcol, op)}, []any{bound}, nil
}

// bindValue converts a literal into a driver parameter. Booleans are stored
// as 0/1; containers are not comparable.
func bindValue(col string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int, int32, int64, float64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, invalid("invalid number %q for column %q", x.String(), col)
		}
		return f, nil
	}
	return nil, invalid("unsupported literal %T for column %q", v, col)
}

// orderTerm accepts "col", [col] or [col, direction].
func orderTerm(item any) (string, bool, error) {
	switch x := item.(type) {
	case string:
		return x, false, nil
	case []any:
		if len(x) == 0 || len(x) > 2 {
			return "", false, fmt.Errorf("expected [column, direction]")
		}
		col, ok := x[0].(string)
		if !ok {
			return "", false, fmt.Errorf("column must be a string, got %T", x[0])
		}
		if len(x) == 1 {
			return col, false, nil
		}
		dir, err := direction(x[1])
		if err != nil {
			return "", false, err
		}
		return col, dir < 0, nil
	}
	return "", false, fmt.Errorf("column must be a string, got %T", item)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
