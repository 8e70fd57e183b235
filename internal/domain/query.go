package domain

// QueryRequest is an undecoded query object. It stays a plain map so the
// translator can tell a non-string identifier or a non-object where clause
// apart from a well-formed one.
type QueryRequest map[string]any

// Engine returns the requested engine selector, defaulting to document.
// ok is false when the selector is present but not a string.
func (q QueryRequest) Engine() (engine string, ok bool) {
	raw, present := q["engine"]
	if !present || raw == nil {
		return EngineDocument, true
	}
	s, isStr := raw.(string)
	if !isStr {
		return "", false
	}
	if s == "" {
		return EngineDocument, true
	}
	return s, true
}

// SortKey is one document-store sort criterion. Direction is 1 or -1.
type SortKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// DocumentQuery is a translated document-store read.
type DocumentQuery struct {
	Filter map[string]any `json:"filter"`
	Sort   []SortKey      `json:"sort,omitempty"`
	Limit  int            `json:"limit"`
}

// RelationalQuery is a translated, parameterised relational statement.
type RelationalQuery struct {
	Table  string `json:"table"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	Limit  int    `json:"limit"`
}

// QueryResult is the uniform response for both engines. Query echoes the
// translated form for audit.
type QueryResult struct {
	Query           any              `json:"query"`
	Results         []map[string]any `json:"results"`
	ResultCount     int              `json:"result_count"`
	ExecutionTimeMS float64          `json:"execution_time_ms"`
	Warnings        []string         `json:"warnings,omitempty"`
}
