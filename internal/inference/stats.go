package inference

import (
	"math"
	"sort"

	"dynetl/internal/domain"
)

const (
	maxExamples   = 3
	maxSampleSize = 500
	maxEnumValues = 10

	pkPresenceThreshold   = 0.9
	pkUniquenessThreshold = 0.9
	enumPresenceThreshold = 0.5
	coercionThreshold     = 0.6
)

// NumericStats tracks min/max over integer and float observations.
type NumericStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// SemanticCounts counts string observations carrying each hint.
type SemanticCounts struct {
	LooksLikeNumber  int `json:"looks_like_number"`
	LooksLikeDate    int `json:"looks_like_date"`
	LooksLikeBoolean int `json:"looks_like_boolean"`
	Failed           int `json:"failed"`
}

// FieldStats accumulates observations for one field path.
type FieldStats struct {
	Path string
	// PresenceCount counts every observation, so list elements may push it
	// above the number of records.
	PresenceCount int
	// RecordCount counts records containing the path at least once.
	RecordCount int
	TypeCounts  map[string]int
	Examples    []domain.Value
	Numeric     NumericStats
	Semantics   SemanticCounts
	Sample      []domain.Value
	SawNull     bool

	lastRecord int
}

// DominantType is the MergeTypes winner over the type histogram.
func (fs *FieldStats) DominantType() string {
	dominant, _ := mergeCounts(fs.TypeCounts)
	return dominant
}

// FirstNonNullExample returns the first recorded non-null example.
func (fs *FieldStats) FirstNonNullExample() *domain.Value {
	for _, ex := range fs.Examples {
		if !ex.IsNull() {
			v := ex
			return &v
		}
	}
	return nil
}

func (fs *FieldStats) observe(v domain.Value, record int) {
	fs.PresenceCount++
	if fs.lastRecord != record {
		fs.RecordCount++
		fs.lastRecord = record
	}
	fs.TypeCounts[InferType(v)]++
	if v.IsNull() {
		fs.SawNull = true
	}

	if len(fs.Examples) < maxExamples && !v.IsNull() {
		dup := false
		for _, ex := range fs.Examples {
			if ex.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			fs.Examples = append(fs.Examples, v)
		}
	}

	if f, ok := v.AsFloat(); ok {
		if fs.Numeric.Count == 0 {
			fs.Numeric.Min, fs.Numeric.Max = f, f
		} else {
			fs.Numeric.Min = math.Min(fs.Numeric.Min, f)
			fs.Numeric.Max = math.Max(fs.Numeric.Max, f)
		}
		fs.Numeric.Count++
	}

	if s, ok := v.AsString(); ok {
		sem := DetectSemantics(s)
		if sem.Err != nil {
			fs.Semantics.Failed++
		} else {
			if sem.Numeric {
				fs.Semantics.LooksLikeNumber++
			}
			if sem.Date {
				fs.Semantics.LooksLikeDate++
			}
			if sem.Boolean {
				fs.Semantics.LooksLikeBoolean++
			}
		}
	}

	if len(fs.Sample) < maxSampleSize && !v.IsContainer() {
		fs.Sample = append(fs.Sample, v)
	}
}

// ── Collector ───────────────────────────────────────────────

// Collector walks record batches and builds per-path statistics.
type Collector struct {
	stats   map[string]*FieldStats
	order   []string
	records int
}

func NewCollector() *Collector {
	return &Collector{stats: map[string]*FieldStats{}}
}

// Add walks one record.
func (c *Collector) Add(fields map[string]domain.Value) {
	c.records++
	keys := sortedKeys(fields)
	for _, k := range keys {
		c.walk(k, fields[k])
	}
}

// Records is the number of records walked so far.
func (c *Collector) Records() int { return c.records }

// Paths returns every discovered path, sorted.
func (c *Collector) Paths() []string {
	out := append([]string(nil), c.order...)
	sort.Strings(out)
	return out
}

// Stats returns the statistics for path, or nil.
func (c *Collector) Stats(path string) *FieldStats { return c.stats[path] }

// PresenceRatio is the fraction of records that contain path.
func (c *Collector) PresenceRatio(path string) float64 {
	fs := c.stats[path]
	if fs == nil || c.records == 0 {
		return 0
	}
	return float64(fs.RecordCount) / float64(c.records)
}

// walk records v at path, then descends. Object keys join with "."; list
// elements collapse under "<path>[]" without an index.
func (c *Collector) walk(path string, v domain.Value) {
	c.at(path).observe(v, c.records)

	switch v.Kind() {
	case domain.KindObject:
		obj, _ := v.AsObject()
		for _, k := range sortedKeys(obj) {
			c.walk(path+"."+k, obj[k])
		}
	case domain.KindArray:
		items, _ := v.AsArray()
		for _, item := range items {
			c.walk(path+"[]", item)
		}
	}
}

func (c *Collector) at(path string) *FieldStats {
	fs, ok := c.stats[path]
	if !ok {
		fs = &FieldStats{Path: path, TypeCounts: map[string]int{}}
		c.stats[path] = fs
		c.order = append(c.order, path)
	}
	return fs
}

// CollectStats walks every record once.
func CollectStats(records []map[string]domain.Value) *Collector {
	c := NewCollector()
	for _, r := range records {
		c.Add(r)
	}
	return c
}

// ── Suggestions ─────────────────────────────────────────────

// IsPrimaryKeyCandidate reports whether a field is present nearly everywhere,
// scalar, and nearly unique within the sample.
func IsPrimaryKeyCandidate(fs *FieldStats, presenceRatio float64) bool {
	if fs == nil || presenceRatio < pkPresenceThreshold {
		return false
	}
	switch fs.DominantType() {
	case domain.TypeObject, domain.TypeArray, domain.TypeUnknown:
		return false
	}
	if len(fs.Sample) == 0 {
		return false
	}
	return float64(distinct(fs.Sample))/float64(len(fs.Sample)) >= pkUniquenessThreshold
}

// SuggestEnum returns the sorted distinct sample values when a common field
// takes at most ten of them.
func SuggestEnum(fs *FieldStats, presenceRatio float64) []domain.Value {
	if fs == nil || presenceRatio < enumPresenceThreshold || len(fs.Sample) == 0 {
		return nil
	}
	seen := map[string]bool{}
	values := make([]domain.Value, 0, maxEnumValues)
	for _, v := range fs.Sample {
		k := v.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		values = append(values, v)
		if len(values) > maxEnumValues {
			return nil
		}
	}
	sortValues(values)
	return values
}

// SuggestCoercion flags string fields whose values mostly look numeric.
func SuggestCoercion(fs *FieldStats) string {
	if fs == nil || fs.DominantType() != domain.TypeString {
		return ""
	}
	strCount := fs.TypeCounts[domain.TypeString]
	if strCount == 0 {
		return ""
	}
	if float64(fs.Semantics.LooksLikeNumber)/float64(strCount) >= coercionThreshold {
		return domain.CoercionStringsMostlyNumeric
	}
	return ""
}

// Hints summarises a field's semantic counters as a single Semantics value
// for SemanticBoost. A hint counts when most string observations carry it.
func (fs *FieldStats) Hints() Semantics {
	n := fs.TypeCounts[domain.TypeString]
	if n == 0 {
		return Semantics{}
	}
	half := func(c int) bool { return c*2 > n }
	return Semantics{
		Numeric: half(fs.Semantics.LooksLikeNumber),
		Date:    half(fs.Semantics.LooksLikeDate),
		Boolean: half(fs.Semantics.LooksLikeBoolean),
	}
}

func distinct(values []domain.Value) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v.Key()] = struct{}{}
	}
	return len(seen)
}

// sortValues orders values naturally when they share a comparable kind
// (all numeric, all strings, all booleans) and by their text otherwise.
func sortValues(values []domain.Value) {
	allNum, allStr, allBool := true, true, true
	for _, v := range values {
		_, isNum := v.AsFloat()
		allNum = allNum && isNum
		allStr = allStr && v.Kind() == domain.KindString
		allBool = allBool && v.Kind() == domain.KindBool
	}
	sort.SliceStable(values, func(i, j int) bool {
		a, b := values[i], values[j]
		switch {
		case allNum:
			fa, _ := a.AsFloat()
			fb, _ := b.AsFloat()
			return fa < fb
		case allBool:
			ba, _ := a.AsBool()
			bb, _ := b.AsBool()
			return !ba && bb
		case allStr:
			sa, _ := a.AsString()
			sb, _ := b.AsString()
			return sa < sb
		default:
			return a.Text() < b.Text()
		}
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
