package inference

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"dynetl/internal/domain"
)

// ── Type inference ──────────────────────────────────────────

// InferType classifies a single value into a canonical type tag. It is total:
// every Value maps to exactly one tag, and booleans never report as integer.
func InferType(v domain.Value) string {
	switch v.Kind() {
	case domain.KindNull:
		return domain.TypeNull
	case domain.KindBool:
		return domain.TypeBoolean
	case domain.KindInt:
		return domain.TypeInteger
	case domain.KindFloat:
		return domain.TypeNumber
	case domain.KindString:
		return domain.TypeString
	case domain.KindObject:
		return domain.TypeObject
	case domain.KindArray:
		return domain.TypeArray
	default:
		return domain.TypeUnknown
	}
}

// MergeTypes folds a list of observed tags into a dominant tag and the sorted
// distinct union. When both integer and number occur, integer counts are
// promoted into number. Ties resolve alphabetically. Empty input yields
// ("unknown", []).
func MergeTypes(tags []string) (string, []string) {
	counts := make(map[string]int, len(tags))
	for _, t := range tags {
		counts[t]++
	}
	return mergeCounts(counts)
}

// mergeCounts is MergeTypes over a histogram.
func mergeCounts(hist map[string]int) (string, []string) {
	counts := make(map[string]int, len(hist))
	for t, n := range hist {
		if n > 0 {
			counts[t] = n
		}
	}
	if len(counts) == 0 {
		return domain.TypeUnknown, []string{}
	}
	if ni, ok := counts[domain.TypeInteger]; ok {
		if _, hasNum := counts[domain.TypeNumber]; hasNum {
			counts[domain.TypeNumber] += ni
			delete(counts, domain.TypeInteger)
		}
	}

	union := make([]string, 0, len(counts))
	for t := range counts {
		union = append(union, t)
	}
	sort.Strings(union)

	dominant, best := "", -1
	for _, t := range union {
		if counts[t] > best {
			dominant, best = t, counts[t]
		}
	}
	return dominant, union
}

// ── Semantic hints ──────────────────────────────────────────

var (
	numericPattern = regexp.MustCompile(`^[+-]?\d*\.?\d+$`)
	datePattern    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:T(\d{2}:\d{2})(?::(\d{2})(?:\.(\d{1,6}))?)?)?$`)
)

// ErrUndetectable marks a string semantic detection could not examine.
var ErrUndetectable = errors.New("semantic detection failed")

// Semantics is the outcome of DetectSemantics. Err is set when detection
// could not run at all, which is distinct from "no hint detected".
type Semantics struct {
	Numeric bool
	Date    bool
	Boolean bool
	Err     error
}

// Any reports whether any hint was detected.
func (s Semantics) Any() bool { return s.Numeric || s.Date || s.Boolean }

// DetectSemantics applies three independent strict checks to s.
func DetectSemantics(s string) Semantics {
	if !utf8.ValidString(s) {
		return Semantics{Err: ErrUndetectable}
	}
	return Semantics{
		Numeric: numericPattern.MatchString(s),
		Date:    looksLikeDate(s),
		Boolean: looksLikeBoolean(s),
	}
}

func looksLikeDate(s string) bool {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	layout := "2006-01-02"
	switch {
	case m[4] != "":
		layout = "2006-01-02T15:04:05." + strings.Repeat("0", len(m[4]))
	case m[3] != "":
		layout = "2006-01-02T15:04:05"
	case m[2] != "":
		layout = "2006-01-02T15:04"
	}
	_, err := time.Parse(layout, s)
	return err == nil
}

func looksLikeBoolean(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}
