package inference

import (
	"math"

	"dynetl/internal/domain"
)

const (
	dateBoost    = 0.05
	numericBoost = 0.02
	booleanBoost = 0.02
)

// ComputeConfidence returns dominant-type-count / total rounded to three
// decimals. Integer counts fold into number the same way MergeTypes does.
// Zero observations score 0.
func ComputeConfidence(hist map[string]int, total int) float64 {
	if total <= 0 || len(hist) == 0 {
		return 0
	}
	dominant, _ := mergeCounts(hist)
	n := hist[dominant]
	if dominant == domain.TypeNumber {
		n += hist[domain.TypeInteger]
	}
	return round3(math.Min(float64(n)/float64(total), 1))
}

// SemanticBoost raises a string field's score by a small amount when its
// values carry a semantic hint. Only the first matching hint applies, in
// date, numeric, boolean order. The result never exceeds 1.
func SemanticBoost(score float64, hints Semantics, dominant string) float64 {
	if dominant != domain.TypeString {
		return score
	}
	switch {
	case hints.Date:
		score += dateBoost
	case hints.Numeric:
		score += numericBoost
	case hints.Boolean:
		score += booleanBoost
	}
	return round3(math.Min(score, 1))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
