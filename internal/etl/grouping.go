package etl

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"dynetl/internal/domain"
)

const (
	FieldSimilarityThreshold = 0.7
	LabelSimilarityThreshold = 0.5
)

// GroupPlan pairs a table definition with the records destined for it.
type GroupPlan struct {
	Group   domain.TabularSchemaGroup
	Records []domain.NormalizedRecord
}

// TabularGrouper clusters relational-bound records into tables.
//
// Assignment is greedy and single pass: each record joins the first open
// bucket (in creation order) whose accumulated field set and label set are
// similar enough, or opens a new bucket. The partition depends on input
// order; two buckets that a different order would merge stay separate.
type TabularGrouper struct {
	FieldThreshold float64
	LabelThreshold float64
}

func NewTabularGrouper() *TabularGrouper {
	return &TabularGrouper{FieldThreshold: FieldSimilarityThreshold, LabelThreshold: LabelSimilarityThreshold}
}

type bucket struct {
	id      string
	records []domain.NormalizedRecord
	fields  map[string]struct{}
	labels  map[string]struct{}
}

func (b *bucket) add(rec domain.NormalizedRecord, fields, labels map[string]struct{}) {
	b.records = append(b.records, rec)
	for f := range fields {
		b.fields[f] = struct{}{}
	}
	for l := range labels {
		b.labels[l] = struct{}{}
	}
}

// Group clusters records for (sourceID, version).
func (g *TabularGrouper) Group(records []domain.NormalizedRecord, sourceID string, version int) []GroupPlan {
	if len(records) == 0 {
		return nil
	}

	var buckets []*bucket
	for _, rec := range records {
		fields := columnNames(rec)
		labels := toSet(rec.EntityLabels())

		var target *bucket
		for _, b := range buckets {
			if Jaccard(b.fields, fields) >= g.FieldThreshold && Jaccard(b.labels, labels) >= g.LabelThreshold {
				target = b
				break
			}
		}
		if target == nil {
			target = &bucket{
				id:     fmt.Sprintf("grp_%02d", len(buckets)+1),
				fields: map[string]struct{}{},
				labels: map[string]struct{}{},
			}
			buckets = append(buckets, target)
		}
		target.add(rec, fields, labels)
	}

	plans := make([]GroupPlan, 0, len(buckets))
	for _, b := range buckets {
		fields := inferGroupFields(b.records)
		labels := sortedSet(b.labels)
		sig := GroupSignature(fields, labels)
		group := domain.TabularSchemaGroup{
			GroupID:      b.id,
			TableName:    domain.TableName(sourceID, version, sig),
			Signature:    sig,
			Fields:       fields,
			RecordCount:  len(b.records),
			EntityLabels: labels,
		}
		plans = append(plans, GroupPlan{Group: group, Records: b.records})
	}
	return plans
}

// Jaccard is |A∩B| / |A∪B|. Two empty sets score 1; one empty set scores 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// GroupSignature hashes sorted (name, type) pairs followed by sorted labels.
// Every token ends in NUL and the label section starts with 0x01, so
// shifting text between tokens or sections changes the hash.
func GroupSignature(fields []domain.SchemaField, labels []string) string {
	sorted := append([]domain.SchemaField(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	h := sha1.New()
	for _, f := range sorted {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Type))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	ls := append([]string(nil), labels...)
	sort.Strings(ls)
	for _, l := range ls {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// columnNames returns a record's top-level keys, minus bookkeeping fields.
func columnNames(rec domain.NormalizedRecord) map[string]struct{} {
	out := make(map[string]struct{}, len(rec.Fields))
	for k := range rec.Fields {
		if isBookkeeping(k) {
			continue
		}
		out[k] = struct{}{}
	}
	return out
}

func isBookkeeping(name string) bool {
	return name == domain.NERField || strings.HasPrefix(name, "_")
}

// typePriority orders candidate column types; the first one seen wins.
var typePriority = []string{
	domain.TypeInteger,
	domain.TypeNumber,
	domain.TypeBoolean,
	domain.TypeObject,
	domain.TypeArray,
	domain.TypeString,
}

type fieldInfo struct {
	types   map[string]struct{}
	count   int
	sawNull bool
	example *domain.Value
}

func inferGroupFields(records []domain.NormalizedRecord) []domain.SchemaField {
	infos := map[string]*fieldInfo{}
	for _, rec := range records {
		for k, v := range rec.Fields {
			if isBookkeeping(k) {
				continue
			}
			info, ok := infos[k]
			if !ok {
				info = &fieldInfo{types: map[string]struct{}{}}
				infos[k] = info
			}
			info.count++
			if v.IsNull() {
				info.sawNull = true
			} else if info.example == nil {
				ex := v
				info.example = &ex
			}
			info.types[columnType(v)] = struct{}{}
		}
	}

	fields := make([]domain.SchemaField, 0, len(infos))
	for name, info := range infos {
		fields = append(fields, domain.SchemaField{
			Name:         name,
			Type:         selectType(info.types),
			Nullable:     info.sawNull || info.count < len(records),
			ExampleValue: info.example,
			Confidence:   1,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// columnType maps a value onto the grouper's type set. Nulls count as string.
func columnType(v domain.Value) string {
	switch v.Kind() {
	case domain.KindBool:
		return domain.TypeBoolean
	case domain.KindInt:
		return domain.TypeInteger
	case domain.KindFloat:
		return domain.TypeNumber
	case domain.KindObject:
		return domain.TypeObject
	case domain.KindArray:
		return domain.TypeArray
	default:
		return domain.TypeString
	}
}

func selectType(types map[string]struct{}) string {
	for _, t := range typePriority {
		if _, ok := types[t]; ok {
			return t
		}
	}
	return domain.TypeString
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

func sortedSet(s map[string]struct{}) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
