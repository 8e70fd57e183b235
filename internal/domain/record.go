package domain

import (
	"sort"
)

// NERField is the field name upstream enrichment uses to attach entity labels.
const NERField = "ner"

// NormalizedRecord is one extracted document handed to the ingestion core.
// Fields never contains the enrichment field; its labels live in Entities.
type NormalizedRecord struct {
	Fields     map[string]Value    `json:"fields"`
	SourceType string              `json:"source_type"`
	Provenance map[string]string   `json:"provenance,omitempty"`
	Entities   map[string][]string `json:"entities,omitempty"`
}

// NewRecord builds a record from extracted fields. A top-level "ner" object
// is lifted out of the fields into Entities; each of its entries maps a label
// to a list of entity strings.
func NewRecord(sourceType string, fields map[string]Value, provenance map[string]string) NormalizedRecord {
	rec := NormalizedRecord{
		Fields:     make(map[string]Value, len(fields)),
		SourceType: sourceType,
		Provenance: provenance,
	}
	for k, v := range fields {
		if k == NERField {
			if obj, ok := v.AsObject(); ok {
				rec.Entities = entitiesFrom(obj)
				continue
			}
		}
		rec.Fields[k] = v
	}
	return rec
}

// NewRecordFromMap is NewRecord for plain decoded maps.
func NewRecordFromMap(sourceType string, data map[string]any, provenance map[string]string) (NormalizedRecord, error) {
	fields, err := ObjectFromMap(data)
	if err != nil {
		return NormalizedRecord{}, err
	}
	return NewRecord(sourceType, fields, provenance), nil
}

func entitiesFrom(obj map[string]Value) map[string][]string {
	out := make(map[string][]string, len(obj))
	for label, v := range obj {
		items, ok := v.AsArray()
		if !ok || len(items) == 0 {
			continue
		}
		ents := make([]string, 0, len(items))
		for _, it := range items {
			ents = append(ents, it.Text())
		}
		out[label] = ents
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EntityLabels returns the sorted labels that carry at least one entity.
func (r NormalizedRecord) EntityLabels() []string {
	labels := make([]string, 0, len(r.Entities))
	for label, ents := range r.Entities {
		if len(ents) > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Document returns the record as a store-ready document. Entities are written
// back under the enrichment field so the document store keeps them.
func (r NormalizedRecord) Document() map[string]Value {
	doc := make(map[string]Value, len(r.Fields)+1)
	for k, v := range r.Fields {
		doc[k] = v
	}
	if len(r.Entities) > 0 {
		ner := make(map[string]Value, len(r.Entities))
		for label, ents := range r.Entities {
			items := make([]Value, len(ents))
			for i, e := range ents {
				items[i] = String(e)
			}
			ner[label] = Array(items)
		}
		doc[NERField] = Object(ner)
	}
	return doc
}

// IsFlat reports whether no field holds a nested object or a list containing
// objects.
func (r NormalizedRecord) IsFlat() bool {
	for _, v := range r.Fields {
		switch v.Kind() {
		case KindObject:
			return false
		case KindArray:
			items, _ := v.AsArray()
			for _, it := range items {
				if it.Kind() == KindObject {
					return false
				}
			}
		}
	}
	return true
}
