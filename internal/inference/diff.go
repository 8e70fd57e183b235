package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"dynetl/internal/domain"
)

// DetectSchemaChange compares two schema versions by field name and type.
// A nil prev schema treats every new field as added.
func DetectSchemaChange(prev, next *domain.SchemaMetadata) domain.SchemaDiff {
	oldTypes := fieldTypes(prev)
	newTypes := fieldTypes(next)

	diff := domain.SchemaDiff{
		AddedFields:   []string{},
		RemovedFields: []string{},
		TypeChanges:   map[string]domain.TypeChange{},
	}
	for name, t := range newTypes {
		was, ok := oldTypes[name]
		switch {
		case !ok:
			diff.AddedFields = append(diff.AddedFields, name)
		case was != t:
			diff.TypeChanges[name] = domain.TypeChange{Old: was, New: t}
		}
	}
	for name := range oldTypes {
		if _, ok := newTypes[name]; !ok {
			diff.RemovedFields = append(diff.RemovedFields, name)
		}
	}
	sort.Strings(diff.AddedFields)
	sort.Strings(diff.RemovedFields)
	diff.MigrationNote = migrationNote(&diff)
	return diff
}

func fieldTypes(s *domain.SchemaMetadata) map[string]string {
	out := map[string]string{}
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		out[f.Name] = f.Type
	}
	return out
}

func migrationNote(d *domain.SchemaDiff) string {
	var notes []string
	if len(d.AddedFields) > 0 {
		notes = append(notes, "added fields: "+strings.Join(d.AddedFields, ", ")+" (back-filled with null)")
	}
	if len(d.RemovedFields) > 0 {
		notes = append(notes, "removed fields: "+strings.Join(d.RemovedFields, ", ")+" (existing data kept)")
	}
	if len(d.TypeChanges) > 0 {
		names := sortedKeys(d.TypeChanges)
		for _, name := range names {
			tc := d.TypeChanges[name]
			notes = append(notes, fmt.Sprintf("type of %s changed %s -> %s (prior type kept in %s_legacy)", name, tc.Old, tc.New, name))
		}
	}
	if len(notes) == 0 {
		return "schema structure unchanged"
	}
	return strings.Join(notes, "; ")
}

// Signature hashes the sorted (name, type, nullable) triples of fields.
// Field order, confidence and examples do not affect it.
func Signature(fields []domain.SchemaField) string {
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = fmt.Sprintf("%s|%s|%t", f.Name, f.Type, f.Nullable)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether two schemas share a structural signature.
func IsDuplicate(prev, next *domain.SchemaMetadata) bool {
	if prev == nil || next == nil {
		return false
	}
	a := prev.Signature
	if a == "" {
		a = Signature(prev.Fields)
	}
	b := next.Signature
	if b == "" {
		b = Signature(next.Fields)
	}
	return a == b
}
