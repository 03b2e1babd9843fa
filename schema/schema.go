// Package schema models the evolving union schema of a stream. Schema values
// are immutable; growth produces a fresh value so concurrently held snapshots
// stay consistent.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// TimestampField is the event-time column present in every stream.
const TimestampField = "_timestamp"

// Type enumerates the value types a stream field can carry.
type Type int8

const (
	TypeUtf8 Type = iota
	TypeInt64
	TypeFloat64
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeUtf8:
		return "utf8"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	}
	return "unknown"
}

// Field is one named, typed column of a stream.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered, immutable field list with an O(1) name index.
// Fields are only ever appended across versions, never removed or retyped.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema from an ordered field list.
func New(fields []Field) *Schema {
	s := &Schema{
		fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// Fields returns the ordered field list. Callers must not mutate it.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Len returns the field count.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Has reports whether a field name is known.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// SerializedSize returns the byte size of the schema's serialized form,
// used for memory accounting.
func (s *Schema) SerializedSize() int64 {
	// 4-byte field count, then per field a 2-byte name length, the name
	// bytes and a 1-byte type tag.
	size := int64(4)
	for _, f := range s.fields {
		size += int64(2 + len(f.Name) + 1)
	}
	return size
}

// Fingerprint returns a stable content hash of the schema.
func (s *Schema) Fingerprint() string {
	h := sha256.New()
	for _, f := range s.fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{'=', byte(f.Type), ';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Merge unions another schema into this one, preserving the receiver's field
// order and appending novel fields in the other schema's order. It returns
// the resulting schema and the appended fields. When nothing was added the
// receiver itself is returned, so pointer equality signals "no growth".
func (s *Schema) Merge(other *Schema) (*Schema, []Field) {
	var added []Field
	for _, f := range other.fields {
		if !s.Has(f.Name) {
			added = append(added, f)
		}
	}
	if len(added) == 0 {
		return s, nil
	}
	fields := make([]Field, 0, len(s.fields)+len(added))
	fields = append(fields, s.fields...)
	fields = append(fields, added...)
	return New(fields), added
}

// Infer derives a schema from raw rows. The timestamp field is pinned first;
// the remaining fields are ordered by name so inference is deterministic
// regardless of map iteration order. Mixed numeric types widen to float64;
// any other type conflict widens to utf8.
func Infer(rows []map[string]any) *Schema {
	types := map[string]Type{}
	for _, row := range rows {
		for name, v := range row {
			t, ok := typeOf(v)
			if !ok {
				continue
			}
			if prev, seen := types[name]; seen {
				types[name] = widen(prev, t)
			} else {
				types[name] = t
			}
		}
	}

	names := make([]string, 0, len(types))
	_, hasTs := types[TimestampField]
	for name := range types {
		if name != TimestampField {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(types))
	if hasTs {
		fields = append(fields, Field{Name: TimestampField, Type: TypeInt64})
	}
	for _, name := range names {
		fields = append(fields, Field{Name: name, Type: types[name]})
	}
	return New(fields)
}

func typeOf(v any) (Type, bool) {
	switch v.(type) {
	case string:
		return TypeUtf8, true
	case int64, int, int32, uint64, uint32:
		return TypeInt64, true
	case float64, float32:
		return TypeFloat64, true
	case bool:
		return TypeBool, true
	}
	return 0, false
}

func widen(a, b Type) Type {
	if a == b {
		return a
	}
	if (a == TypeInt64 && b == TypeFloat64) || (a == TypeFloat64 && b == TypeInt64) {
		return TypeFloat64
	}
	return TypeUtf8
}
