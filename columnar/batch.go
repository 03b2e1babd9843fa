// Package columnar materializes ingested rows into immutable columnar
// batches and encodes merged batches into the on-disk columnar file format.
package columnar

import (
	"strconv"

	"github.com/tracelake/tracelake/schema"
)

// Batch is an immutable columnar encoding of one entry's rows. A batch may
// be shared between the partition holding it and an in-flight persist; the
// sharing is safe because batches are read-only after construction.
type Batch struct {
	sch     *schema.Schema
	columns [][]any
	numRows int

	sizeUncompressed int64
	sizeEncoded      int64
	minTs            int64
	maxTs            int64
}

// NewBatch converts rows into columns aligned to the given schema. Values
// are coerced to the field type; missing or uncoercible values become nulls.
func NewBatch(s *schema.Schema, rows []map[string]any) *Batch {
	fields := s.Fields()
	b := &Batch{
		sch:     s,
		columns: make([][]any, len(fields)),
		numRows: len(rows),
	}
	for i := range b.columns {
		b.columns[i] = make([]any, 0, len(rows))
	}

	for _, row := range rows {
		for i, f := range fields {
			v := coerce(row[f.Name], f.Type)
			b.columns[i] = append(b.columns[i], v)

			b.sizeUncompressed += textSize(f.Name, v)
			b.sizeEncoded += binarySize(v)

			if f.Name == schema.TimestampField {
				if ts, ok := v.(int64); ok {
					if b.minTs == 0 || ts < b.minTs {
						b.minTs = ts
					}
					if ts > b.maxTs {
						b.maxTs = ts
					}
				}
			}
		}
	}
	return b
}

// Schema returns the schema the batch was built against.
func (b *Batch) Schema() *schema.Schema {
	return b.sch
}

// NumRows returns the row count.
func (b *Batch) NumRows() int {
	return b.numRows
}

// SizeUncompressed returns the uncompressed (textual) size estimate.
func (b *Batch) SizeUncompressed() int64 {
	return b.sizeUncompressed
}

// SizeEncoded returns the encoded (binary) size estimate.
func (b *Batch) SizeEncoded() int64 {
	return b.sizeEncoded
}

// MinTs returns the smallest event timestamp in the batch, 0 when unset.
func (b *Batch) MinTs() int64 {
	return b.minTs
}

// MaxTs returns the largest event timestamp in the batch.
func (b *Batch) MaxTs() int64 {
	return b.maxTs
}

// Column returns the values of one column, or nil if the batch's schema does
// not carry the field.
func (b *Batch) Column(name string) []any {
	for i, f := range b.sch.Fields() {
		if f.Name == name {
			return b.columns[i]
		}
	}
	return nil
}

// Row rebuilds row i as a map. Fields of a wider union schema that this
// batch predates are simply absent, which the encoder treats as nulls.
func (b *Batch) Row(i int) map[string]any {
	row := make(map[string]any, len(b.columns))
	for j, f := range b.sch.Fields() {
		if v := b.columns[j][i]; v != nil {
			row[f.Name] = v
		}
	}
	return row
}

// Overlaps reports whether the batch's [minTs, maxTs] interval intersects
// the given range. A (0, 0) range matches everything.
func (b *Batch) Overlaps(minTs, maxTs int64) bool {
	if minTs == 0 && maxTs == 0 {
		return true
	}
	return b.maxTs >= minTs && b.minTs <= maxTs
}

func coerce(v any, t schema.Type) any {
	if v == nil {
		return nil
	}
	switch t {
	case schema.TypeInt64:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case uint32:
			return int64(x)
		case uint64:
			return int64(x)
		case float64:
			return int64(x)
		}
	case schema.TypeFloat64:
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case int:
			return float64(x)
		}
	case schema.TypeBool:
		if x, ok := v.(bool); ok {
			return x
		}
	case schema.TypeUtf8:
		switch x := v.(type) {
		case string:
			return x
		case int64:
			return strconv.FormatInt(x, 10)
		case int:
			return strconv.Itoa(x)
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(x)
		}
	}
	return nil
}

func textSize(name string, v any) int64 {
	const punct = 4 // quotes, colon, comma
	size := int64(len(name)) + punct
	switch x := v.(type) {
	case nil:
		size += 4
	case string:
		size += int64(len(x))
	case int64:
		size += int64(len(strconv.FormatInt(x, 10)))
	case float64:
		size += int64(len(strconv.FormatFloat(x, 'f', -1, 64)))
	case bool:
		size += 5
	}
	return size
}

func binarySize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 1
	case string:
		return int64(len(x)) + 4
	case int64, float64:
		return 8
	case bool:
		return 1
	}
	return 8
}
