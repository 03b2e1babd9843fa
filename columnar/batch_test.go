package columnar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/schema"
)

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: schema.TimestampField, Type: schema.TypeInt64},
		{Name: "level", Type: schema.TypeUtf8},
		{Name: "count", Type: schema.TypeInt64},
	})
}

func TestNewBatchTracksTimestampBounds(t *testing.T) {
	b := columnar.NewBatch(testSchema(), []map[string]any{
		{schema.TimestampField: int64(300), "level": "info", "count": int64(1)},
		{schema.TimestampField: int64(100), "level": "warn"},
		{schema.TimestampField: int64(200), "level": "error", "count": int64(3)},
	})

	assert.Equal(t, 3, b.NumRows())
	assert.Equal(t, int64(100), b.MinTs())
	assert.Equal(t, int64(300), b.MaxTs())
	assert.Positive(t, b.SizeUncompressed())
	assert.Positive(t, b.SizeEncoded())
	assert.Greater(t, b.SizeUncompressed(), b.SizeEncoded())
}

func TestNewBatchCoercion(t *testing.T) {
	b := columnar.NewBatch(testSchema(), []map[string]any{
		{schema.TimestampField: int64(1), "level": int64(42), "count": "oops"},
	})

	// int64 stringifies into a utf8 column; an uncoercible value is null.
	assert.Equal(t, []any{"42"}, b.Column("level"))
	assert.Equal(t, []any{nil}, b.Column("count"))
	assert.Nil(t, b.Column("missing"))
}

func TestRowOmitsNulls(t *testing.T) {
	b := columnar.NewBatch(testSchema(), []map[string]any{
		{schema.TimestampField: int64(1), "level": "info"},
	})

	row := b.Row(0)
	assert.Equal(t, int64(1), row[schema.TimestampField])
	assert.Equal(t, "info", row["level"])
	_, ok := row["count"]
	assert.False(t, ok)
}

func TestOverlaps(t *testing.T) {
	b := columnar.NewBatch(testSchema(), []map[string]any{
		{schema.TimestampField: int64(100)},
		{schema.TimestampField: int64(200)},
	})

	assert.True(t, b.Overlaps(0, 0))
	assert.True(t, b.Overlaps(150, 250))
	assert.True(t, b.Overlaps(200, 300))
	assert.False(t, b.Overlaps(201, 300))
	assert.False(t, b.Overlaps(1, 99))
}

func TestChunkMeta(t *testing.T) {
	s := testSchema()
	b1 := columnar.NewBatch(s, []map[string]any{
		{schema.TimestampField: int64(500), "level": "info"},
		{schema.TimestampField: int64(700), "level": "warn"},
	})
	b2 := columnar.NewBatch(s, []map[string]any{
		{schema.TimestampField: int64(300), "level": "error"},
	})

	meta := columnar.ChunkMeta([]*columnar.Batch{b1, b2})
	require.Equal(t, int64(300), meta.MinTs)
	require.Equal(t, int64(700), meta.MaxTs)
	assert.Equal(t, int64(3), meta.Records)
	assert.Equal(t, b1.SizeUncompressed()+b2.SizeUncompressed(), meta.OriginalSize)
}
