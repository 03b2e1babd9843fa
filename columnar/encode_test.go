package columnar_test

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/schema"
)

func TestEncodeChunkWithBloomFilters(t *testing.T) {
	s := testSchema()
	batch := columnar.NewBatch(s, []map[string]any{
		{schema.TimestampField: int64(100), "level": "info", "count": int64(1)},
		{schema.TimestampField: int64(200), "level": "warn", "count": int64(2)},
		{schema.TimestampField: int64(300), "level": "error", "count": int64(3)},
	})
	meta := columnar.ChunkMeta([]*columnar.Batch{batch})

	opt := columnar.EncodeOptions{
		Codec:         "none",
		BloomEnabled:  true,
		BloomFPP:      0.01,
		BloomNdvRatio: 100,
	}

	var buf bytes.Buffer
	err := columnar.EncodeChunk(&buf, "app", s, []*columnar.Batch{batch}, meta, []string{"level"}, opt)
	require.NoError(t, err)
	require.Positive(t, buf.Len())

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())

	records, ok := f.Lookup(columnar.MetaRecords)
	require.True(t, ok)
	assert.Equal(t, "3", records)
	minTs, ok := f.Lookup(columnar.MetaMinTs)
	require.True(t, ok)
	assert.Equal(t, "100", minTs)
}

func TestEncodeChunkRejectsUnknownCodec(t *testing.T) {
	s := testSchema()
	batch := columnar.NewBatch(s, []map[string]any{
		{schema.TimestampField: int64(1)},
	})
	var buf bytes.Buffer
	err := columnar.EncodeChunk(&buf, "app", s, []*columnar.Batch{batch},
		columnar.ChunkMeta([]*columnar.Batch{batch}), nil, columnar.EncodeOptions{Codec: "lz77"})
	assert.Error(t, err)
}
