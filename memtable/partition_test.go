package memtable_test

import (
	"testing"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/ingest"
	"github.com/tracelake/tracelake/memtable"
	"github.com/tracelake/tracelake/schema"
)

func writeRows(t *testing.T, p *memtable.Partition, timeKey string, rows []map[string]any) {
	t.Helper()
	entry := &ingest.Entry{
		Organization: "acme",
		Stream:       "app",
		StreamType:   "logs",
		TimeKey:      timeKey,
		Rows:         rows,
	}
	batch := columnar.NewBatch(schema.Infer(rows), rows)
	_, err := p.Write(entry, batch)
	require.NoError(t, err)
}

func TestPartitionWriteGrowsUnionSchema(t *testing.T) {
	p := memtable.NewPartition()
	writeRows(t, p, "2025/01/01/10", []map[string]any{{"a": "1", "b": "2"}})
	writeRows(t, p, "2025/01/01/10", []map[string]any{{"b": "2", "c": "3"}})
	writeRows(t, p, "2025/01/01/10", []map[string]any{{"a": "1", "d": "4"}})

	sch := p.Schema()
	require.NotNil(t, sch)
	assert.Equal(t, 4, sch.Len())
	for _, name := range []string{"a", "b", "c", "d"} {
		assert.True(t, sch.Has(name), name)
	}
}

func TestPartitionReadFiltersByTimeRange(t *testing.T) {
	p := memtable.NewPartition()
	writeRows(t, p, "2025/01/01/10", []map[string]any{
		{schema.TimestampField: int64(100)},
		{schema.TimestampField: int64(200)},
	})
	writeRows(t, p, "2025/01/01/11", []map[string]any{
		{schema.TimestampField: int64(900)},
	})

	_, batches, err := p.Read(0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	_, batches, err = p.Read(850, 950, nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(900), batches[0].MinTs())
}

func TestPartitionReadFiltersByBucketKey(t *testing.T) {
	p := memtable.NewPartition()
	writeRows(t, p, "2025/01/01/10", []map[string]any{{schema.TimestampField: int64(1)}})
	writeRows(t, p, "2025/01/02/10", []map[string]any{{schema.TimestampField: int64(2)}})

	filters := []glob.Glob{glob.MustCompile("2025/01/01/*")}
	_, batches, err := p.Read(0, 0, filters)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1), batches[0].MinTs())

	// Every filter must match.
	filters = append(filters, glob.MustCompile("*/02/*"))
	_, batches, err = p.Read(0, 0, filters)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestPartitionSizes(t *testing.T) {
	p := memtable.NewPartition()
	assert.True(t, p.Empty())
	assert.Zero(t, p.SizeUncompressed())

	writeRows(t, p, "2025/01/01/10", []map[string]any{
		{schema.TimestampField: int64(1), "msg": "hello"},
	})
	assert.False(t, p.Empty())
	assert.Positive(t, p.SizeUncompressed())
	assert.Positive(t, p.SizeEncoded())
	assert.Greater(t, p.SizeUncompressed(), p.SizeEncoded())
}
