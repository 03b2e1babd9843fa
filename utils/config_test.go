package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/utils"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := utils.ParseConfig([]byte("wal_root_directory: /data/tracelake\n"))
	require.NoError(t, err)

	assert.Equal(t, "/data/tracelake", cfg.WALRootDirectory)
	assert.Equal(t, "5080", cfg.ListenPort)
	assert.Equal(t, utils.DefaultShardCount, cfg.ShardCount)
	assert.Equal(t, utils.DefaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, int64(utils.DefaultMemtableMaxSizeBytes), cfg.MemtableMaxSizeBytes)
	assert.Equal(t, utils.DefaultMaxRowsPerChunk, cfg.MaxRowsPerChunk)
	assert.Equal(t, utils.DefaultWriteBufferSize, cfg.WriteBufferSize)
	assert.Equal(t, int64(utils.DefaultMaxRowGroupSize), cfg.MaxRowGroupSize)
	assert.Equal(t, utils.DefaultCompression, cfg.Compression)
	assert.True(t, cfg.BloomFilterEnabled)
	assert.Equal(t, utils.DefaultBloomFilterFPP, cfg.BloomFilterFPP)
	assert.Equal(t, int64(utils.DefaultBloomFilterNdvRatio), cfg.BloomFilterNdvRatio)
	assert.Equal(t, utils.DefaultBloomFieldThreshold, cfg.BloomFieldThreshold)
	assert.Equal(t, utils.DefaultMetaCacheCapacity, cfg.MetaCacheCapacity)
	assert.False(t, cfg.Uploader.Enabled)
}

func TestParseConfigOverrides(t *testing.T) {
	data := []byte(`
wal_root_directory: /data/tracelake
listen_port: "9090"
shard_count: 8
flush_interval: 30s
compression: SNAPPY
bloom_filter_enabled: false
bloom_filter_default_fields: [trace_id, span_id]
meta_cache_eviction: time_ordered
`)
	cfg, err := utils.ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ListenPort)
	assert.Equal(t, 8, cfg.ShardCount)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.False(t, cfg.BloomFilterEnabled)
	assert.Equal(t, []string{"trace_id", "span_id"}, cfg.BloomFilterDefaultFields)
	assert.Equal(t, "time_ordered", cfg.MetaCacheEviction)
}

func TestParseConfigRejectsMissingWALRoot(t *testing.T) {
	_, err := utils.ParseConfig([]byte("listen_port: \"9090\"\n"))
	assert.Error(t, err)
}

func TestParseConfigRejectsUnknownCodec(t *testing.T) {
	_, err := utils.ParseConfig([]byte("wal_root_directory: /data\ncompression: lz77\n"))
	assert.Error(t, err)
}

func TestParseConfigRejectsBadFlushInterval(t *testing.T) {
	_, err := utils.ParseConfig([]byte("wal_root_directory: /data\nflush_interval: soon\n"))
	assert.Error(t, err)
}

func TestParseConfigUploaderValidation(t *testing.T) {
	_, err := utils.ParseConfig([]byte(`
wal_root_directory: /data
uploader:
  enabled: true
`))
	assert.Error(t, err)

	cfg, err := utils.ParseConfig([]byte(`
wal_root_directory: /data
uploader:
  enabled: true
  endpoint: localhost:9000
  bucket: tracelake
  interval: 15s
`))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Uploader.Interval)
	assert.Equal(t, utils.DefaultUploaderConcurrency, cfg.Uploader.Concurrency)
}
