package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tracelake/tracelake/utils/log"
)

// Defaults for the ingester write path. The encode constants are operational
// constants of the columnar file format contract and are only overridable
// through the configuration file for lab setups.
const (
	DefaultShardCount           = 4
	DefaultFlushInterval        = 10 * time.Minute
	DefaultMaxRowsPerChunk      = 100_000
	DefaultWriteBufferSize      = 8192
	DefaultMaxRowGroupSize      = 256 * 1024 * 1024
	DefaultCompression          = "zstd"
	DefaultBloomFilterFPP       = 0.01
	DefaultBloomFilterNdvRatio  = 100
	DefaultBloomFieldThreshold  = 10
	DefaultUploaderInterval     = time.Minute
	DefaultUploaderConcurrency  = 4
	DefaultMetaCacheCapacity    = 100_000
	DefaultMemtableMaxSizeBytes = 512 * 1024 * 1024
)

// UploaderSetting configures the background object-store uploader.
type UploaderSetting struct {
	Enabled     bool
	Endpoint    string
	Bucket      string
	AccessKey   string
	SecretKey   string
	Secure      bool
	Interval    time.Duration
	Concurrency int
}

// Config is the parsed ingester configuration.
type Config struct {
	WALRootDirectory     string
	ListenPort           string
	ShardCount           int
	FlushInterval        time.Duration
	MemtableMaxSizeBytes int64

	MaxRowsPerChunk       int
	WriteBufferSize       int
	MaxRowGroupSize       int64
	Compression           string
	DisableCompression    bool
	TimestampUncompressed bool

	BloomFilterEnabled       bool
	BloomFilterFPP           float64
	BloomFilterNdvRatio      int64
	BloomFilterDefaultFields []string
	BloomFieldThreshold      int

	MetaCacheCapacity int
	MetaCacheEviction string

	Uploader UploaderSetting

	StartTime time.Time
}

// ParseConfig parses and validates the YAML configuration data.
func ParseConfig(data []byte) (*Config, error) {
	var aux struct {
		WALRootDirectory      string   `yaml:"wal_root_directory"`
		ListenPort            string   `yaml:"listen_port"`
		LogLevel              string   `yaml:"log_level"`
		ShardCount            int      `yaml:"shard_count"`
		FlushInterval         string   `yaml:"flush_interval"`
		MemtableMaxSizeBytes  int64    `yaml:"memtable_max_size_bytes"`
		MaxRowsPerChunk       int      `yaml:"max_rows_per_chunk"`
		WriteBufferSize       int      `yaml:"write_buffer_size"`
		MaxRowGroupSize       int64    `yaml:"max_row_group_size"`
		Compression           string   `yaml:"compression"`
		DisableCompression    bool     `yaml:"disable_compression"`
		TimestampUncompressed bool     `yaml:"timestamp_uncompressed"`
		BloomEnabled          *bool    `yaml:"bloom_filter_enabled"`
		BloomFPP              float64  `yaml:"bloom_filter_fpp"`
		BloomNdvRatio         int64    `yaml:"bloom_filter_ndv_ratio"`
		BloomDefaultFields    []string `yaml:"bloom_filter_default_fields"`
		BloomFieldThreshold   int      `yaml:"bloom_filter_field_threshold"`
		MetaCacheCapacity     int      `yaml:"meta_cache_capacity"`
		MetaCacheEviction     string   `yaml:"meta_cache_eviction"`
		Uploader              struct {
			Enabled     bool   `yaml:"enabled"`
			Endpoint    string `yaml:"endpoint"`
			Bucket      string `yaml:"bucket"`
			AccessKey   string `yaml:"access_key"`
			SecretKey   string `yaml:"secret_key"`
			Secure      bool   `yaml:"secure"`
			Interval    string `yaml:"interval"`
			Concurrency int    `yaml:"concurrency"`
		} `yaml:"uploader"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if aux.WALRootDirectory == "" {
		return nil, errors.New("invalid wal root directory")
	}

	c := &Config{
		WALRootDirectory:         aux.WALRootDirectory,
		ListenPort:               aux.ListenPort,
		ShardCount:               aux.ShardCount,
		MemtableMaxSizeBytes:     aux.MemtableMaxSizeBytes,
		MaxRowsPerChunk:          aux.MaxRowsPerChunk,
		WriteBufferSize:          aux.WriteBufferSize,
		MaxRowGroupSize:          aux.MaxRowGroupSize,
		Compression:              strings.ToLower(aux.Compression),
		DisableCompression:       aux.DisableCompression,
		TimestampUncompressed:    aux.TimestampUncompressed,
		BloomFilterEnabled:       true,
		BloomFilterFPP:           aux.BloomFPP,
		BloomFilterNdvRatio:      aux.BloomNdvRatio,
		BloomFilterDefaultFields: aux.BloomDefaultFields,
		BloomFieldThreshold:      aux.BloomFieldThreshold,
		MetaCacheCapacity:        aux.MetaCacheCapacity,
		MetaCacheEviction:        strings.ToLower(aux.MetaCacheEviction),
		StartTime:                time.Now().UTC(),
	}

	if aux.BloomEnabled != nil {
		c.BloomFilterEnabled = *aux.BloomEnabled
	}
	if c.ListenPort == "" {
		c.ListenPort = "5080"
	}
	if c.ShardCount <= 0 {
		c.ShardCount = DefaultShardCount
	}
	if c.MemtableMaxSizeBytes <= 0 {
		c.MemtableMaxSizeBytes = DefaultMemtableMaxSizeBytes
	}
	if c.MaxRowsPerChunk <= 0 {
		c.MaxRowsPerChunk = DefaultMaxRowsPerChunk
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.MaxRowGroupSize <= 0 {
		c.MaxRowGroupSize = DefaultMaxRowGroupSize
	}
	if c.Compression == "" {
		c.Compression = DefaultCompression
	}
	switch c.Compression {
	case "zstd", "snappy", "gzip", "none":
	default:
		return nil, fmt.Errorf("unsupported compression codec %q", c.Compression)
	}
	if c.BloomFilterFPP <= 0 || c.BloomFilterFPP >= 1 {
		c.BloomFilterFPP = DefaultBloomFilterFPP
	}
	if c.BloomFilterNdvRatio <= 0 {
		c.BloomFilterNdvRatio = DefaultBloomFilterNdvRatio
	}
	if c.BloomFieldThreshold <= 0 {
		c.BloomFieldThreshold = DefaultBloomFieldThreshold
	}
	if c.MetaCacheCapacity <= 0 {
		c.MetaCacheCapacity = DefaultMetaCacheCapacity
	}

	c.FlushInterval = DefaultFlushInterval
	if aux.FlushInterval != "" {
		d, err := time.ParseDuration(aux.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid flush_interval %q: %w", aux.FlushInterval, err)
		}
		c.FlushInterval = d
	}

	c.Uploader = UploaderSetting{
		Enabled:     aux.Uploader.Enabled,
		Endpoint:    aux.Uploader.Endpoint,
		Bucket:      aux.Uploader.Bucket,
		AccessKey:   aux.Uploader.AccessKey,
		SecretKey:   aux.Uploader.SecretKey,
		Secure:      aux.Uploader.Secure,
		Interval:    DefaultUploaderInterval,
		Concurrency: DefaultUploaderConcurrency,
	}
	if aux.Uploader.Interval != "" {
		d, err := time.ParseDuration(aux.Uploader.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid uploader interval %q: %w", aux.Uploader.Interval, err)
		}
		c.Uploader.Interval = d
	}
	if aux.Uploader.Concurrency > 0 {
		c.Uploader.Concurrency = aux.Uploader.Concurrency
	}
	if c.Uploader.Enabled && (c.Uploader.Endpoint == "" || c.Uploader.Bucket == "") {
		return nil, errors.New("uploader enabled without endpoint/bucket")
	}

	if aux.LogLevel != "" {
		switch strings.ToLower(aux.LogLevel) {
		case "fatal":
			log.SetLevel(log.FATAL)
		case "error":
			log.SetLevel(log.ERROR)
		case "warning":
			log.SetLevel(log.WARNING)
		case "debug":
			log.SetLevel(log.DEBUG)
		case "info":
			log.SetLevel(log.INFO)
		default:
			log.Error("invalid log_level %q, falling back to info", aux.LogLevel)
			log.SetLevel(log.INFO)
		}
	}

	return c, nil
}
