package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "tracelake"
var subsystem = "ingester"

var (
	// StartupTime stores how long the startup (recovery + replay included) took.
	StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "startup_seconds",
			Help:      "Seconds taken by the startup",
		},
	)

	// IngestWALUsedBytes tracks local bytes occupied by persisted output,
	// partitioned by organization and stream type.
	IngestWALUsedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "wal_used_bytes_total",
		Help:      "Bytes of columnar output written under the WAL root",
	}, []string{"organization", "stream_type"})

	// IngestWALWriteBytes tracks bytes written to local disk by persist,
	// partitioned by organization and stream type.
	IngestWALWriteBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "wal_write_bytes_total",
		Help:      "Bytes written to local disk by the persist pipeline",
	}, []string{"organization", "stream_type"})

	// SchemaMemoryBytes tracks the serialized size of the union schemas held
	// by live memtable partitions. Updated with signed deltas as schemas grow.
	SchemaMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "schema_memory_bytes",
		Help:      "Serialized size of union schemas held in memory",
	}, []string{"organization", "stream_type"})

	// MemtableUncompressedBytes tracks the uncompressed size estimate of
	// buffered columnar batches.
	MemtableUncompressedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memtable_uncompressed_bytes",
		Help:      "Uncompressed size estimate of batches buffered in memtables",
	}, []string{"organization", "stream_type"})

	// MemtableEncodedBytes tracks the encoded size estimate of buffered
	// columnar batches.
	MemtableEncodedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memtable_encoded_bytes",
		Help:      "Encoded size estimate of batches buffered in memtables",
	}, []string{"organization", "stream_type"})

	// MemtablesInFlight counts memtables buffered in memory and not yet
	// fully persisted.
	MemtablesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memtables_in_flight",
		Help:      "Number of memtables not yet fully persisted",
	})

	// WALReplayedRecords counts records decoded during startup replay,
	// partitioned by result.
	WALReplayedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "wal_replayed_records_total",
		Help:      "Records processed by WAL replay partitioned by result",
	}, []string{"result"})

	// TotalDiskUsageBytes stores the disk usage under the WAL root.
	TotalDiskUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "disk_usage_bytes",
		Help:      "Total disk usage under the WAL root directory",
	})
)
