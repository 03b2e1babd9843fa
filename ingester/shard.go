package ingester

import (
	"sort"
	"time"

	"go.uber.org/atomic"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/ingest"
	"github.com/tracelake/tracelake/memtable"
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/metrics"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils"
	"github.com/tracelake/tracelake/utils/log"
	"github.com/tracelake/tracelake/wal"
)

type writeRequest struct {
	entry *ingest.Entry
	sch   *schema.Schema
}

// shardWriter is the single owner of one (shard, organization, stream type)
// write path: its WAL segment, its partitions, and their rotation. All
// mutation happens on the run goroutine.
type shardWriter struct {
	shard        int
	organization string
	streamType   string

	ch    chan *writeRequest
	done  chan struct{}
	cfg   *utils.Config
	pcfg  *memtable.PersistConfig
	reg   schema.Registry
	cache *metacache.Cache

	w     *wal.Writer
	parts map[string]*memtable.Partition

	buffered *atomic.Int64
}

func newShardWriter(shard int, organization, streamType string, cfg *utils.Config,
	pcfg *memtable.PersistConfig, reg schema.Registry, cache *metacache.Cache,
) *shardWriter {
	return &shardWriter{
		shard:        shard,
		organization: organization,
		streamType:   streamType,
		ch:           make(chan *writeRequest, writeChannelDepth),
		done:         make(chan struct{}),
		cfg:          cfg,
		pcfg:         pcfg,
		reg:          reg,
		cache:        cache,
		parts:        map[string]*memtable.Partition{},
		buffered:     atomic.NewInt64(0),
	}
}

func (sw *shardWriter) run() {
	ticker := time.NewTicker(sw.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-sw.ch:
			sw.handle(req)
			if sw.buffered.Load() >= sw.cfg.MemtableMaxSizeBytes {
				sw.rotate()
			}
		case <-ticker.C:
			sw.rotate()
		case <-sw.done:
			sw.drain()
			return
		}
	}
}

// drain consumes the requests still buffered at shutdown, then performs the
// final rotation. The channel itself is never closed: senders observe the
// done channel instead, so a late Write fails cleanly rather than panicking.
func (sw *shardWriter) drain() {
	for {
		select {
		case req := <-sw.ch:
			sw.handle(req)
		default:
			sw.rotate()
			return
		}
	}
}

// handle appends the entry to the durable log and only then makes it
// visible in the memtable.
func (sw *shardWriter) handle(req *writeRequest) {
	if sw.w == nil {
		path := wal.SegmentPath(sw.cfg.WALRootDirectory, sw.shard, sw.organization, sw.streamType)
		w, err := wal.Create(path)
		if err != nil {
			log.Error("shard %d: %v", sw.shard, err)
			return
		}
		sw.w = w
	}

	payload, err := req.entry.Marshal()
	if err != nil {
		log.Error("shard %d: %v", sw.shard, err)
		return
	}
	if err := sw.w.Append(payload); err != nil {
		log.Error("shard %d: %v", sw.shard, err)
		return
	}
	if err := sw.w.Sync(); err != nil {
		log.Error("shard %d: %v", sw.shard, err)
		return
	}

	batch := columnar.NewBatch(req.sch, req.entry.Rows)
	part, ok := sw.parts[req.entry.Stream]
	if !ok {
		part = memtable.NewPartition()
		sw.parts[req.entry.Stream] = part
		metrics.MemtablesInFlight.Inc()
	}
	if _, err := part.Write(req.entry, batch); err != nil {
		log.Error("shard %d: write to memtable: %v", sw.shard, err)
		return
	}
	sw.buffered.Add(batch.SizeUncompressed())
}

// rotate swaps the live partitions out as immutables and flushes them
// against the current segment.
func (sw *shardWriter) rotate() {
	if sw.w == nil {
		return
	}
	segmentPath := sw.w.Path()
	if err := sw.w.Close(); err != nil {
		log.Error("shard %d: %v", sw.shard, err)
	}
	sw.w = nil

	parts := sw.parts
	sw.parts = map[string]*memtable.Partition{}
	sw.buffered.Store(0)

	streams := make([]string, 0, len(parts))
	for stream := range parts {
		streams = append(streams, stream)
	}
	sort.Strings(streams)

	immutables := make([]*memtable.Immutable, 0, len(parts))
	for _, stream := range streams {
		immutables = append(immutables,
			memtable.NewImmutable(sw.shard, sw.organization, sw.streamType, stream, parts[stream]))
	}

	if _, err := memtable.Flush(segmentPath, immutables, sw.reg, sw.cache, sw.pcfg); err != nil {
		// The segment stays on disk; the next startup replays it.
		log.Error("shard %d: flush failed, leaving segment for replay: %v", sw.shard, err)
	}

	// The partitions were swapped out above, so the buffered memory is gone
	// either way; the gauges come down even when the flush failed.
	for _, stream := range streams {
		part := parts[stream]
		metrics.MemtableUncompressedBytes.WithLabelValues(sw.organization, sw.streamType).
			Sub(float64(part.SizeUncompressed()))
		metrics.MemtableEncodedBytes.WithLabelValues(sw.organization, sw.streamType).
			Sub(float64(part.SizeEncoded()))
		metrics.MemtablesInFlight.Dec()
	}
}
