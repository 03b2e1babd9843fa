// Package ingester is the live write front end: it routes incoming rows to
// per-shard writer goroutines, appends them to the durable log before they
// become visible in the memtable, and periodically rotates memtables into
// immutables that are flushed to local columnar files.
package ingester

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/ingest"
	"github.com/tracelake/tracelake/memtable"
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils"
)

const writeChannelDepth = 1024

// PersistConfigFrom maps the parsed configuration onto the persist
// pipeline's knobs.
func PersistConfigFrom(cfg *utils.Config) *memtable.PersistConfig {
	return &memtable.PersistConfig{
		WALRoot:             cfg.WALRootDirectory,
		MaxRowsPerChunk:     cfg.MaxRowsPerChunk,
		BloomFieldThreshold: cfg.BloomFieldThreshold,
		Encode: columnar.EncodeOptions{
			WriteBufferSize:       cfg.WriteBufferSize,
			MaxRowGroupSize:       cfg.MaxRowGroupSize,
			Codec:                 cfg.Compression,
			DisableCompression:    cfg.DisableCompression,
			TimestampUncompressed: cfg.TimestampUncompressed,
			BloomEnabled:          cfg.BloomFilterEnabled,
			BloomFPP:              cfg.BloomFilterFPP,
			BloomNdvRatio:         cfg.BloomFilterNdvRatio,
		},
	}
}

// Ingester fans incoming writes out to per-writer goroutines. Each
// (shard, organization, stream type) writer owns its WAL segment and
// memtable exclusively, so no partition ever sees two writers.
type Ingester struct {
	cfg   *utils.Config
	pcfg  *memtable.PersistConfig
	reg   schema.Registry
	cache *metacache.Cache

	mu      sync.Mutex
	writers map[string]*shardWriter
	closed  bool
	wg      sync.WaitGroup
}

// New builds the front end. Recovery and replay must have completed before
// the first Write.
func New(cfg *utils.Config, reg schema.Registry, cache *metacache.Cache) *Ingester {
	return &Ingester{
		cfg:     cfg,
		pcfg:    PersistConfigFrom(cfg),
		reg:     reg,
		cache:   cache,
		writers: map[string]*shardWriter{},
	}
}

// Write appends rows for one stream. Rows lacking the event-time field are
// stamped with the current time. The call blocks when the owning shard's
// channel is full, which is the backpressure signal for a stalled persist
// pipeline.
func (ing *Ingester) Write(ctx context.Context, organization, streamType, stream string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC().UnixMicro()
	buckets := map[string][]map[string]any{}
	for _, row := range rows {
		ts, ok := row[schema.TimestampField].(int64)
		if !ok {
			ts = now
			row[schema.TimestampField] = ts
		}
		key := ingest.HourKey(ts)
		buckets[key] = append(buckets[key], row)
	}

	inferred := schema.Infer(rows)
	sch, fingerprint, err := ing.reg.Reconcile(organization, streamType, stream, inferred)
	if err != nil {
		return fmt.Errorf("reconcile schema for %s/%s/%s: %w", organization, streamType, stream, err)
	}

	w, err := ing.writer(shardOf(stream, ing.cfg.ShardCount), organization, streamType)
	if err != nil {
		return err
	}

	for key, bucketRows := range buckets {
		req := &writeRequest{
			entry: &ingest.Entry{
				Organization:      organization,
				Stream:            stream,
				StreamType:        streamType,
				TimeKey:           key,
				SchemaFingerprint: fingerprint,
				Rows:              bucketRows,
			},
			sch: sch,
		}
		select {
		case w.ch <- req:
		case <-w.done:
			return fmt.Errorf("ingester is shut down")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close drains every writer, flushing their memtables and closing their
// segments. Writer channels are never closed; each writer's done channel is,
// so an in-flight Write racing Close returns an error instead of panicking
// on a closed channel.
func (ing *Ingester) Close() {
	ing.mu.Lock()
	if ing.closed {
		ing.mu.Unlock()
		return
	}
	ing.closed = true
	for _, w := range ing.writers {
		close(w.done)
	}
	ing.mu.Unlock()

	ing.wg.Wait()
}

func (ing *Ingester) writer(shard int, organization, streamType string) (*shardWriter, error) {
	key := fmt.Sprintf("%d/%s/%s", shard, organization, streamType)

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.closed {
		return nil, fmt.Errorf("ingester is shut down")
	}
	if w, ok := ing.writers[key]; ok {
		return w, nil
	}
	w := newShardWriter(shard, organization, streamType, ing.cfg, ing.pcfg, ing.reg, ing.cache)
	ing.writers[key] = w
	ing.wg.Add(1)
	go func() {
		defer ing.wg.Done()
		w.run()
	}()
	return w, nil
}

func shardOf(stream string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(stream))
	return int(h.Sum32() % uint32(shards))
}
