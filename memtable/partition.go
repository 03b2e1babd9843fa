// Package memtable implements the in-memory columnar buffer of the
// ingestion write path, its crash-safe flush to local columnar files, and
// the startup recovery and replay protocols.
//
// Access to a Partition is single threaded: the owning shard writer is the
// only goroutine touching it, so the type carries no locking of its own.
package memtable

import (
	"sort"

	"github.com/gobwas/glob"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/ingest"
	"github.com/tracelake/tracelake/metrics"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils/log"
)

// PartitionFile is the append-only batch sequence of one time bucket.
type PartitionFile struct {
	batches []*columnar.Batch
}

// Batches returns the bucket's batches in write order.
func (pf *PartitionFile) Batches() []*columnar.Batch {
	return pf.batches
}

// Partition buffers the batches of one (organization, stream type, stream,
// shard) writer, bucketed by time-partition key, under a monotonically
// growing union schema.
type Partition struct {
	sch   *schema.Schema
	files map[string]*PartitionFile
}

// NewPartition returns an empty partition.
func NewPartition() *Partition {
	return &Partition{files: map[string]*PartitionFile{}}
}

// Write appends a batch under the entry's time-partition key, growing the
// union schema with any fields the batch introduces. It never touches disk.
// It returns the encoded size of the stored batch.
func (p *Partition) Write(entry *ingest.Entry, batch *columnar.Batch) (int64, error) {
	if p.sch == nil {
		p.sch = batch.Schema()
		metrics.SchemaMemoryBytes.WithLabelValues(entry.Organization, entry.StreamType).
			Add(float64(p.sch.SerializedSize()))
	} else {
		merged, added := p.sch.Merge(batch.Schema())
		if len(added) > 0 {
			delta := merged.SerializedSize() - p.sch.SerializedSize()
			p.sch = merged
			metrics.SchemaMemoryBytes.WithLabelValues(entry.Organization, entry.StreamType).
				Add(float64(delta))
		}
	}

	pf, ok := p.files[entry.TimeKey]
	if !ok {
		pf = &PartitionFile{}
		p.files[entry.TimeKey] = pf
	}
	pf.batches = append(pf.batches, batch)

	metrics.MemtableUncompressedBytes.WithLabelValues(entry.Organization, entry.StreamType).
		Add(float64(batch.SizeUncompressed()))
	metrics.MemtableEncodedBytes.WithLabelValues(entry.Organization, entry.StreamType).
		Add(float64(batch.SizeEncoded()))

	return batch.SizeEncoded(), nil
}

// Read collects the batches of every time bucket whose key matches all
// filter predicates, restricted to batches whose [MinTs, MaxTs] interval
// intersects the requested range. A (0, 0) range matches everything. The
// union schema is returned alongside; batches written before the schema
// grew do not individually conform to it, so callers pad.
func (p *Partition) Read(minTs, maxTs int64, filters []glob.Glob) (*schema.Schema, []*columnar.Batch, error) {
	var out []*columnar.Batch
	for _, key := range p.sortedKeys() {
		if !matchKey(key, filters) {
			log.Debug("time bucket %s filtered out of read", key)
			continue
		}
		for _, b := range p.files[key].batches {
			if b.Overlaps(minTs, maxTs) {
				out = append(out, b)
			}
		}
	}
	return p.sch, out, nil
}

// Schema returns the current union schema, nil before the first write.
func (p *Partition) Schema() *schema.Schema {
	return p.sch
}

// Empty reports whether the partition holds no batches.
func (p *Partition) Empty() bool {
	return len(p.files) == 0
}

// SizeUncompressed returns the summed uncompressed size estimate of all
// buffered batches.
func (p *Partition) SizeUncompressed() int64 {
	var total int64
	for _, pf := range p.files {
		for _, b := range pf.batches {
			total += b.SizeUncompressed()
		}
	}
	return total
}

// SizeEncoded returns the summed encoded size estimate of all buffered
// batches.
func (p *Partition) SizeEncoded() int64 {
	var total int64
	for _, pf := range p.files {
		for _, b := range pf.batches {
			total += b.SizeEncoded()
		}
	}
	return total
}

func (p *Partition) sortedKeys() []string {
	keys := make([]string, 0, len(p.files))
	for key := range p.files {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func matchKey(key string, filters []glob.Glob) bool {
	for _, g := range filters {
		if !g.Match(key) {
			return false
		}
	}
	return true
}
