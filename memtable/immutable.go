package memtable

import (
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/schema"
)

// Immutable is a frozen partition staged for flush. It is created once per
// flush cycle when the live partition is swapped out, consumed exactly once
// by Persist, and discarded afterwards.
type Immutable struct {
	shard        int
	organization string
	streamType   string
	stream       string
	partition    *Partition
}

// NewImmutable wraps a swapped-out partition with its writer key.
func NewImmutable(shard int, organization, streamType, stream string, p *Partition) *Immutable {
	return &Immutable{
		shard:        shard,
		organization: organization,
		streamType:   streamType,
		stream:       stream,
		partition:    p,
	}
}

// Persist flushes the frozen partition to local partial-output files.
func (im *Immutable) Persist(reg schema.Registry, cache *metacache.Cache, cfg *PersistConfig) (int64, []PersistResult, error) {
	return im.partition.Persist(im.shard, im.organization, im.streamType, im.stream, reg, cache, cfg)
}

// Stream returns the stream name of the writer that owned the partition.
func (im *Immutable) Stream() string {
	return im.stream
}

// SizeUncompressed returns the frozen partition's uncompressed size estimate.
func (im *Immutable) SizeUncompressed() int64 {
	return im.partition.SizeUncompressed()
}

// SizeEncoded returns the frozen partition's encoded size estimate.
func (im *Immutable) SizeEncoded() int64 {
	return im.partition.SizeEncoded()
}
