package memtable

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/ingest"
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/metrics"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils/log"
	"github.com/tracelake/tracelake/wal"
)

// ReplayAll reconstructs memtables from every unconsumed log segment,
// oldest first, flushing each segment's data as soon as the segment is
// exhausted. A structural failure on one segment (unreadable path, reader
// construction, registry lookup) aborts the whole pass: replay runs before
// live writes start, and continuing past a failed segment would persist
// data out of WAL order.
func ReplayAll(reg schema.Registry, cache *metacache.Cache, cfg *PersistConfig) error {
	segments, err := wal.ListSegments(cfg.WALRoot)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := replaySegment(seg, reg, cache, cfg); err != nil {
			return err
		}
	}
	return nil
}

func replaySegment(seg string, reg schema.Registry, cache *metacache.Cache, cfg *PersistConfig) error {
	shard, organization, streamType, err := wal.ParseSegmentPath(seg)
	if err != nil {
		return err
	}
	log.Info("replaying segment %s", seg)

	r, err := wal.OpenReader(seg)
	if err != nil {
		return err
	}
	defer r.Close()

	// One segment carries entries for every stream its writer served, so
	// replay rebuilds one partition per stream.
	parts := map[string]*Partition{}

	for {
		payload, err := r.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		var checksumErr wal.ChecksumError
		if errors.As(err, &checksumErr) {
			log.Warn("skipping corrupt record: %v", checksumErr)
			metrics.WALReplayedRecords.WithLabelValues("checksum_error").Inc()
			continue
		}
		var lengthErr wal.LengthError
		var shortErr wal.ShortReadError
		if errors.As(err, &lengthErr) || errors.As(err, &shortErr) {
			// Unlike a checksum failure, where the frame header still gives
			// the next record's offset, a bad length or a short read means
			// the record boundary itself is lost and no later record in the
			// segment can be located. Skip-and-continue is not possible here;
			// everything decoded so far is still flushed.
			log.Warn("segment %s has a torn tail, ending scan: %v", seg, err)
			metrics.WALReplayedRecords.WithLabelValues("torn_tail").Inc()
			break
		}
		if err != nil {
			return fmt.Errorf("read segment %s: %w", seg, err)
		}

		entry, err := ingest.Decode(payload)
		if err != nil {
			log.Warn("skipping undecodable record in %s: %v", seg, err)
			metrics.WALReplayedRecords.WithLabelValues("decode_error").Inc()
			continue
		}
		// The segment path is authoritative for the writer identity.
		entry.Organization = organization
		entry.StreamType = streamType

		inferred := schema.Infer(entry.Rows)
		sch, fingerprint, err := reg.Reconcile(organization, streamType, entry.Stream, inferred)
		if err != nil {
			return fmt.Errorf("reconcile schema for %s/%s/%s: %w", organization, streamType, entry.Stream, err)
		}
		entry.SchemaFingerprint = fingerprint

		batch := columnar.NewBatch(sch, entry.Rows)
		if entry.TimeKey == "" {
			entry.TimeKey = ingest.HourKey(batch.MinTs())
		}

		part, ok := parts[entry.Stream]
		if !ok {
			part = NewPartition()
			parts[entry.Stream] = part
			metrics.MemtablesInFlight.Inc()
		}
		if _, err := part.Write(entry, batch); err != nil {
			return fmt.Errorf("replay write for stream %s: %w", entry.Stream, err)
		}
		metrics.WALReplayedRecords.WithLabelValues("ok").Inc()
	}

	streams := make([]string, 0, len(parts))
	for stream := range parts {
		streams = append(streams, stream)
	}
	sort.Strings(streams)

	immutables := make([]*Immutable, 0, len(parts))
	for _, stream := range streams {
		immutables = append(immutables, NewImmutable(shard, organization, streamType, stream, parts[stream]))
	}

	if _, err := Flush(seg, immutables, reg, cache, cfg); err != nil {
		return fmt.Errorf("flush replayed segment %s: %w", seg, err)
	}

	for _, stream := range streams {
		part := parts[stream]
		metrics.MemtableUncompressedBytes.WithLabelValues(organization, streamType).
			Sub(float64(part.SizeUncompressed()))
		metrics.MemtableEncodedBytes.WithLabelValues(organization, streamType).
			Sub(float64(part.SizeEncoded()))
		metrics.MemtablesInFlight.Dec()
	}
	return nil
}
